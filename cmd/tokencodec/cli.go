package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/born-ml/tokencodec/internal/envconfig"
	"github.com/born-ml/tokencodec/internal/logutil"
	"github.com/born-ml/tokencodec/internal/store"
	"github.com/born-ml/tokencodec/tokenizer"
)

const version = "v0.1.0"

// NewCLI builds the root command and its subcommands.
func NewCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "tokencodec",
		Short:   "Train, run and calibrate BPE tokenizers",
		Version: version,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Disable usage printing on errors
			cmd.SilenceUsage = true
			slog.SetDefault(logutil.NewLogger(cmd.ErrOrStderr(), envconfig.LogLevel()))
		},
	}

	cobra.EnableCommandSorting = false

	rootCmd.AddCommand(
		NewTrainCmd(),
		NewEncodeCmd(),
		NewDecodeCmd(),
		NewExportCmd(),
		NewEstimateCmd(),
		NewCountCmd(),
		NewCalibrateCmd(),
		NewEnvCmd(),
	)

	return rootCmd
}

// addTokenizerFlags registers the flags selecting a cached tokenizer.
func addTokenizerFlags(cmd *cobra.Command) {
	cmd.Flags().String("kind", "regex", "Tokenizer kind: byte, regex, gpt4 or heuristic")
	cmd.Flags().String("vocab", "", "Model (.model), GPT-4 vocabulary (.tiktoken, .json) or training corpus")
	cmd.Flags().Int("vocab-size", 4096, "Vocabulary size when --vocab is a training corpus")
}

// tokenizerFromFlags returns the tokenizer selected by addTokenizerFlags.
func tokenizerFromFlags(cmd *cobra.Command, svc *tokenizer.Service) (*tokenizer.Tokenizer, error) {
	name, _ := cmd.Flags().GetString("kind")
	vocab, _ := cmd.Flags().GetString("vocab")
	size, _ := cmd.Flags().GetInt("vocab-size")

	kind, err := tokenizer.ParseKind(name)
	if err != nil {
		return nil, err
	}

	return svc.Tokenizer(kind, vocab, size)
}

// newService builds a Service. withStore opens the calibration database.
func newService(withStore bool) (*tokenizer.Service, error) {
	cfg := tokenizer.DefaultConfig()

	var st *store.Store
	if withStore {
		var err error
		if st, err = store.Open(envconfig.DBPath()); err != nil {
			return nil, err
		}
		cfg.Store = st
	}

	svc, err := tokenizer.New(cfg)
	if err != nil {
		if st != nil {
			st.Close()
		}
		return nil, err
	}
	return svc, nil
}

// inputText joins args, or reads stdin when there are none.
func inputText(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}

	b, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(b), nil
}

func readFile(path string) (string, error) {
	b, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the command line
	if err != nil {
		return "", err
	}
	return string(b), nil
}
