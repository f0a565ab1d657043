package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/born-ml/tokencodec/internal/bpe"
)

func NewTrainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train CORPUS...",
		Short: "Train a tokenizer and save it as PREFIX.model and PREFIX.vocab",
		Args:  cobra.MinimumNArgs(1),
		RunE:  trainHandler,
	}

	defaults := bpe.DefaultConvergence()
	cmd.Flags().String("kind", "regex", "Tokenizer kind: byte or regex")
	cmd.Flags().String("pattern", "", "Pre-tokenization pattern for the regex kind (default cl100k)")
	cmd.Flags().Int("vocab-size", 4096, "Target vocabulary size, 256 or more")
	cmd.Flags().StringP("output", "o", "", "Output prefix")
	cmd.Flags().Bool("baseline", false, "Use the rescanning trainer instead of the incremental one")
	cmd.Flags().Bool("converge", false, "Stop early when merges stop paying off; --vocab-size becomes the upper bound")
	cmd.Flags().Int("min-frequency", defaults.MinFrequency, "With --converge, stop when the best pair is rarer than this")
	cmd.Flags().Float64("min-improvement", defaults.MinImprovement, "With --converge, stop when a merge shrinks the text by less than this fraction")
	cmd.Flags().BoolP("verbose", "v", false, "Log every merge")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}

func trainHandler(cmd *cobra.Command, args []string) error {
	name, _ := cmd.Flags().GetString("kind")
	pattern, _ := cmd.Flags().GetString("pattern")
	size, _ := cmd.Flags().GetInt("vocab-size")
	output, _ := cmd.Flags().GetString("output")
	baseline, _ := cmd.Flags().GetBool("baseline")
	converge, _ := cmd.Flags().GetBool("converge")
	minFrequency, _ := cmd.Flags().GetInt("min-frequency")
	minImprovement, _ := cmd.Flags().GetFloat64("min-improvement")
	verbose, _ := cmd.Flags().GetBool("verbose")

	kind, err := bpe.ParseKind(name)
	if err != nil {
		return err
	}

	var tok *bpe.Tokenizer
	if pattern != "" && kind == bpe.KindRegex {
		tok, err = bpe.NewRegex(pattern)
	} else {
		tok, err = bpe.New(kind)
	}
	if err != nil {
		return err
	}

	corpus, err := readCorpus(cmd, args)
	if err != nil {
		return err
	}

	var res bpe.Result
	switch c := (bpe.Convergence{MinFrequency: minFrequency, MinImprovement: minImprovement, MaxVocabSize: size}); {
	case converge && baseline:
		res, err = tok.TrainUntilConvergence(corpus, c, verbose)
	case converge:
		res, err = tok.TrainFastUntilConvergence(corpus, c, verbose)
	case baseline:
		res, err = tok.Train(corpus, size, verbose)
	default:
		res, err = tok.TrainFast(corpus, size, verbose)
	}
	if err != nil {
		return err
	}

	if err := tok.Save(output); err != nil {
		return err
	}

	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader([]string{"KIND", "MERGES", "VOCAB", "BYTES/TOKEN", "STOPPED"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.Append([]string{
		kind.String(),
		strconv.Itoa(res.Merges),
		strconv.Itoa(res.VocabSize),
		strconv.FormatFloat(res.CompressionRatio(), 'f', 2, 64),
		res.Reason,
	})
	table.Render()

	fmt.Fprintf(cmd.OutOrStdout(), "saved %s.model and %s.vocab\n", output, output)
	return nil
}

// readCorpus reads every file concurrently and joins them in argument order.
func readCorpus(cmd *cobra.Command, paths []string) (string, error) {
	texts := make([]string, len(paths))

	g, _ := errgroup.WithContext(cmd.Context())
	for i, path := range paths {
		g.Go(func() error {
			text, err := readFile(path)
			if err != nil {
				return err
			}
			texts[i] = text
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	return strings.Join(texts, ""), nil
}
