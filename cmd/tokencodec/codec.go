package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

func NewEncodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "encode [TEXT...]",
		Short: "Print the token ids of TEXT, or of stdin",
		RunE:  encodeHandler,
	}
	addTokenizerFlags(cmd)
	return cmd
}

func encodeHandler(cmd *cobra.Command, args []string) error {
	svc, err := newService(false)
	if err != nil {
		return err
	}
	defer svc.Close()

	tok, err := tokenizerFromFlags(cmd, svc)
	if err != nil {
		return err
	}

	text, err := inputText(cmd, args)
	if err != nil {
		return err
	}

	ids := tok.Encode(text)
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	fmt.Fprintln(cmd.OutOrStdout(), strings.Join(parts, " "))
	return nil
}

func NewDecodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decode [ID...]",
		Short: "Print the text of token ids given as arguments or on stdin",
		RunE:  decodeHandler,
	}
	addTokenizerFlags(cmd)
	return cmd
}

func decodeHandler(cmd *cobra.Command, args []string) error {
	svc, err := newService(false)
	if err != nil {
		return err
	}
	defer svc.Close()

	tok, err := tokenizerFromFlags(cmd, svc)
	if err != nil {
		return err
	}

	input, err := inputText(cmd, args)
	if err != nil {
		return err
	}

	ids, err := parseIDs(input)
	if err != nil {
		return err
	}

	fmt.Fprint(cmd.OutOrStdout(), tok.Decode(ids))
	return nil
}

// parseIDs reads integers separated by whitespace or commas.
func parseIDs(s string) ([]int, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})

	ids := make([]int, 0, len(fields))
	for _, f := range fields {
		id, err := strconv.Atoi(strings.Trim(f, "[]"))
		if err != nil {
			return nil, fmt.Errorf("invalid token id %q", f)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func NewExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a tokenizer's merges, byte shuffle and special tokens as JSON",
		Args:  cobra.NoArgs,
		RunE:  exportHandler,
	}
	addTokenizerFlags(cmd)
	cmd.Flags().StringP("output", "o", "", "Output file (default stdout)")
	return cmd
}

func exportHandler(cmd *cobra.Command, args []string) error {
	svc, err := newService(false)
	if err != nil {
		return err
	}
	defer svc.Close()

	tok, err := tokenizerFromFlags(cmd, svc)
	if err != nil {
		return err
	}

	output, _ := cmd.Flags().GetString("output")
	if output == "" {
		return tok.ExportJSON(cmd.OutOrStdout())
	}

	f, err := os.Create(output) //nolint:gosec // G304: path comes from the command line
	if err != nil {
		return err
	}
	if err := tok.ExportJSON(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
