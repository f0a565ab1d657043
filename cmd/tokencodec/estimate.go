package main

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/born-ml/tokencodec/internal/parallel"
	"github.com/born-ml/tokencodec/tokenizer"
)

func NewEstimateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "estimate [FILE...]",
		Short: "Estimate token counts of files, or of stdin",
		RunE:  estimateHandler,
	}
	cmd.Flags().Int("limit", 0, "Also report whether each input fits in this many tokens")
	cmd.Flags().String("slice", "", "Print the text covering token range START:END of stdin instead (negative counts from the end)")
	return cmd
}

func estimateHandler(cmd *cobra.Command, args []string) error {
	svc, err := newService(false)
	if err != nil {
		return err
	}
	defer svc.Close()

	if r, _ := cmd.Flags().GetString("slice"); r != "" {
		return sliceHandler(cmd, svc, r)
	}

	names, texts, err := readInputs(cmd, args)
	if err != nil {
		return err
	}

	counts, err := svc.Estimator().EstimateAll(texts, parallel.DefaultConfig())
	if err != nil {
		slog.Warn("batch estimate failed, estimating one by one", "error", err)
		counts = make([]int, len(texts))
		for i, text := range texts {
			counts[i] = svc.EstimateTokens(text)
		}
	}

	limit, _ := cmd.Flags().GetInt("limit")
	header := []string{"INPUT", "CHARS", "TOKENS"}
	if limit > 0 {
		header = append(header, "FITS")
	}

	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader(header)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	for i, name := range names {
		row := []string{name, strconv.Itoa(utf8.RuneCountInString(texts[i])), strconv.Itoa(counts[i])}
		if limit > 0 {
			row = append(row, strconv.FormatBool(counts[i] <= limit))
		}
		table.Append(row)
	}
	table.Render()

	return nil
}

func sliceHandler(cmd *cobra.Command, svc *tokenizer.Service, r string) error {
	from, to, ok := strings.Cut(r, ":")
	if !ok {
		return fmt.Errorf("invalid --slice %q, want START:END", r)
	}
	start, err := strconv.Atoi(from)
	if err != nil {
		return fmt.Errorf("invalid slice start %q", from)
	}
	end, err := strconv.Atoi(to)
	if err != nil {
		return fmt.Errorf("invalid slice end %q", to)
	}

	text, err := inputText(cmd, nil)
	if err != nil {
		return err
	}

	out, err := svc.Estimator().SliceByTokens(text, start, end)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), out)
	return nil
}

// readInputs reads every file concurrently, or stdin as "-" when there are none.
func readInputs(cmd *cobra.Command, paths []string) ([]string, []string, error) {
	if len(paths) == 0 {
		text, err := inputText(cmd, nil)
		if err != nil {
			return nil, nil, err
		}
		return []string{"-"}, []string{text}, nil
	}

	texts := make([]string, len(paths))
	g, _ := errgroup.WithContext(cmd.Context())
	g.SetLimit(8)
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
		return nil, nil, err
	}

	return paths, texts, nil
}

func NewCountCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "count --model MODEL [TEXT...]",
		Short: "Estimate tokens of TEXT, or of stdin, corrected for MODEL",
		RunE:  countHandler,
	}
	cmd.Flags().StringP("model", "m", "", "Model whose correction factor applies")
	_ = cmd.MarkFlagRequired("model")
	return cmd
}

func countHandler(cmd *cobra.Command, args []string) error {
	model, _ := cmd.Flags().GetString("model")

	svc, err := newService(true)
	if err != nil {
		return err
	}
	defer svc.Close()

	text, err := inputText(cmd, args)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), svc.CountTokensForModel(cmd.Context(), text, model))
	return nil
}
