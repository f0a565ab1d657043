package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func NewCalibrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calibrate",
		Short: "Manage per-model correction factors",
	}

	recordCmd := &cobra.Command{
		Use:   "record MODEL ESTIMATED ACTUAL",
		Short: "Record that MODEL reported ACTUAL tokens for a text estimated at ESTIMATED",
		Args:  cobra.ExactArgs(3),
		RunE:  calibrateRecordHandler,
	}

	showCmd := &cobra.Command{
		Use:     "show",
		Aliases: []string{"ls"},
		Short:   "List correction factors",
		Args:    cobra.NoArgs,
		RunE:    calibrateShowHandler,
	}

	clearCmd := &cobra.Command{
		Use:   "clear [MODEL]",
		Short: "Remove the factor for MODEL, or every factor",
		Args:  cobra.MaximumNArgs(1),
		RunE:  calibrateClearHandler,
	}

	cmd.AddCommand(recordCmd, showCmd, clearCmd)
	return cmd
}

func calibrateRecordHandler(cmd *cobra.Command, args []string) error {
	estimated, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid estimated count %q", args[1])
	}
	actual, err := strconv.Atoi(args[2])
	if err != nil {
		return fmt.Errorf("invalid actual count %q", args[2])
	}

	svc, err := newService(true)
	if err != nil {
		return err
	}
	defer svc.Close()

	return svc.RecordTokenCountCorrection(cmd.Context(), args[0], estimated, actual)
}

func calibrateShowHandler(cmd *cobra.Command, args []string) error {
	svc, err := newService(true)
	if err != nil {
		return err
	}
	defer svc.Close()

	factors, err := svc.Factors(cmd.Context())
	if err != nil {
		return err
	}

	policy := svc.Policy()

	var data [][]string
	for _, f := range factors {
		data = append(data, []string{
			f.Model,
			strconv.Itoa(f.Samples),
			strconv.FormatFloat(f.Ratio, 'f', 4, 64),
			strconv.FormatBool(policy.Accepts(f)),
			f.UpdatedAt.Local().Format(time.DateTime),
		})
	}

	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader([]string{"MODEL", "SAMPLES", "RATIO", "APPLIED", "UPDATED"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()

	return nil
}

func calibrateClearHandler(cmd *cobra.Command, args []string) error {
	var model string
	if len(args) > 0 {
		model = args[0]
	}

	svc, err := newService(true)
	if err != nil {
		return err
	}
	defer svc.Close()

	return svc.ClearFactors(cmd.Context(), model)
}
