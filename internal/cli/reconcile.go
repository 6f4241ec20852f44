package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/rl1809/warehouse-ledger/internal/adapter/handler"
)

func newReconcileCommand(opts *RootOptions) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Rebuild stock positions from the ledger",
		Long: `Recompute every stock position from the active ledger entries and
overwrite positions that drifted. Each correction is written to the audit
trail under one correlation id. With --dry-run nothing is changed.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(cmd, opts, func(ctx context.Context, c *handler.LedgerClient) (*handler.Response, error) {
				if dryRun {
					return c.Verify(ctx)
				}
				return c.Reconcile(ctx)
			}, false)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report drift without repairing it")

	return cmd
}

func newVerifyCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "verify",
		Short:         "Report drift between positions and the ledger",
		Long:          "Compare every stock position with the ledger. Exits 1 when drift is found.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(cmd, opts, func(ctx context.Context, c *handler.LedgerClient) (*handler.Response, error) {
				return c.Verify(ctx)
			}, true)
		},
	}
}

func runReport(cmd *cobra.Command, opts *RootOptions, fn func(context.Context, *handler.LedgerClient) (*handler.Response, error), failOnDrift bool) error {
	resp, err := call(cmd, opts, fn)
	if err != nil {
		return err
	}
	report := resp.Report

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	err = formatter.Render(report, func(w io.Writer) {
		fmt.Fprintf(w, "correlation\t%s\n", report.CorrelationID)
		fmt.Fprintf(w, "checked\t%d\n", report.Checked)
		fmt.Fprintf(w, "applied\t%t\n", report.Applied)
		fmt.Fprintf(w, "result\t%s\n", resp.Message)
		if len(report.Drift) == 0 {
			return
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w, "ITEM\tWAREHOUSE\tSHELF\tKIND\tPOSITION\tLEDGER")
		for _, d := range report.Drift {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%d\n", d.ItemID, d.Warehouse, d.Shelf, d.Kind, d.Before, d.After)
		}
	})
	if err != nil {
		return err
	}

	if failOnDrift && len(report.Drift) > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d positions drifted", len(report.Drift)))
	}
	return nil
}
