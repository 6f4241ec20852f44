package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/rl1809/warehouse-ledger/internal/adapter/handler"
)

func newMovementsCommand(opts *RootOptions) *cobra.Command {
	var q handler.MovementQuery

	cmd := &cobra.Command{
		Use:   "movements",
		Short: "List inbound and outbound entries",
		Long: `List ledger entries newest first. Without --from and --to the last six
months are shown.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := call(cmd, opts, func(ctx context.Context, c *handler.LedgerClient) (*handler.Response, error) {
				return c.ListMovements(ctx, &q)
			})
			if err != nil {
				return err
			}

			formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
			return formatter.Render(nonNil(resp.Movements), func(w io.Writer) {
				fmt.Fprintln(w, "ID\tDATE\tKIND\tITEM\tQUANTITY\tLOCATION\tCOUNTERPARTY\tSTATUS")
				for _, e := range resp.Movements {
					fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%d\t%s/%s\t%s\t%s\n", e.ID, e.Date, e.Kind, e.ItemID, e.Quantity, e.Warehouse, e.Shelf, e.Counterparty, e.Status)
				}
			})
		},
	}
	cmd.Flags().Int64Var(&q.ItemID, "item", 0, "filter by item id")
	cmd.Flags().StringVar(&q.Kind, "kind", "", "inbound or outbound")
	cmd.Flags().StringVar(&q.Warehouse, "warehouse", "", "filter by warehouse")
	cmd.Flags().StringVar(&q.From, "from", "", "first date, YYYY-MM-DD")
	cmd.Flags().StringVar(&q.To, "to", "", "last date, YYYY-MM-DD")
	cmd.Flags().IntVar(&q.Limit, "limit", 0, "maximum rows")
	cmd.Flags().IntVar(&q.Offset, "offset", 0, "rows to skip")

	return cmd
}

func newAuditCommand(opts *RootOptions) *cobra.Command {
	var q handler.AuditQuery

	cmd := &cobra.Command{
		Use:           "audit",
		Short:         "Show the audit trail, newest first",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := call(cmd, opts, func(ctx context.Context, c *handler.LedgerClient) (*handler.Response, error) {
				return c.ListAudit(ctx, &q)
			})
			if err != nil {
				return err
			}

			formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
			return formatter.Render(nonNil(resp.Audit), func(w io.Writer) {
				fmt.Fprintln(w, "ID\tOPERATION\tITEM\tCHANGE\tPREVIOUS\tNEW\tENTRY\tCORRELATION")
				for _, r := range resp.Audit {
					fmt.Fprintf(w, "%d\t%s\t%d\t%+d\t%d\t%d\t%d\t%s\n", r.ID, r.Operation, r.ItemID, r.QuantityChange, r.PreviousQuantity, r.NewQuantity, r.ReferenceID, r.CorrelationID)
				}
			})
		},
	}
	cmd.Flags().Int64Var(&q.ItemID, "item", 0, "filter by item id")
	cmd.Flags().Int64Var(&q.EntryID, "entry", 0, "filter by ledger entry id")
	cmd.Flags().StringVar(&q.CorrelationID, "correlation", "", "filter by correlation id")
	cmd.Flags().IntVar(&q.Limit, "limit", 50, "maximum rows")
	cmd.Flags().IntVar(&q.Offset, "offset", 0, "rows to skip")

	return cmd
}
