package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/rl1809/warehouse-ledger/internal/adapter/handler"
)

type positionFlags struct {
	itemID       int64
	warehouse    string
	shelf        string
	onlyPositive bool
	limit        int
	offset       int
}

func (f *positionFlags) bind(cmd *cobra.Command) {
	cmd.Flags().Int64Var(&f.itemID, "item", 0, "filter by item id")
	cmd.Flags().StringVar(&f.warehouse, "warehouse", "", "filter by warehouse")
	cmd.Flags().StringVar(&f.shelf, "shelf", "", "filter by shelf")
	cmd.Flags().IntVar(&f.limit, "limit", 0, "maximum rows")
	cmd.Flags().IntVar(&f.offset, "offset", 0, "rows to skip")
}

func (f *positionFlags) query(cmd *cobra.Command) *handler.PositionQuery {
	q := &handler.PositionQuery{
		ItemID:       f.itemID,
		Warehouse:    f.warehouse,
		OnlyPositive: f.onlyPositive,
		Limit:        f.limit,
		Offset:       f.offset,
	}
	if cmd.Flags().Changed("shelf") {
		q.Shelf = &f.shelf
	}
	return q
}

func newStockCommand(opts *RootOptions) *cobra.Command {
	var flags positionFlags

	cmd := &cobra.Command{
		Use:           "stock",
		Short:         "List stock positions",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := call(cmd, opts, func(ctx context.Context, c *handler.LedgerClient) (*handler.Response, error) {
				return c.ListStockPositions(ctx, flags.query(cmd))
			})
			if err != nil {
				return err
			}

			formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
			return formatter.Render(nonNil(resp.Positions), func(w io.Writer) {
				fmt.Fprintln(w, "ITEM\tWAREHOUSE\tSHELF\tQUANTITY\tVERSION\tUPDATED")
				for _, p := range resp.Positions {
					fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%d\t%s\n", p.ItemID, p.Warehouse, p.Shelf, p.Quantity, p.Version, p.LastUpdated.Format("2006-01-02 15:04"))
				}
			})
		},
	}
	flags.bind(cmd)
	cmd.Flags().BoolVar(&flags.onlyPositive, "positive", false, "only positions with stock on hand")

	return cmd
}

func newSummaryCommand(opts *RootOptions) *cobra.Command {
	var flags positionFlags

	cmd := &cobra.Command{
		Use:           "summary",
		Short:         "Show on-hand stock per item",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := call(cmd, opts, func(ctx context.Context, c *handler.LedgerClient) (*handler.Response, error) {
				return c.SummarizeStock(ctx, flags.query(cmd))
			})
			if err != nil {
				return err
			}

			formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
			return formatter.Render(nonNil(resp.Summary), func(w io.Writer) {
				fmt.Fprintln(w, "ITEM\tMANUFACTURER\tNAME\tSUBNAME\tSUBNO\tQUANTITY")
				for _, s := range resp.Summary {
					fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%d\n", s.Item.ID, s.Item.Manufacturer, s.Item.Name, s.Item.SubName, s.Item.SubNumber, s.Quantity)
				}
			})
		},
	}
	flags.bind(cmd)

	return cmd
}

// nonNil keeps empty listings encoding as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
