package cli

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/rl1809/warehouse-ledger/internal/adapter/handler"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Addr    string
	Format  string // "text" | "json" | "yaml"
	Timeout time.Duration

	// Dial overrides how the ledger connection is made; tests point it at an
	// in-process server.
	Dial func(addr string) (grpc.ClientConnInterface, func() error, error)
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json", "yaml"}

// NewRootCommand creates the root command for invctl.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invctl",
		Short: "Operate a warehouse inventory ledger",
		Long:  "Inspect stock positions, movements and audit history, and reconcile positions against the ledger.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Addr, "addr", "localhost:50051", "ledger gRPC address")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json|yaml)")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", 30*time.Second, "request timeout")

	cmd.AddCommand(newReconcileCommand(opts))
	cmd.AddCommand(newVerifyCommand(opts))
	cmd.AddCommand(newStockCommand(opts))
	cmd.AddCommand(newSummaryCommand(opts))
	cmd.AddCommand(newMovementsCommand(opts))
	cmd.AddCommand(newAuditCommand(opts))

	return cmd
}

func dialInsecure(addr string) (grpc.ClientConnInterface, func() error, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, err
	}
	return conn, conn.Close, nil
}

// call runs fn against a fresh client bounded by the --timeout flag.
func call(cmd *cobra.Command, opts *RootOptions, fn func(context.Context, *handler.LedgerClient) (*handler.Response, error)) (*handler.Response, error) {
	dial := opts.Dial
	if dial == nil {
		dial = dialInsecure
	}
	conn, closeConn, err := dial(opts.Addr)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "connect "+opts.Addr, err)
	}
	defer closeConn()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	resp, err := fn(ctx, handler.NewLedgerClient(conn))
	if err != nil {
		if handler.IsRejected(err) {
			return nil, WrapExitError(ExitFailure, "rejected", err)
		}
		return nil, WrapExitError(ExitCommandError, "request failed", err)
	}
	return resp, nil
}
