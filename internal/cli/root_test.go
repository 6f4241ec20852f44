package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
	"gopkg.in/yaml.v3"

	"github.com/rl1809/warehouse-ledger/internal/adapter/handler"
	"github.com/rl1809/warehouse-ledger/internal/adapter/storage/memory"
	"github.com/rl1809/warehouse-ledger/internal/core/domain"
	"github.com/rl1809/warehouse-ledger/internal/core/service"
)

var shelfA = domain.Location{Warehouse: "W1", Shelf: "A"}

type testLedger struct {
	svc   *service.LedgerService
	store *memory.Store
	dial  func(string) (grpc.ClientConnInterface, func() error, error)
}

func newTestLedger(t *testing.T) *testLedger {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	store := memory.New()
	svc := service.NewLedgerService(store, service.WithLogger(logger))

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	handler.RegisterLedgerServer(srv, handler.NewGRPCHandler(svc))
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	dial := func(string) (grpc.ClientConnInterface, func() error, error) {
		conn, err := grpc.NewClient("passthrough:///bufnet",
			grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
				return lis.DialContext(ctx)
			}),
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		)
		if err != nil {
			return nil, nil, err
		}
		return conn, conn.Close, nil
	}
	return &testLedger{svc: svc, store: store, dial: dial}
}

func (l *testLedger) inbound(t *testing.T, qty int) *service.MutationResult {
	t.Helper()
	res, err := l.svc.CreateInbound(context.Background(), service.InboundRequest{
		Item:        service.ItemRef{Key: domain.ItemKey{Manufacturer: "Acme", Name: "Widget"}},
		Date:        time.Now(),
		Supplier:    "Supplier Co",
		Quantity:    qty,
		HandlerName: "alice",
		Location:    shelfA,
	})
	require.NoError(t, err)
	return res
}

func (l *testLedger) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand(&RootOptions{Dial: l.dial})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "invctl", cmd.Use)

	for _, name := range []string{"reconcile", "verify", "stock", "summary", "movements", "audit"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)
}

func TestInvalidFormat(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.run(t, "stock", "--format", "xml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestStockAndSummary(t *testing.T) {
	l := newTestLedger(t)
	l.inbound(t, 12)

	out, err := l.run(t, "stock")
	require.NoError(t, err)
	assert.Contains(t, out, "WAREHOUSE")
	assert.Contains(t, out, "W1")

	out, err = l.run(t, "stock", "--format", "json", "--warehouse", "W2")
	require.NoError(t, err)
	assert.JSONEq(t, "[]", out)

	out, err = l.run(t, "summary", "--format", "yaml")
	require.NoError(t, err)
	var summary []map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &summary))
	require.Len(t, summary, 1)
	assert.Equal(t, 12, summary[0]["quantity"])
}

func TestVerifyAndReconcile(t *testing.T) {
	l := newTestLedger(t)
	res := l.inbound(t, 10)

	out, err := l.run(t, "verify")
	require.NoError(t, err)
	assert.Contains(t, out, "positions match the ledger")

	l.store.Corrupt(res.Entry.Key(), 3)

	out, err = l.run(t, "verify")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "changed")

	out, err = l.run(t, "reconcile", "--dry-run", "--format", "json")
	require.NoError(t, err)
	var report handler.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.False(t, report.Applied)
	require.Len(t, report.Drift, 1)

	out, err = l.run(t, "reconcile")
	require.NoError(t, err)
	assert.Contains(t, out, "corrected 1 positions")

	_, err = l.run(t, "verify")
	assert.NoError(t, err)

	out, err = l.run(t, "audit", "--format", "json")
	require.NoError(t, err)
	var audit []handler.Audit
	require.NoError(t, json.Unmarshal([]byte(out), &audit))
	require.Len(t, audit, 2)
	assert.Equal(t, string(domain.OpReconcileAdjust), audit[0].Operation)
	assert.Equal(t, 7, audit[0].QuantityChange)
}

func TestMovements(t *testing.T) {
	l := newTestLedger(t)
	l.inbound(t, 5)

	out, err := l.run(t, "movements", "--kind", "inbound")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, lines, 2)
	assert.Contains(t, lines[1], "Supplier Co")

	_, err = l.run(t, "movements", "--kind", "transfer")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "unknown movement kind")
}
