package handler

import (
	"context"

	"github.com/rl1809/warehouse-ledger/internal/core/service"
)

// LedgerServer is the server side of the ledger.v1.Ledger service.
type LedgerServer interface {
	CreateInbound(context.Context, *InboundRequest) (*Response, error)
	CreateOutbound(context.Context, *OutboundRequest) (*Response, error)
	AmendInbound(context.Context, *AmendRequest) (*Response, error)
	AmendOutbound(context.Context, *AmendRequest) (*Response, error)
	CancelInbound(context.Context, *EntryIDRequest) (*Response, error)
	DeleteOutbound(context.Context, *EntryIDRequest) (*Response, error)
	GetStockPosition(context.Context, *PositionQuery) (*Response, error)
	ListStockPositions(context.Context, *PositionQuery) (*Response, error)
	SummarizeStock(context.Context, *PositionQuery) (*Response, error)
	ListMovements(context.Context, *MovementQuery) (*Response, error)
	ListAudit(context.Context, *AuditQuery) (*Response, error)
	Reconcile(context.Context, *Empty) (*Response, error)
	Verify(context.Context, *Empty) (*Response, error)
}

// GRPCHandler reports rejections in the response body rather than as RPC
// errors; transport failures are the only non-nil errors.
type GRPCHandler struct {
	ledger *service.LedgerService
}

var _ LedgerServer = (*GRPCHandler)(nil)

func NewGRPCHandler(ledger *service.LedgerService) *GRPCHandler {
	return &GRPCHandler{ledger: ledger}
}

func failure(err error) *Response {
	_, message := classify(err)
	return &Response{
		Success: false,
		Message: message,
	}
}

func mutationResponse(res *service.MutationResult, err error, message string) (*Response, error) {
	if err != nil {
		return failure(err), nil
	}
	return &Response{Success: true, Message: message, Mutation: toMutation(res)}, nil
}

func (h *GRPCHandler) CreateInbound(ctx context.Context, req *InboundRequest) (*Response, error) {
	in, err := req.toService()
	if err != nil {
		return failure(err), nil
	}
	res, err := h.ledger.CreateInbound(ctx, in)
	return mutationResponse(res, err, "inbound recorded")
}

func (h *GRPCHandler) CreateOutbound(ctx context.Context, req *OutboundRequest) (*Response, error) {
	out, err := req.toService()
	if err != nil {
		return failure(err), nil
	}
	res, err := h.ledger.CreateOutbound(ctx, out)
	return mutationResponse(res, err, "outbound recorded")
}

func (h *GRPCHandler) AmendInbound(ctx context.Context, req *AmendRequest) (*Response, error) {
	res, err := h.ledger.AmendInbound(ctx, req.ID, req.patch())
	return mutationResponse(res, err, "inbound amended")
}

func (h *GRPCHandler) AmendOutbound(ctx context.Context, req *AmendRequest) (*Response, error) {
	res, err := h.ledger.AmendOutbound(ctx, req.ID, req.patch())
	return mutationResponse(res, err, "outbound amended")
}

func (h *GRPCHandler) CancelInbound(ctx context.Context, req *EntryIDRequest) (*Response, error) {
	res, err := h.ledger.CancelInbound(ctx, req.ID)
	return mutationResponse(res, err, "inbound cancelled")
}

func (h *GRPCHandler) DeleteOutbound(ctx context.Context, req *EntryIDRequest) (*Response, error) {
	res, err := h.ledger.DeleteOutbound(ctx, req.ID)
	return mutationResponse(res, err, "outbound deleted")
}

func (h *GRPCHandler) GetStockPosition(ctx context.Context, req *PositionQuery) (*Response, error) {
	key := positionKey(req)
	pos, err := h.ledger.GetStockPosition(ctx, key)
	if err != nil {
		return failure(err), nil
	}
	if pos == nil {
		return &Response{Success: false, Message: "position " + key.String() + ": not found"}, nil
	}
	p := toPosition(*pos)
	return &Response{Success: true, Message: "ok", Position: &p}, nil
}

func (h *GRPCHandler) ListStockPositions(ctx context.Context, req *PositionQuery) (*Response, error) {
	positions, err := h.ledger.ListStockPositions(ctx, req.filter())
	if err != nil {
		return failure(err), nil
	}
	return &Response{Success: true, Message: "ok", Positions: toPositions(positions)}, nil
}

func (h *GRPCHandler) SummarizeStock(ctx context.Context, req *PositionQuery) (*Response, error) {
	summary, err := h.ledger.SummarizeStock(ctx, req.filter())
	if err != nil {
		return failure(err), nil
	}
	return &Response{Success: true, Message: "ok", Summary: toSummaries(summary)}, nil
}

func (h *GRPCHandler) ListMovements(ctx context.Context, req *MovementQuery) (*Response, error) {
	filter, err := req.filter()
	if err != nil {
		return failure(err), nil
	}
	entries, err := h.ledger.ListMovements(ctx, filter)
	if err != nil {
		return failure(err), nil
	}
	return &Response{Success: true, Message: "ok", Movements: toEntries(entries)}, nil
}

func (h *GRPCHandler) ListAudit(ctx context.Context, req *AuditQuery) (*Response, error) {
	records, err := h.ledger.ListAudit(ctx, req.filter())
	if err != nil {
		return failure(err), nil
	}
	return &Response{Success: true, Message: "ok", Audit: toAudits(records)}, nil
}

func (h *GRPCHandler) Reconcile(ctx context.Context, _ *Empty) (*Response, error) {
	report, err := h.ledger.Reconcile(ctx)
	if err != nil {
		return failure(err), nil
	}
	return &Response{Success: true, Message: reportMessage(report), Report: toReport(report)}, nil
}

func (h *GRPCHandler) Verify(ctx context.Context, _ *Empty) (*Response, error) {
	report, err := h.ledger.Verify(ctx)
	if err != nil {
		return failure(err), nil
	}
	return &Response{Success: true, Message: reportMessage(report), Report: toReport(report)}, nil
}
