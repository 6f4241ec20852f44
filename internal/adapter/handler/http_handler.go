package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/rl1809/warehouse-ledger/internal/core/domain"
	"github.com/rl1809/warehouse-ledger/internal/core/service"
)

type HTTPHandler struct {
	ledger *service.LedgerService
}

func NewHTTPHandler(ledger *service.LedgerService) *HTTPHandler {
	return &HTTPHandler{ledger: ledger}
}

// Register mounts every route on mux.
func (h *HTTPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.HealthCheck)

	mux.HandleFunc("POST /api/items", h.CreateItem)
	mux.HandleFunc("GET /api/items/{id}", h.GetItem)
	mux.HandleFunc("GET /api/entries/{id}", h.GetEntry)

	mux.HandleFunc("POST /api/inbound", h.CreateInbound)
	mux.HandleFunc("PATCH /api/inbound/{id}", h.AmendInbound)
	mux.HandleFunc("POST /api/inbound/{id}/cancel", h.CancelInbound)
	mux.HandleFunc("POST /api/outbound", h.CreateOutbound)
	mux.HandleFunc("PATCH /api/outbound/{id}", h.AmendOutbound)
	mux.HandleFunc("DELETE /api/outbound/{id}", h.DeleteOutbound)

	mux.HandleFunc("GET /api/stock", h.ListStock)
	mux.HandleFunc("GET /api/stock/position", h.GetPosition)
	mux.HandleFunc("GET /api/stock/summary", h.Summary)
	mux.HandleFunc("GET /api/movements", h.Movements)
	mux.HandleFunc("GET /api/audit", h.Audit)

	mux.HandleFunc("POST /api/reconcile", h.Reconcile)
	mux.HandleFunc("GET /api/reconcile/verify", h.Verify)
}

type ItemRequest struct {
	Manufacturer string           `json:"manufacturer"`
	ItemName     string           `json:"item_name"`
	ItemSubName  string           `json:"item_subname,omitempty"`
	ItemSubNo    string           `json:"item_subno,omitempty"`
	Price        *decimal.Decimal `json:"price,omitempty"`
}

func (h *HTTPHandler) CreateItem(w http.ResponseWriter, r *http.Request) {
	var req ItemRequest
	if !decode(w, r, &req) {
		return
	}
	key := domain.ItemKey{
		Manufacturer: req.Manufacturer,
		Name:         req.ItemName,
		SubName:      req.ItemSubName,
		SubNumber:    req.ItemSubNo,
	}
	item, err := h.ledger.CreateItem(r.Context(), key, req.Price)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, Response{Success: true, Message: "item created", Item: toItem(item)})
}

func (h *HTTPHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	item, err := h.ledger.GetItem(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "ok", Item: toItem(item)})
}

func (h *HTTPHandler) GetEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	entry, err := h.ledger.GetEntry(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "ok", Movements: []Entry{toEntry(*entry)}})
}

func (h *HTTPHandler) CreateInbound(w http.ResponseWriter, r *http.Request) {
	var req InboundRequest
	if !decode(w, r, &req) {
		return
	}
	in, err := req.toService()
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := h.ledger.CreateInbound(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, Response{Success: true, Message: "inbound recorded", Mutation: toMutation(res)})
}

func (h *HTTPHandler) CreateOutbound(w http.ResponseWriter, r *http.Request) {
	var req OutboundRequest
	if !decode(w, r, &req) {
		return
	}
	out, err := req.toService()
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := h.ledger.CreateOutbound(r.Context(), out)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, Response{Success: true, Message: "outbound recorded", Mutation: toMutation(res)})
}

func (h *HTTPHandler) AmendInbound(w http.ResponseWriter, r *http.Request) {
	h.amend(w, r, h.ledger.AmendInbound, "inbound amended")
}

func (h *HTTPHandler) AmendOutbound(w http.ResponseWriter, r *http.Request) {
	h.amend(w, r, h.ledger.AmendOutbound, "outbound amended")
}

type amendFunc func(ctx context.Context, id int64, patch domain.EntryPatch) (*service.MutationResult, error)

func (h *HTTPHandler) amend(w http.ResponseWriter, r *http.Request, fn amendFunc, message string) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req AmendRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := fn(r.Context(), id, req.patch())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: message, Mutation: toMutation(res)})
}

func (h *HTTPHandler) CancelInbound(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	res, err := h.ledger.CancelInbound(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "inbound cancelled", Mutation: toMutation(res)})
}

func (h *HTTPHandler) DeleteOutbound(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	res, err := h.ledger.DeleteOutbound(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "outbound deleted", Mutation: toMutation(res)})
}

func (h *HTTPHandler) ListStock(w http.ResponseWriter, r *http.Request) {
	q, err := positionQuery(r.URL.Query())
	if err != nil {
		writeError(w, err)
		return
	}
	positions, err := h.ledger.ListStockPositions(r.Context(), q.filter())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "ok", Positions: toPositions(positions)})
}

func (h *HTTPHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	v := r.URL.Query()
	itemID, err := queryInt64(v, "item_id")
	if err == nil && (itemID <= 0 || v.Get("warehouse") == "") {
		err = fmt.Errorf("%w: item_id and warehouse are required", domain.ErrInvalidArgument)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	key := domain.PositionKey{
		ItemID:   itemID,
		Location: domain.Location{Warehouse: v.Get("warehouse"), Shelf: v.Get("shelf")},
	}
	pos, err := h.ledger.GetStockPosition(r.Context(), key)
	if err != nil {
		writeError(w, err)
		return
	}
	if pos == nil {
		writeError(w, fmt.Errorf("position %s: %w", key, domain.ErrNotFound))
		return
	}
	p := toPosition(*pos)
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "ok", Position: &p})
}

func (h *HTTPHandler) Summary(w http.ResponseWriter, r *http.Request) {
	q, err := positionQuery(r.URL.Query())
	if err != nil {
		writeError(w, err)
		return
	}
	summary, err := h.ledger.SummarizeStock(r.Context(), q.filter())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "ok", Summary: toSummaries(summary)})
}

func (h *HTTPHandler) Movements(w http.ResponseWriter, r *http.Request) {
	v := r.URL.Query()
	q := MovementQuery{Kind: v.Get("kind"), Warehouse: v.Get("warehouse"), From: v.Get("from"), To: v.Get("to")}
	var err error
	if q.ItemID, err = queryInt64(v, "item_id"); err == nil {
		q.Limit, q.Offset, err = queryPage(v)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	filter, err := q.filter()
	if err != nil {
		writeError(w, err)
		return
	}
	entries, err := h.ledger.ListMovements(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "ok", Movements: toEntries(entries)})
}

func (h *HTTPHandler) Audit(w http.ResponseWriter, r *http.Request) {
	v := r.URL.Query()
	q := AuditQuery{CorrelationID: v.Get("correlation_id")}
	var err error
	if q.ItemID, err = queryInt64(v, "item_id"); err == nil {
		if q.EntryID, err = queryInt64(v, "entry_id"); err == nil {
			q.Limit, q.Offset, err = queryPage(v)
		}
	}
	if err != nil {
		writeError(w, err)
		return
	}
	records, err := h.ledger.ListAudit(r.Context(), q.filter())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "ok", Audit: toAudits(records)})
}

func (h *HTTPHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	report, err := h.ledger.Reconcile(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: reportMessage(report), Report: toReport(report)})
}

func (h *HTTPHandler) Verify(w http.ResponseWriter, r *http.Request) {
	report, err := h.ledger.Verify(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Success: true, Message: reportMessage(report), Report: toReport(report)})
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.ledger.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func reportMessage(r *service.ReconcileReport) string {
	if r.Clean() {
		return "positions match the ledger"
	}
	if r.Applied {
		return fmt.Sprintf("corrected %d positions", len(r.Drift))
	}
	return fmt.Sprintf("%d positions drifted", len(r.Drift))
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{
			Success: false,
			Message: "invalid request body",
		})
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, Response{
			Success: false,
			Message: "invalid id",
		})
		return 0, false
	}
	return id, true
}

func positionQuery(v url.Values) (PositionQuery, error) {
	q := PositionQuery{Warehouse: v.Get("warehouse"), OnlyPositive: v.Get("only_positive") == "true"}
	if v.Has("shelf") {
		shelf := v.Get("shelf")
		q.Shelf = &shelf
	}
	var err error
	if q.ItemID, err = queryInt64(v, "item_id"); err != nil {
		return q, err
	}
	q.Limit, q.Offset, err = queryPage(v)
	return q, err
}

func queryInt64(v url.Values, name string) (int64, error) {
	s := v.Get(name)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", domain.ErrInvalidArgument, name)
	}
	return n, nil
}

func queryPage(v url.Values) (int, int, error) {
	limit, err := queryInt64(v, "limit")
	if err != nil {
		return 0, 0, err
	}
	offset, err := queryInt64(v, "offset")
	if err != nil {
		return 0, 0, err
	}
	return int(limit), int(offset), nil
}

func writeError(w http.ResponseWriter, err error) {
	status, message := classify(err)
	writeJSON(w, status, Response{
		Success: false,
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
