package handler

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/warehouse-ledger/internal/core/domain"
	"github.com/rl1809/warehouse-ledger/internal/core/service"
)

// Wire types shared by the HTTP and gRPC transports.

const dateLayout = "2006-01-02"

type InboundRequest struct {
	RequestID    string           `json:"request_id,omitempty"`
	ItemID       int64            `json:"item_id,omitempty"`
	Manufacturer string           `json:"manufacturer,omitempty"`
	ItemName     string           `json:"item_name,omitempty"`
	ItemSubName  string           `json:"item_subname,omitempty"`
	ItemSubNo    string           `json:"item_subno,omitempty"`
	Price        *decimal.Decimal `json:"price,omitempty"`
	Date         string           `json:"date"`
	Supplier     string           `json:"supplier"`
	Quantity     int              `json:"quantity"`
	HandlerName  string           `json:"handler_name"`
	Warehouse    string           `json:"warehouse"`
	Shelf        string           `json:"shelf,omitempty"`
	Description  string           `json:"description,omitempty"`
}

type OutboundRequest struct {
	RequestID   string `json:"request_id,omitempty"`
	ItemID      int64  `json:"item_id"`
	Date        string `json:"date"`
	Client      string `json:"client"`
	Quantity    int    `json:"quantity"`
	HandlerName string `json:"handler_name"`
	Warehouse   string `json:"warehouse"`
	Shelf       string `json:"shelf,omitempty"`
	Description string `json:"description,omitempty"`
}

type AmendRequest struct {
	ID          int64   `json:"id,omitempty"`
	Quantity    *int    `json:"quantity,omitempty"`
	Warehouse   *string `json:"warehouse,omitempty"`
	Shelf       *string `json:"shelf,omitempty"`
	Description *string `json:"description,omitempty"`
}

type EntryIDRequest struct {
	ID int64 `json:"id"`
}

type PositionQuery struct {
	ItemID       int64   `json:"item_id,omitempty"`
	Warehouse    string  `json:"warehouse,omitempty"`
	Shelf        *string `json:"shelf,omitempty"`
	OnlyPositive bool    `json:"only_positive,omitempty"`
	Limit        int     `json:"limit,omitempty"`
	Offset       int     `json:"offset,omitempty"`
}

type MovementQuery struct {
	ItemID    int64  `json:"item_id,omitempty"`
	Kind      string `json:"kind,omitempty"`
	Warehouse string `json:"warehouse,omitempty"`
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
	Limit     int    `json:"limit,omitempty"`
	Offset    int    `json:"offset,omitempty"`
}

type AuditQuery struct {
	ItemID        int64  `json:"item_id,omitempty"`
	EntryID       int64  `json:"entry_id,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
	Limit         int    `json:"limit,omitempty"`
	Offset        int    `json:"offset,omitempty"`
}

type Empty struct{}

type Item struct {
	ID           int64            `json:"id"`
	Manufacturer string           `json:"manufacturer"`
	Name         string           `json:"item_name"`
	SubName      string           `json:"item_subname"`
	SubNumber    string           `json:"item_subno"`
	Price        *decimal.Decimal `json:"price,omitempty"`
}

type Entry struct {
	ID           int64     `json:"id"`
	Kind         string    `json:"kind"`
	ItemID       int64     `json:"item_id"`
	Date         string    `json:"date"`
	Counterparty string    `json:"counterparty"`
	Quantity     int       `json:"quantity"`
	HandlerName  string    `json:"handler_name"`
	Warehouse    string    `json:"warehouse"`
	Shelf        string    `json:"shelf"`
	Description  string    `json:"description"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Position struct {
	ItemID      int64     `json:"item_id"`
	Warehouse   string    `json:"warehouse"`
	Shelf       string    `json:"shelf"`
	Quantity    int       `json:"quantity"`
	Version     int       `json:"version"`
	LastUpdated time.Time `json:"last_updated"`
}

type Summary struct {
	Item     Item `json:"item"`
	Quantity int  `json:"quantity"`
}

type Audit struct {
	ID               int64     `json:"id"`
	ItemID           int64     `json:"item_id"`
	Operation        string    `json:"operation"`
	QuantityChange   int       `json:"quantity_change"`
	PreviousQuantity int       `json:"previous_quantity"`
	NewQuantity      int       `json:"new_quantity"`
	ReferenceID      int64     `json:"reference_id,omitempty"`
	ReferenceType    string    `json:"reference_type,omitempty"`
	Description      string    `json:"description,omitempty"`
	PreviousLocation string    `json:"previous_location,omitempty"`
	NewLocation      string    `json:"new_location,omitempty"`
	CorrelationID    string    `json:"correlation_id"`
	CreatedAt        time.Time `json:"created_at"`
}

type Mutation struct {
	Entry            Entry  `json:"entry"`
	PreviousQuantity int    `json:"previous_quantity"`
	NewQuantity      int    `json:"new_quantity"`
	CorrelationID    string `json:"correlation_id"`
}

type Drift struct {
	ItemID    int64  `json:"item_id"`
	Warehouse string `json:"warehouse"`
	Shelf     string `json:"shelf"`
	Kind      string `json:"kind"`
	Before    int    `json:"before"`
	After     int    `json:"after"`
}

type Report struct {
	CorrelationID string    `json:"correlation_id"`
	Applied       bool      `json:"applied"`
	Checked       int       `json:"checked"`
	Drift         []Drift   `json:"drift"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
}

// Response is the envelope of every reply. Exactly one payload field is set
// on success.
type Response struct {
	Success   bool       `json:"success"`
	Message   string     `json:"message"`
	Mutation  *Mutation  `json:"mutation,omitempty"`
	Item      *Item      `json:"item,omitempty"`
	Position  *Position  `json:"position,omitempty"`
	Positions []Position `json:"positions,omitempty"`
	Summary   []Summary  `json:"summary,omitempty"`
	Movements []Entry    `json:"movements,omitempty"`
	Audit     []Audit    `json:"audit,omitempty"`
	Report    *Report    `json:"report,omitempty"`
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad date %q, want YYYY-MM-DD", domain.ErrInvalidArgument, s)
	}
	return t, nil
}

func (r *InboundRequest) toService() (service.InboundRequest, error) {
	date, err := parseDate(r.Date)
	if err != nil {
		return service.InboundRequest{}, err
	}
	return service.InboundRequest{
		RequestID: r.RequestID,
		Item: service.ItemRef{
			ID: r.ItemID,
			Key: domain.ItemKey{
				Manufacturer: r.Manufacturer,
				Name:         r.ItemName,
				SubName:      r.ItemSubName,
				SubNumber:    r.ItemSubNo,
			},
			Price: r.Price,
		},
		Date:        date,
		Supplier:    r.Supplier,
		Quantity:    r.Quantity,
		HandlerName: r.HandlerName,
		Location:    domain.Location{Warehouse: r.Warehouse, Shelf: r.Shelf},
		Description: r.Description,
	}, nil
}

func (r *OutboundRequest) toService() (service.OutboundRequest, error) {
	date, err := parseDate(r.Date)
	if err != nil {
		return service.OutboundRequest{}, err
	}
	return service.OutboundRequest{
		RequestID:   r.RequestID,
		ItemID:      r.ItemID,
		Date:        date,
		Client:      r.Client,
		Quantity:    r.Quantity,
		HandlerName: r.HandlerName,
		Location:    domain.Location{Warehouse: r.Warehouse, Shelf: r.Shelf},
		Description: r.Description,
	}, nil
}

func (r *AmendRequest) patch() domain.EntryPatch {
	return domain.EntryPatch{
		Quantity:    r.Quantity,
		Warehouse:   r.Warehouse,
		Shelf:       r.Shelf,
		Description: r.Description,
	}
}

func (q *PositionQuery) filter() domain.PositionFilter {
	return domain.PositionFilter{
		ItemID:       q.ItemID,
		Warehouse:    q.Warehouse,
		Shelf:        q.Shelf,
		OnlyPositive: q.OnlyPositive,
		Limit:        q.Limit,
		Offset:       q.Offset,
	}
}

func (q *MovementQuery) filter() (domain.MovementFilter, error) {
	from, err := parseDate(q.From)
	if err != nil {
		return domain.MovementFilter{}, err
	}
	to, err := parseDate(q.To)
	if err != nil {
		return domain.MovementFilter{}, err
	}
	return domain.MovementFilter{
		ItemID:    q.ItemID,
		Kind:      domain.EntryKind(q.Kind),
		Warehouse: q.Warehouse,
		From:      from,
		To:        to,
		Limit:     q.Limit,
		Offset:    q.Offset,
	}, nil
}

func (q *AuditQuery) filter() domain.AuditFilter {
	return domain.AuditFilter{
		ItemID:        q.ItemID,
		ReferenceID:   q.EntryID,
		CorrelationID: q.CorrelationID,
		Limit:         q.Limit,
		Offset:        q.Offset,
	}
}

func toItem(i *domain.Item) *Item {
	return &Item{
		ID:           i.ID,
		Manufacturer: i.Key.Manufacturer,
		Name:         i.Key.Name,
		SubName:      i.Key.SubName,
		SubNumber:    i.Key.SubNumber,
		Price:        i.Price,
	}
}

func toEntry(e domain.LedgerEntry) Entry {
	return Entry{
		ID:           e.ID,
		Kind:         string(e.Kind),
		ItemID:       e.ItemID,
		Date:         e.Date.Format(dateLayout),
		Counterparty: e.Counterparty,
		Quantity:     e.Quantity,
		HandlerName:  e.HandlerName,
		Warehouse:    e.Location.Warehouse,
		Shelf:        e.Location.Shelf,
		Description:  e.Description,
		Status:       string(e.Status),
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
	}
}

func toPosition(p domain.StockPosition) Position {
	return Position{
		ItemID:      p.Key.ItemID,
		Warehouse:   p.Key.Location.Warehouse,
		Shelf:       p.Key.Location.Shelf,
		Quantity:    p.Quantity,
		Version:     p.Version,
		LastUpdated: p.LastUpdated,
	}
}

func toMutation(r *service.MutationResult) *Mutation {
	return &Mutation{
		Entry:            toEntry(r.Entry),
		PreviousQuantity: r.PreviousQuantity,
		NewQuantity:      r.NewQuantity,
		CorrelationID:    r.CorrelationID,
	}
}

func toReport(r *service.ReconcileReport) *Report {
	out := &Report{
		CorrelationID: r.CorrelationID,
		Applied:       r.Applied,
		Checked:       r.Checked,
		Drift:         make([]Drift, 0, len(r.Drift)),
		StartedAt:     r.StartedAt,
		FinishedAt:    r.FinishedAt,
	}
	for _, d := range r.Drift {
		out.Drift = append(out.Drift, Drift{
			ItemID:    d.Key.ItemID,
			Warehouse: d.Key.Location.Warehouse,
			Shelf:     d.Key.Location.Shelf,
			Kind:      string(d.Kind),
			Before:    d.Before,
			After:     d.After,
		})
	}
	return out
}

func toPositions(in []domain.StockPosition) []Position {
	out := make([]Position, 0, len(in))
	for _, p := range in {
		out = append(out, toPosition(p))
	}
	return out
}

func toSummaries(in []domain.StockSummary) []Summary {
	out := make([]Summary, 0, len(in))
	for _, s := range in {
		out = append(out, Summary{Item: *toItem(&s.Item), Quantity: s.Quantity})
	}
	return out
}

func toEntries(in []domain.LedgerEntry) []Entry {
	out := make([]Entry, 0, len(in))
	for _, e := range in {
		out = append(out, toEntry(e))
	}
	return out
}

func toAudits(in []domain.AuditRecord) []Audit {
	out := make([]Audit, 0, len(in))
	for _, r := range in {
		out = append(out, Audit{
			ID:               r.ID,
			ItemID:           r.ItemID,
			Operation:        string(r.Operation),
			QuantityChange:   r.QuantityChange,
			PreviousQuantity: r.PreviousQuantity,
			NewQuantity:      r.NewQuantity,
			ReferenceID:      r.ReferenceID,
			ReferenceType:    string(r.ReferenceType),
			Description:      r.Description,
			PreviousLocation: r.PreviousLocation,
			NewLocation:      r.NewLocation,
			CorrelationID:    r.CorrelationID,
			CreatedAt:        r.CreatedAt,
		})
	}
	return out
}

// classify maps an error to an HTTP status and a client-facing message.
// Store failures are not described to clients.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrInvalidQuantity):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, domain.ErrDuplicateRequest):
		return http.StatusConflict, "duplicate request"
	case domain.IsViolation(err):
		return http.StatusConflict, err.Error()
	case errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "store unavailable"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
