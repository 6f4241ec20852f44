package domain

import "time"

type OperationType string

const (
	OpInbound         OperationType = "inbound"
	OpOutbound        OperationType = "outbound"
	OpInboundUpdate   OperationType = "inbound_update"
	OpOutboundUpdate  OperationType = "outbound_update"
	OpInboundCancel   OperationType = "inbound_cancel"
	OpOutboundDelete  OperationType = "outbound_delete"
	OpReconcileAdjust OperationType = "reconcile_adjust"
)

// AuditRecord is written once and never changed.
type AuditRecord struct {
	ID               int64
	ItemID           int64
	Operation        OperationType
	QuantityChange   int
	PreviousQuantity int
	NewQuantity      int
	ReferenceID      int64
	ReferenceType    EntryKind // empty for reconcile adjustments
	Description      string
	PreviousLocation string
	NewLocation      string
	CorrelationID    string
	CreatedAt        time.Time
}

type AuditFilter struct {
	ItemID        int64
	ReferenceID   int64
	CorrelationID string
	Limit         int
	Offset        int
}
