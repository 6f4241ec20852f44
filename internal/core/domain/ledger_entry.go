package domain

import (
	"fmt"
	"time"
)

type EntryKind string

const (
	EntryKindInbound  EntryKind = "inbound"
	EntryKindOutbound EntryKind = "outbound"
)

func (k EntryKind) Valid() bool {
	return k == EntryKindInbound || k == EntryKindOutbound
}

type EntryStatus string

const (
	EntryStatusActive    EntryStatus = "active"
	EntryStatusCancelled EntryStatus = "cancelled"
)

// Location is a warehouse plus an optional shelf. An empty shelf is a valid
// location of its own.
type Location struct {
	Warehouse string
	Shelf     string
}

func (l Location) String() string {
	return fmt.Sprintf("%s/%s", l.Warehouse, l.Shelf)
}

// LedgerEntry is one inbound or outbound movement. Quantity is never negative;
// the direction comes from Kind.
type LedgerEntry struct {
	ID           int64
	Kind         EntryKind
	ItemID       int64
	Date         time.Time
	Counterparty string // supplier for inbound, client for outbound
	Quantity     int
	HandlerName  string
	Location     Location
	Description  string
	Status       EntryStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (e *LedgerEntry) Cancelled() bool {
	return e.Status == EntryStatusCancelled
}

// Key returns the stock position the entry books against.
func (e *LedgerEntry) Key() PositionKey {
	return PositionKey{ItemID: e.ItemID, Location: e.Location}
}

// After reports whether e happened after other: by movement date, ties
// broken by creation order (ids are monotonic).
func (e *LedgerEntry) After(other *LedgerEntry) bool {
	if !e.Date.Equal(other.Date) {
		return e.Date.After(other.Date)
	}
	return e.ID > other.ID
}

// MovementDate truncates t to a calendar day in UTC.
func MovementDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// EntryPatch lists the mutable fields of an entry. Nil means unchanged.
type EntryPatch struct {
	Quantity    *int
	Warehouse   *string
	Shelf       *string
	Description *string
}

// Apply returns the location and description after the patch.
func (p EntryPatch) Apply(e *LedgerEntry) (Location, string) {
	loc := e.Location
	if p.Warehouse != nil && *p.Warehouse != "" {
		loc.Warehouse = *p.Warehouse
	}
	if p.Shelf != nil {
		loc.Shelf = *p.Shelf
	}
	desc := e.Description
	if p.Description != nil {
		desc = *p.Description
	}
	return loc, desc
}

// MovementFilter selects ledger history. Zero From/To fall back to the last
// six months.
type MovementFilter struct {
	ItemID    int64
	Kind      EntryKind
	Warehouse string
	From      time.Time
	To        time.Time
	Limit     int
	Offset    int
}
