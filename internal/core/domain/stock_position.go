package domain

import (
	"cmp"
	"fmt"
	"time"
)

// PositionKey identifies one stock position.
type PositionKey struct {
	ItemID   int64
	Location Location
}

func (k PositionKey) String() string {
	return fmt.Sprintf("item %d @ %s", k.ItemID, k.Location)
}

// Compare orders keys so multi-key locks are always taken in the same order.
func (k PositionKey) Compare(o PositionKey) int {
	return cmp.Or(
		cmp.Compare(k.ItemID, o.ItemID),
		cmp.Compare(k.Location.Warehouse, o.Location.Warehouse),
		cmp.Compare(k.Location.Shelf, o.Location.Shelf),
	)
}

func (k PositionKey) Less(o PositionKey) bool {
	return k.Compare(o) < 0
}

type StockPosition struct {
	Key         PositionKey
	Quantity    int
	Version     int // bumped on every write
	LastUpdated time.Time
}

type PositionFilter struct {
	ItemID       int64
	Warehouse    string
	Shelf        *string
	OnlyPositive bool
	Limit        int
	Offset       int
}

// Matches reports whether p passes the filter, ignoring paging.
func (f PositionFilter) Matches(p StockPosition) bool {
	if f.ItemID != 0 && p.Key.ItemID != f.ItemID {
		return false
	}
	if f.Warehouse != "" && p.Key.Location.Warehouse != f.Warehouse {
		return false
	}
	if f.Shelf != nil && p.Key.Location.Shelf != *f.Shelf {
		return false
	}
	if f.OnlyPositive && p.Quantity <= 0 {
		return false
	}
	return true
}

// StockSummary is the total quantity of one item across all locations.
type StockSummary struct {
	Item     Item
	Quantity int
}

// LedgerTotal is the ledger-derived quantity of one key.
type LedgerTotal struct {
	Key      PositionKey
	Inbound  int
	Outbound int
}

func (t LedgerTotal) Quantity() int {
	return t.Inbound - t.Outbound
}
