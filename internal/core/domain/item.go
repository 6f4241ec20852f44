package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ItemKey is the natural identity of an item.
type ItemKey struct {
	Manufacturer string
	Name         string
	SubName      string
	SubNumber    string
}

// Normalize trims surrounding whitespace from every component.
func (k ItemKey) Normalize() ItemKey {
	return ItemKey{
		Manufacturer: strings.TrimSpace(k.Manufacturer),
		Name:         strings.TrimSpace(k.Name),
		SubName:      strings.TrimSpace(k.SubName),
		SubNumber:    strings.TrimSpace(k.SubNumber),
	}
}

func (k ItemKey) Valid() bool {
	return k.Manufacturer != "" && k.Name != ""
}

type Item struct {
	ID        int64
	Key       ItemKey
	Price     *decimal.Decimal
	CreatedAt time.Time
}
