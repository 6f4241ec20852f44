// Package validator holds the preconditions every ledger mutation must pass
// before it writes anything. The checks are pure: callers read the facts
// inside their transaction and hand them in.
package validator

import "github.com/rl1809/warehouse-ledger/internal/core/domain"

// Inbound rejects non-positive receipts.
func Inbound(quantity int) error {
	if quantity <= 0 {
		return &domain.ViolationError{Kind: domain.ErrInvalidQuantity, Requested: quantity}
	}
	return nil
}

// Outbound requires quantity to be covered by the position at key.
func Outbound(key domain.PositionKey, quantity, available int) error {
	if quantity <= 0 {
		return &domain.ViolationError{Kind: domain.ErrInvalidQuantity, Key: &key, Requested: quantity}
	}
	if quantity > available {
		return &domain.ViolationError{
			Kind:      domain.ErrInsufficientStock,
			Key:       &key,
			Requested: quantity,
			Available: available,
		}
	}
	return nil
}

// InboundAmendFacts are read under lock before an inbound amendment.
type InboundAmendFacts struct {
	// SubsequentOutbound is the outbound total at the entry's original key
	// created after the entry.
	SubsequentOutbound int
	// ResultingStock is the lowest quantity any affected position would end
	// up with.
	ResultingStock int
	// Available is the stock at the position that would go negative.
	Available int
}

func InboundAmend(entry *domain.LedgerEntry, newQuantity int, facts InboundAmendFacts) error {
	key := entry.Key()
	if entry.Cancelled() {
		return &domain.ViolationError{Kind: domain.ErrAlreadyCancelled, EntryID: entry.ID}
	}
	if newQuantity <= 0 {
		return &domain.ViolationError{Kind: domain.ErrInvalidQuantity, EntryID: entry.ID, Requested: newQuantity}
	}
	if newQuantity < facts.SubsequentOutbound {
		return &domain.ViolationError{
			Kind:      domain.ErrBelowSubsequentOutbound,
			EntryID:   entry.ID,
			Key:       &key,
			Requested: newQuantity,
			Related:   facts.SubsequentOutbound,
		}
	}
	if facts.ResultingStock < 0 {
		return &domain.ViolationError{
			Kind:      domain.ErrNegativeResultingStock,
			EntryID:   entry.ID,
			Key:       &key,
			Requested: newQuantity,
			Available: facts.Available,
		}
	}
	return nil
}

// OutboundAmend checks a new outbound quantity against what the target
// position holds once the entry's current quantity is given back.
func OutboundAmend(entry *domain.LedgerEntry, target domain.PositionKey, newQuantity, available int) error {
	if newQuantity <= 0 {
		return &domain.ViolationError{Kind: domain.ErrInvalidQuantity, EntryID: entry.ID, Requested: newQuantity}
	}
	if newQuantity > available {
		return &domain.ViolationError{
			Kind:      domain.ErrExceedsAvailable,
			EntryID:   entry.ID,
			Key:       &target,
			Requested: newQuantity,
			Available: available,
		}
	}
	return nil
}

// InboundCancelFacts are read under lock before an inbound cancellation.
type InboundCancelFacts struct {
	// SubsequentOutbound is the outbound total for the same item after the
	// inbound, by movement date and then creation order.
	SubsequentOutbound int
	HasLaterInbound    bool
	CurrentStock       int
}

func InboundCancel(entry *domain.LedgerEntry, facts InboundCancelFacts) error {
	key := entry.Key()
	if entry.Cancelled() {
		return &domain.ViolationError{Kind: domain.ErrAlreadyCancelled, EntryID: entry.ID}
	}
	if facts.SubsequentOutbound > 0 {
		return &domain.ViolationError{
			Kind:      domain.ErrHasSubsequentOutbound,
			EntryID:   entry.ID,
			Key:       &key,
			Requested: entry.Quantity,
			Related:   facts.SubsequentOutbound,
		}
	}
	if facts.HasLaterInbound {
		return &domain.ViolationError{Kind: domain.ErrHasLaterInbound, EntryID: entry.ID, Key: &key}
	}
	if facts.CurrentStock < entry.Quantity {
		return &domain.ViolationError{
			Kind:      domain.ErrInsufficientCurrentStock,
			EntryID:   entry.ID,
			Key:       &key,
			Requested: entry.Quantity,
			Available: facts.CurrentStock,
		}
	}
	return nil
}
