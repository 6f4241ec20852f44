package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidQuantity          = errors.New("invalid quantity")
	ErrInsufficientStock        = errors.New("insufficient stock")
	ErrInsufficientCurrentStock = errors.New("insufficient current stock")
	ErrExceedsAvailable         = errors.New("quantity exceeds available stock")
	ErrBelowSubsequentOutbound  = errors.New("quantity below subsequent outbound")
	ErrNegativeResultingStock   = errors.New("resulting stock would be negative")
	ErrAlreadyCancelled         = errors.New("entry already cancelled")
	ErrHasSubsequentOutbound    = errors.New("entry has subsequent outbound")
	ErrHasLaterInbound          = errors.New("entry has later inbound")
	ErrNotFound                 = errors.New("not found")
	ErrStoreUnavailable         = errors.New("store unavailable")
	ErrDuplicateRequest         = errors.New("duplicate request")
	ErrInvalidArgument          = errors.New("invalid argument")
)

// ViolationError reports which invariant rejected a mutation and the
// quantities involved. It unwraps to one of the sentinel errors above.
type ViolationError struct {
	Kind      error
	EntryID   int64
	Key       *PositionKey
	Requested int
	Available int
	Related   int // e.g. outbound total shipped after an inbound
}

func (e *ViolationError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.EntryID != 0 {
		fmt.Fprintf(&b, ": entry %d", e.EntryID)
	}
	if e.Key != nil {
		fmt.Fprintf(&b, " (%s)", e.Key)
	}

	switch {
	case errors.Is(e.Kind, ErrInvalidQuantity):
		fmt.Fprintf(&b, ": requested %d", e.Requested)
	case errors.Is(e.Kind, ErrBelowSubsequentOutbound), errors.Is(e.Kind, ErrHasSubsequentOutbound):
		fmt.Fprintf(&b, ": requested %d, shipped afterwards %d", e.Requested, e.Related)
	case errors.Is(e.Kind, ErrAlreadyCancelled), errors.Is(e.Kind, ErrHasLaterInbound):
	default:
		fmt.Fprintf(&b, ": requested %d, available %d", e.Requested, e.Available)
	}
	return b.String()
}

func (e *ViolationError) Unwrap() error {
	return e.Kind
}

// NotFoundError wraps ErrNotFound with what was looked up.
func NotFoundError(what string, id int64) error {
	return fmt.Errorf("%s %d: %w", what, id, ErrNotFound)
}

// IsViolation reports whether err is a validation rejection rather than a
// store failure.
func IsViolation(err error) bool {
	var v *ViolationError
	return errors.As(err, &v)
}
