package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound               = errors.New("not found")
	ErrValidation             = errors.New("validation failed")
	ErrInvalidTransition      = errors.New("invalid status transition")
	ErrUnauthorizedTransition = errors.New("unauthorized status transition")
	ErrConcurrencyConflict    = errors.New("concurrency conflict")
	ErrDataIntegrity          = errors.New("data integrity violation")
	ErrDuplicateRequest       = errors.New("duplicate request")
	ErrForbidden              = errors.New("forbidden")

	// ErrInsufficientStock is a data integrity failure: the ledger holds less than was claimed.
	ErrInsufficientStock = fmt.Errorf("%w: insufficient stock", ErrDataIntegrity)
)

// TransitionError reports a rejected status change together with the status
// the transfer was actually in.
type TransitionError struct {
	Current   TransferStatus
	Requested TransferStatus
	Err       error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%v: %s -> %s", e.Err, e.Current, e.Requested)
}

func (e *TransitionError) Unwrap() error { return e.Err }

// ErrorKind names the error category for metrics and logs.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrUnauthorizedTransition):
		return "unauthorized_transition"
	case errors.Is(err, ErrConcurrencyConflict):
		return "concurrency_conflict"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrDataIntegrity):
		return "data_integrity"
	case errors.Is(err, ErrDuplicateRequest):
		return "duplicate_request"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	default:
		return "internal"
	}
}
