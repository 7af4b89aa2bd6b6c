package model

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the engine either is one of these or
// wraps one of them, so callers classify with errors.Is.
var (
	ErrValidation           = errors.New("validation failed")
	ErrSchedulingConflict   = errors.New("venue has a conflicting event")
	ErrCapacityExceeded     = errors.New("event is sold out")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrAlreadyCheckedIn     = errors.New("ticket already checked in")
	ErrEventAlreadyOccurred = errors.New("event already occurred")
	ErrEventNotPublished    = errors.New("event is not published")
	ErrNotFound             = errors.New("not found")
	ErrNotAuthorized        = errors.New("not authorized")
	ErrConflict             = errors.New("resource already exists")

	// ErrConcurrentUpdate is reported by storage when a unit of work lost a
	// race (serialization failure, deadlock). The engine retries it.
	ErrConcurrentUpdate = errors.New("concurrent update")
	// ErrTransient is returned once the retry budget for ErrConcurrentUpdate
	// is spent. It is safe to retry the whole request.
	ErrTransient = errors.New("temporarily unavailable, retry the request")
)

// ErrPriceExceedsBase is a validation failure raised when a purchase price is
// above the event base price and no override applies.
var ErrPriceExceedsBase = &Error{Kind: ErrValidation, Msg: "price exceeds event base price"}

// Error carries a human readable message and the kind it belongs to.
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func (e *Error) Unwrap() error { return e.Kind }

// Errorf builds an error of the given kind.
func Errorf(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Invalid builds an ErrValidation error.
func Invalid(format string, args ...any) error {
	return Errorf(ErrValidation, format, args...)
}

// codes maps error kinds to stable machine-readable codes, most specific first.
var codes = []struct {
	kind error
	code string
}{
	{ErrPriceExceedsBase, "price_exceeds_base"},
	{ErrValidation, "validation_error"},
	{ErrSchedulingConflict, "scheduling_conflict"},
	{ErrCapacityExceeded, "capacity_exceeded"},
	{ErrInvalidTransition, "invalid_transition"},
	{ErrAlreadyCheckedIn, "already_checked_in"},
	{ErrEventAlreadyOccurred, "event_already_occurred"},
	{ErrEventNotPublished, "event_not_published"},
	{ErrNotFound, "not_found"},
	{ErrNotAuthorized, "not_authorized"},
	{ErrConflict, "conflict"},
	{ErrTransient, "transient"},
	{ErrConcurrentUpdate, "transient"},
}

// Code returns the machine-readable code for err, "internal_error" for
// errors outside the taxonomy and "" for nil.
func Code(err error) string {
	if err == nil {
		return ""
	}
	for _, c := range codes {
		if errors.Is(err, c.kind) {
			return c.code
		}
	}
	return "internal_error"
}
