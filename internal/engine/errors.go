package engine

import (
	"context"
	"errors"

	"github.com/iliyamo/parish-reservations/internal/repository"
)

// Errors returned by engine operations.  Callers match them with errors.Is;
// a rejected resize can additionally be unpacked with errors.As into
// *BelowCommittedError to read the committed count.
var (
	ErrNotFound            = repository.ErrNotFound
	ErrBelowCommitted      = repository.ErrBelowCommitted
	ErrNoAvailableSlots    = errors.New("no available slots")
	ErrAlreadyFinalized    = errors.New("reservation already finalized")
	ErrMassHasReservations = errors.New("mass still has reservations")
	ErrForbidden           = errors.New("forbidden")
	ErrInvalidInput        = errors.New("invalid input")
	// ErrAborted covers persistence faults and cancellations.  The
	// transaction was rolled back and the caller may retry.
	ErrAborted = errors.New("operation aborted, please try again")
)

// BelowCommittedError reports the committed count of a rejected resize.
type BelowCommittedError = repository.BelowCommittedError

// resultLabel names an outcome for the operations counter.
func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrNoAvailableSlots):
		return "no_slots"
	case errors.Is(err, ErrBelowCommitted):
		return "below_committed"
	case errors.Is(err, ErrAlreadyFinalized):
		return "finalized"
	case errors.Is(err, ErrMassHasReservations):
		return "conflict"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrInvalidInput):
		return "invalid"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	}
	return "aborted"
}
