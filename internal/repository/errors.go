// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as the
// engine and the handlers to distinguish between different failure
// scenarios without inspecting driver errors.
package repository

import (
	"errors"
	"fmt"

	"github.com/iliyamo/parish-reservations/internal/model"
)

// ErrNotFound is returned when a mass or reservation does not exist.
var ErrNotFound = errors.New("not found")

// ErrInsufficientCapacity is returned by the conditional decrement when the
// pool has no remaining units.
var ErrInsufficientCapacity = errors.New("insufficient capacity")

// ErrCapacityOverflow is returned when a release would push a pool above
// its configured total.  It means a unit is being released twice and the
// surrounding transaction must be rolled back.
var ErrCapacityOverflow = errors.New("capacity would exceed configured total")

// ErrBelowCommitted is returned when a resize would drop a pool below the
// number of units already held by reservations.
var ErrBelowCommitted = errors.New("capacity below committed reservations")

// ErrStatusMismatch is returned by a guarded status transition when the
// reservation is no longer in the expected status.
var ErrStatusMismatch = errors.New("reservation status changed")

// ErrConflict is returned when a delete cannot be performed because of
// dependent records, such as a mass that still has reservations.
var ErrConflict = errors.New("conflict")

// ErrUnknownPool is returned when a pool name does not map to a column pair.
var ErrUnknownPool = errors.New("unknown pool")

// BelowCommittedError carries the committed count of a rejected resize so
// the caller can display it.
type BelowCommittedError struct {
	Pool      model.Pool
	Requested int
	Committed int
}

func (e *BelowCommittedError) Error() string {
	return fmt.Sprintf("cannot resize %s capacity to %d: %d already committed",
		e.Pool.Label(), e.Requested, e.Committed)
}

func (e *BelowCommittedError) Unwrap() error { return ErrBelowCommitted }
