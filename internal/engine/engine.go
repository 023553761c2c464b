// Package engine implements the reservation workflow on top of the mass
// store and the reservation ledger.  Every mutating operation runs in one
// database transaction; notifications and activity records are emitted
// only after that transaction has committed.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/iliyamo/parish-reservations/internal/log"
	"github.com/iliyamo/parish-reservations/internal/metrics"
	"github.com/iliyamo/parish-reservations/internal/model"
	"github.com/iliyamo/parish-reservations/internal/notify"
	"github.com/iliyamo/parish-reservations/internal/repository"
)

// Notifier receives committed reservation events.
type Notifier interface {
	Broadcast(ctx context.Context, ev model.ReservationEvent, aud notify.Audience)
}

// ActivitySink receives activity records for committed changes.
type ActivitySink interface {
	Record(ctx context.Context, recs ...model.ActivityRecord)
}

// Engine coordinates masses, reservations, notifications and activity.
type Engine struct {
	db       *sql.DB
	masses   *repository.MassRepo
	ledger   *repository.ReservationRepo
	notifier Notifier
	activity ActivitySink
	now      func() time.Time
	logger   zerolog.Logger
}

// Option customises an Engine.
type Option func(*Engine)

// WithClock replaces the wall clock used for the upcoming/past boundary and
// event timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New wires an Engine.  notifier and activity may be nil, in which case the
// corresponding side effect is skipped.
func New(db *sql.DB, masses *repository.MassRepo, ledger *repository.ReservationRepo, notifier Notifier, activity ActivitySink, opts ...Option) *Engine {
	e := &Engine{
		db:       db,
		masses:   masses,
		ledger:   ledger,
		notifier: notifier,
		activity: activity,
		now:      time.Now,
		logger:   log.WithComponent("engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// DayStart returns midnight UTC of the current day.  Masses scheduled at or
// after it are upcoming; earlier ones are past.
func (e *Engine) DayStart() time.Time {
	y, m, d := e.now().UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// inTx runs fn in a transaction.  The transaction is rolled back when fn
// fails, when ctx is cancelled before commit, or when commit fails.
func (e *Engine) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// finish translates a repository or driver error into the engine's error
// set, logs faults and records the outcome metric.
func (e *Engine) finish(ctx context.Context, op string, err error, fields func(*zerolog.Event)) error {
	err = e.translate(err)
	metrics.ObserveOperation(op, resultLabel(err))
	if err == nil || !errors.Is(err, ErrAborted) {
		return err
	}
	logger := log.WithContext(ctx, e.logger)
	ev := logger.Error().Err(err).Str(log.FieldOperation, op)
	if fields != nil {
		fields(ev)
	}
	ev.Msg("reservation operation aborted")
	return err
}

func (e *Engine) translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrInsufficientCapacity):
		return ErrNoAvailableSlots
	case errors.Is(err, repository.ErrStatusMismatch):
		return ErrAlreadyFinalized
	case errors.Is(err, repository.ErrConflict):
		return ErrMassHasReservations
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrBelowCommitted),
		errors.Is(err, ErrForbidden),
		errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrNoAvailableSlots),
		errors.Is(err, ErrAlreadyFinalized),
		errors.Is(err, ErrMassHasReservations):
		return err
	}
	// Persistence faults, capacity overflow and cancellation all end up
	// here; the transaction has already been rolled back.
	return fmt.Errorf("%w: %w", ErrAborted, err)
}

// afterCommit runs the best effort side effects.  They must not be
// cancelled by the request that triggered them, which may already be gone.
func (e *Engine) afterCommit(ctx context.Context, ev model.ReservationEvent, aud notify.Audience, recs []model.ActivityRecord) {
	ctx = context.WithoutCancel(ctx)
	if e.notifier != nil {
		e.notifier.Broadcast(ctx, ev, aud)
	}
	if e.activity != nil && len(recs) > 0 {
		e.activity.Record(ctx, recs...)
	}
}

// read translates errors of read-only operations.  They are not counted in
// the operations metric.
func (e *Engine) read(ctx context.Context, op string, err error) error {
	err = e.translate(err)
	if errors.Is(err, ErrAborted) {
		logger := log.WithContext(ctx, e.logger)
		logger.Error().Err(err).Str(log.FieldOperation, op).Msg("read failed")
	}
	return err
}

func requireAdmin(actor model.Actor) error {
	if !actor.IsAdmin() {
		return ErrForbidden
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
