package engine

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/iliyamo/parish-reservations/internal/activity"
	"github.com/iliyamo/parish-reservations/internal/log"
	"github.com/iliyamo/parish-reservations/internal/metrics"
	"github.com/iliyamo/parish-reservations/internal/model"
	"github.com/iliyamo/parish-reservations/internal/notify"
	"github.com/iliyamo/parish-reservations/internal/repository"
)

// MaxPayloadLength caps the free text of a reservation, in characters.
const MaxPayloadLength = 2000

// deleteAttempts bounds how often a delete restarts after the reservation
// changed status between its read and its delete.
const deleteAttempts = 3

// RequestReservation takes one unit from the pool and records a PENDING
// reservation for the actor.  An exhausted pool yields ErrNoAvailableSlots,
// which is an expected outcome under contention and not a fault.
func (e *Engine) RequestReservation(ctx context.Context, actor model.Actor, massID uint64, pool model.Pool, payload string) (*model.Reservation, error) {
	const op = "request_reservation"
	payload = strings.TrimSpace(payload)
	var err error
	switch {
	case !pool.Valid():
		err = invalid("unknown pool %q", pool)
	case payload == "":
		err = invalid("content is required")
	case utf8.RuneCountInString(payload) > MaxPayloadLength:
		err = invalid("content exceeds %d characters", MaxPayloadLength)
	case actor.ID == 0:
		err = invalid("requester is required")
	}
	if err != nil {
		return nil, e.finish(ctx, op, err, nil)
	}

	res := &model.Reservation{MassID: massID, RequesterID: actor.ID, Pool: pool, Payload: payload}
	var mass *model.Mass
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := e.masses.TryDecrementTx(ctx, tx, massID, pool); err != nil {
			return err
		}
		if err := e.ledger.CreateTx(ctx, tx, res); err != nil {
			return err
		}
		if _, err := e.masses.RecomputeStatusTx(ctx, tx, massID); err != nil {
			return err
		}
		var err error
		mass, err = e.masses.GetByIDTx(ctx, tx, massID)
		return err
	})
	if err != nil {
		return nil, e.finish(ctx, op, err, func(ev *zerolog.Event) {
			ev.Uint64(log.FieldMassID, massID).Str(log.FieldPool, string(pool)).Uint64(log.FieldActorID, actor.ID)
		})
	}
	metrics.ObserveOperation(op, "ok")

	e.afterCommit(ctx, model.ReservationEvent{
		Kind:          res.Pool,
		ReservationID: res.ID,
		MassID:        res.MassID,
		RequesterID:   res.RequesterID,
		Action:        model.ActionCreated,
		Status:        res.Status,
		OccurredAt:    e.now().UTC(),
	}, notify.AdminsAnd(res.RequesterID), activity.Requested(res, mass.Title))
	return res, nil
}

// UpdateReservationStatus approves or rejects a PENDING reservation.
// Rejecting returns the unit to its pool.  A reservation that has already
// left PENDING yields ErrAlreadyFinalized so a unit is never released twice.
func (e *Engine) UpdateReservationStatus(ctx context.Context, actor model.Actor, id uint64, status model.ReservationStatus) (*model.Reservation, error) {
	const op = "update_reservation_status"
	if err := requireAdmin(actor); err != nil {
		return nil, e.finish(ctx, op, err, nil)
	}
	if status != model.StatusApproved && status != model.StatusRejected {
		return nil, e.finish(ctx, op, invalid("status must be APPROVED or REJECTED"), nil)
	}

	var res *model.Reservation
	var mass *model.Mass
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.ledger.TransitionTx(ctx, tx, id, model.StatusPending, status); err != nil {
			return err
		}
		var err error
		if res, err = e.ledger.GetByIDTx(ctx, tx, id); err != nil {
			return err
		}
		if status == model.StatusRejected {
			if err := e.masses.IncrementTx(ctx, tx, res.MassID, res.Pool); err != nil {
				return err
			}
			if _, err := e.masses.RecomputeStatusTx(ctx, tx, res.MassID); err != nil {
				return err
			}
		}
		mass, err = e.masses.GetByIDTx(ctx, tx, res.MassID)
		return err
	})
	if err != nil {
		return nil, e.finish(ctx, op, err, func(ev *zerolog.Event) {
			ev.Uint64(log.FieldReservationID, id).Str(log.FieldStatus, string(status)).Uint64(log.FieldActorID, actor.ID)
		})
	}
	metrics.ObserveOperation(op, "ok")
	e.logger.Info().
		Uint64(log.FieldReservationID, id).
		Uint64(log.FieldMassID, res.MassID).
		Str(log.FieldStatus, string(status)).
		Uint64(log.FieldActorID, actor.ID).
		Msg("reservation status updated")

	e.afterCommit(ctx, model.ReservationEvent{
		Kind:           res.Pool,
		ReservationID:  res.ID,
		MassID:         res.MassID,
		RequesterID:    res.RequesterID,
		Action:         model.ActionStatusUpdated,
		Status:         res.Status,
		PreviousStatus: model.StatusPending,
		OccurredAt:     e.now().UTC(),
	}, notify.AdminsAnd(res.RequesterID), activity.StatusChanged(res, actor, mass.Title))
	return res, nil
}

// DeleteReservation removes a reservation.  A reservation that still holds
// a unit gives it back; a REJECTED one released its unit already and
// changes no counter.  Deleting a missing reservation yields ErrNotFound.
// When a concurrent decision keeps changing the status under the delete,
// it gives up with ErrAlreadyFinalized and the caller may retry.
func (e *Engine) DeleteReservation(ctx context.Context, actor model.Actor, id uint64) error {
	const op = "delete_reservation"
	if err := requireAdmin(actor); err != nil {
		return e.finish(ctx, op, err, nil)
	}

	var res *model.Reservation
	var err error
	for attempt := 0; attempt < deleteAttempts; attempt++ {
		err = e.inTx(ctx, func(tx *sql.Tx) error {
			var err error
			if res, err = e.ledger.GetByIDTx(ctx, tx, id); err != nil {
				return err
			}
			// The row goes first and only in the status just read, so the
			// release below matches what the deleted row actually held.
			if err := e.ledger.DeleteTx(ctx, tx, id, res.Status); err != nil {
				return err
			}
			if res.Status.HoldsCapacity() {
				if err := e.masses.IncrementTx(ctx, tx, res.MassID, res.Pool); err != nil {
					return err
				}
			}
			_, err = e.masses.RecomputeStatusTx(ctx, tx, res.MassID)
			return err
		})
		if !errors.Is(err, repository.ErrStatusMismatch) {
			break
		}
		e.logger.Debug().Uint64(log.FieldReservationID, id).Int("attempt", attempt+1).
			Msg("reservation changed status during delete; retrying")
	}
	if err != nil {
		return e.finish(ctx, op, err, func(ev *zerolog.Event) {
			ev.Uint64(log.FieldReservationID, id).Uint64(log.FieldActorID, actor.ID)
		})
	}
	metrics.ObserveOperation(op, "ok")
	e.logger.Info().
		Uint64(log.FieldReservationID, id).
		Uint64(log.FieldMassID, res.MassID).
		Uint64(log.FieldActorID, actor.ID).
		Msg("reservation deleted")

	e.afterCommit(ctx, model.ReservationEvent{
		Kind:          res.Pool,
		ReservationID: res.ID,
		MassID:        res.MassID,
		RequesterID:   res.RequesterID,
		Action:        model.ActionDeleted,
		Status:        res.Status,
		OccurredAt:    e.now().UTC(),
	}, notify.AdminsAnd(res.RequesterID), activity.Deleted(res, actor))
	return nil
}

// GetReservation returns a reservation to its requester or to an admin.
func (e *Engine) GetReservation(ctx context.Context, actor model.Actor, id uint64) (*model.Reservation, error) {
	res, err := e.ledger.GetByID(ctx, id)
	if err != nil {
		return nil, e.read(ctx, "get_reservation", err)
	}
	if !actor.IsAdmin() && res.RequesterID != actor.ID {
		return nil, ErrForbidden
	}
	return res, nil
}

// ListUpcomingForUser lists the actor's reservations for masses from today
// on, soonest first.
func (e *Engine) ListUpcomingForUser(ctx context.Context, actor model.Actor, page repository.Page) (*repository.ReservationPage, error) {
	out, err := e.ledger.ListUpcomingForUser(ctx, actor.ID, e.DayStart(), page)
	if err != nil {
		return nil, e.read(ctx, "list_upcoming", err)
	}
	return out, nil
}

// ListPastForUser lists the actor's reservations for masses before today,
// most recent first.
func (e *Engine) ListPastForUser(ctx context.Context, actor model.Actor, page repository.Page) (*repository.ReservationPage, error) {
	out, err := e.ledger.ListPastForUser(ctx, actor.ID, e.DayStart(), page)
	if err != nil {
		return nil, e.read(ctx, "list_past", err)
	}
	return out, nil
}

// ListForMass lists every reservation of a mass for an administrator.
func (e *Engine) ListForMass(ctx context.Context, actor model.Actor, massID uint64) ([]model.Reservation, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if _, err := e.masses.GetByID(ctx, massID); err != nil {
		return nil, e.read(ctx, "list_for_mass", err)
	}
	out, err := e.ledger.ListForMass(ctx, massID)
	if err != nil {
		return nil, e.read(ctx, "list_for_mass", err)
	}
	return out, nil
}
