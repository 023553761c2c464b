package engine

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/iliyamo/parish-reservations/internal/log"
	"github.com/iliyamo/parish-reservations/internal/metrics"
	"github.com/iliyamo/parish-reservations/internal/model"
)

// MassInput carries the editable fields of a mass.
type MassInput struct {
	Title             string    `json:"title"`
	Location          string    `json:"location"`
	ScheduledAt       time.Time `json:"scheduled_at"`
	IntentionTotal    int       `json:"intention_total"`
	ThanksgivingTotal int       `json:"thanksgiving_total"`
}

func (in *MassInput) validate() error {
	in.Title = strings.TrimSpace(in.Title)
	in.Location = strings.TrimSpace(in.Location)
	switch {
	case in.Title == "":
		return invalid("title is required")
	case len(in.Title) > 200:
		return invalid("title exceeds 200 characters")
	case len(in.Location) > 200:
		return invalid("location exceeds 200 characters")
	case in.ScheduledAt.IsZero():
		return invalid("scheduled_at is required")
	case in.IntentionTotal < 0 || in.ThanksgivingTotal < 0:
		return invalid("capacities must not be negative")
	}
	return nil
}

// CreateMass schedules a new mass with both pools fully available.
func (e *Engine) CreateMass(ctx context.Context, actor model.Actor, in MassInput) (*model.Mass, error) {
	const op = "create_mass"
	if err := requireAdmin(actor); err != nil {
		return nil, e.finish(ctx, op, err, nil)
	}
	if err := in.validate(); err != nil {
		return nil, e.finish(ctx, op, err, nil)
	}
	m := &model.Mass{
		Title:             in.Title,
		Location:          in.Location,
		ScheduledAt:       in.ScheduledAt.UTC(),
		IntentionTotal:    in.IntentionTotal,
		ThanksgivingTotal: in.ThanksgivingTotal,
	}
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		return e.masses.CreateTx(ctx, tx, m)
	})
	if err != nil {
		return nil, e.finish(ctx, op, err, func(ev *zerolog.Event) { ev.Uint64(log.FieldActorID, actor.ID) })
	}
	metrics.ObserveOperation(op, "ok")
	e.logger.Info().Uint64(log.FieldMassID, m.ID).Uint64(log.FieldActorID, actor.ID).Msg("mass created")
	return m, nil
}

// UpdateMass edits the details of a mass and resizes both pools in one
// transaction.  If either pool would drop below its committed count nothing
// is changed and a *BelowCommittedError is returned.
func (e *Engine) UpdateMass(ctx context.Context, actor model.Actor, id uint64, in MassInput) (*model.Mass, error) {
	const op = "update_mass"
	if err := requireAdmin(actor); err != nil {
		return nil, e.finish(ctx, op, err, nil)
	}
	if err := in.validate(); err != nil {
		return nil, e.finish(ctx, op, err, nil)
	}
	var m *model.Mass
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.masses.UpdateDetailsTx(ctx, tx, id, in.Title, in.Location, in.ScheduledAt.UTC()); err != nil {
			return err
		}
		if _, err := e.masses.ResizeTx(ctx, tx, id, model.PoolIntention, in.IntentionTotal); err != nil {
			return err
		}
		if _, err := e.masses.ResizeTx(ctx, tx, id, model.PoolThanksgiving, in.ThanksgivingTotal); err != nil {
			return err
		}
		if _, err := e.masses.RecomputeStatusTx(ctx, tx, id); err != nil {
			return err
		}
		var err error
		m, err = e.masses.GetByIDTx(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, e.finish(ctx, op, err, func(ev *zerolog.Event) {
			ev.Uint64(log.FieldMassID, id).Uint64(log.FieldActorID, actor.ID)
		})
	}
	metrics.ObserveOperation(op, "ok")
	e.logger.Info().Uint64(log.FieldMassID, id).Uint64(log.FieldActorID, actor.ID).Msg("mass updated")
	return m, nil
}

// ResizeMassCapacity sets a new total for one pool, keeping every held
// unit held.  A total below the committed count yields a
// *BelowCommittedError carrying that count.
func (e *Engine) ResizeMassCapacity(ctx context.Context, actor model.Actor, massID uint64, pool model.Pool, newTotal int) (*model.Mass, error) {
	const op = "resize_capacity"
	if err := requireAdmin(actor); err != nil {
		return nil, e.finish(ctx, op, err, nil)
	}
	if !pool.Valid() {
		return nil, e.finish(ctx, op, invalid("unknown pool %q", pool), nil)
	}
	if newTotal < 0 {
		return nil, e.finish(ctx, op, invalid("capacity must not be negative"), nil)
	}
	var m *model.Mass
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := e.masses.ResizeTx(ctx, tx, massID, pool, newTotal); err != nil {
			return err
		}
		if _, err := e.masses.RecomputeStatusTx(ctx, tx, massID); err != nil {
			return err
		}
		var err error
		m, err = e.masses.GetByIDTx(ctx, tx, massID)
		return err
	})
	if err != nil {
		return nil, e.finish(ctx, op, err, func(ev *zerolog.Event) {
			ev.Uint64(log.FieldMassID, massID).Str(log.FieldPool, string(pool)).Int("total", newTotal)
		})
	}
	metrics.ObserveOperation(op, "ok")
	e.logger.Info().
		Uint64(log.FieldMassID, massID).
		Str(log.FieldPool, string(pool)).
		Int("total", newTotal).
		Uint64(log.FieldActorID, actor.ID).
		Msg("mass capacity resized")
	return m, nil
}

// DeleteMass removes a mass that has no reservations.  A mass with
// reservations yields ErrMassHasReservations; remove those first.
func (e *Engine) DeleteMass(ctx context.Context, actor model.Actor, id uint64) error {
	const op = "delete_mass"
	if err := requireAdmin(actor); err != nil {
		return e.finish(ctx, op, err, nil)
	}
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		return e.masses.DeleteTx(ctx, tx, id)
	})
	if err != nil {
		return e.finish(ctx, op, err, func(ev *zerolog.Event) { ev.Uint64(log.FieldMassID, id) })
	}
	metrics.ObserveOperation(op, "ok")
	e.logger.Info().Uint64(log.FieldMassID, id).Uint64(log.FieldActorID, actor.ID).Msg("mass deleted")
	return nil
}

// GetMass returns one mass.
func (e *Engine) GetMass(ctx context.Context, id uint64) (*model.Mass, error) {
	m, err := e.masses.GetByID(ctx, id)
	if err != nil {
		return nil, e.read(ctx, "get_mass", err)
	}
	return m, nil
}

// ListMasses returns masses from today on, or every mass when includePast
// is set, earliest first.
func (e *Engine) ListMasses(ctx context.Context, includePast bool, limit int) ([]model.Mass, error) {
	from := e.DayStart()
	if includePast {
		from = time.Time{}
	}
	out, err := e.masses.List(ctx, from, limit)
	if err != nil {
		return nil, e.read(ctx, "list_masses", err)
	}
	return out, nil
}
