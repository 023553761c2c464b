package repository

import (
	"context"
	"database/sql"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iliyamo/parish-reservations/internal/database"
	"github.com/iliyamo/parish-reservations/internal/model"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "repo.db"), database.DefaultSQLiteConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(context.Background(), db, database.SQLite))
	return db
}

// inTx runs fn in a transaction and commits when it returns nil.
func inTx(t *testing.T, db *sql.DB, fn func(tx *sql.Tx) error) error {
	t.Helper()
	tx, err := db.BeginTx(context.Background(), nil)
	require.NoError(t, err)
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func createMass(t *testing.T, db *sql.DB, intentions, thanksgivings int, at time.Time) *model.Mass {
	t.Helper()
	m := &model.Mass{Title: "Sunday Mass", Location: "St. Anne", ScheduledAt: at,
		IntentionTotal: intentions, ThanksgivingTotal: thanksgivings}
	repo := NewMassRepo(db)
	require.NoError(t, inTx(t, db, func(tx *sql.Tx) error { return repo.CreateTx(context.Background(), tx, m) }))
	return m
}

func TestMassCreateDerivesStatus(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewMassRepo(db)

	open := createMass(t, db, 2, 0, time.Now())
	got, err := repo.GetByID(ctx, open.ID)
	require.NoError(t, err)
	require.Equal(t, 2, got.IntentionRemaining)
	require.Equal(t, model.MassAvailable, got.Status)

	closed := createMass(t, db, 0, 0, time.Now())
	got, err = repo.GetByID(ctx, closed.ID)
	require.NoError(t, err)
	require.Equal(t, model.MassFull, got.Status)

	_, err = repo.GetByID(ctx, 9999)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestTryDecrementStopsAtZero(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewMassRepo(db)
	m := createMass(t, db, 1, 3, time.Now())

	var remaining int
	require.NoError(t, inTx(t, db, func(tx *sql.Tx) error {
		var err error
		remaining, err = repo.TryDecrementTx(ctx, tx, m.ID, model.PoolIntention)
		return err
	}))
	require.Zero(t, remaining)

	err := inTx(t, db, func(tx *sql.Tx) error {
		_, err := repo.TryDecrementTx(ctx, tx, m.ID, model.PoolIntention)
		return err
	})
	require.ErrorIs(t, err, ErrInsufficientCapacity)

	err = inTx(t, db, func(tx *sql.Tx) error {
		_, err := repo.TryDecrementTx(ctx, tx, 4242, model.PoolIntention)
		return err
	})
	require.ErrorIs(t, err, ErrNotFound)

	err = inTx(t, db, func(tx *sql.Tx) error {
		_, err := repo.TryDecrementTx(ctx, tx, m.ID, model.Pool("CANDLES"))
		return err
	})
	require.ErrorIs(t, err, ErrUnknownPool)

	got, err := repo.GetByID(ctx, m.ID)
	require.NoError(t, err)
	require.Equal(t, 0, got.IntentionRemaining)
	require.Equal(t, 3, got.ThanksgivingRemaining, "pools are independent")
}

func TestIncrementRefusesOverflow(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewMassRepo(db)
	m := createMass(t, db, 2, 0, time.Now())

	err := inTx(t, db, func(tx *sql.Tx) error { return repo.IncrementTx(ctx, tx, m.ID, model.PoolIntention) })
	require.ErrorIs(t, err, ErrCapacityOverflow)

	require.NoError(t, inTx(t, db, func(tx *sql.Tx) error {
		if _, err := repo.TryDecrementTx(ctx, tx, m.ID, model.PoolIntention); err != nil {
			return err
		}
		return repo.IncrementTx(ctx, tx, m.ID, model.PoolIntention)
	}))
	got, err := repo.GetByID(ctx, m.ID)
	require.NoError(t, err)
	require.Equal(t, 2, got.IntentionRemaining)
}

func TestResizeGuardsCommittedUnits(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewMassRepo(db)
	m := createMass(t, db, 5, 0, time.Now())

	require.NoError(t, inTx(t, db, func(tx *sql.Tx) error {
		for i := 0; i < 3; i++ {
			if _, err := repo.TryDecrementTx(ctx, tx, m.ID, model.PoolIntention); err != nil {
				return err
			}
		}
		return nil
	}))

	err := inTx(t, db, func(tx *sql.Tx) error {
		_, err := repo.ResizeTx(ctx, tx, m.ID, model.PoolIntention, 2)
		return err
	})
	require.ErrorIs(t, err, ErrBelowCommitted)
	var below *BelowCommittedError
	require.ErrorAs(t, err, &below)
	require.Equal(t, 3, below.Committed)
	require.Equal(t, 2, below.Requested)

	var committed int
	var status model.MassStatus
	require.NoError(t, inTx(t, db, func(tx *sql.Tx) error {
		var err error
		if committed, err = repo.ResizeTx(ctx, tx, m.ID, model.PoolIntention, 3); err != nil {
			return err
		}
		status, err = repo.RecomputeStatusTx(ctx, tx, m.ID)
		return err
	}))
	require.Equal(t, 3, committed)
	require.Equal(t, model.MassFull, status)

	got, err := repo.GetByID(ctx, m.ID)
	require.NoError(t, err)
	require.Equal(t, 3, got.IntentionTotal)
	require.Equal(t, 0, got.IntentionRemaining)

	require.NoError(t, inTx(t, db, func(tx *sql.Tx) error {
		if _, err := repo.ResizeTx(ctx, tx, m.ID, model.PoolIntention, 10); err != nil {
			return err
		}
		status, err = repo.RecomputeStatusTx(ctx, tx, m.ID)
		return err
	}))
	require.Equal(t, model.MassAvailable, status)
	got, err = repo.GetByID(ctx, m.ID)
	require.NoError(t, err)
	require.Equal(t, 7, got.IntentionRemaining)

	err = inTx(t, db, func(tx *sql.Tx) error {
		_, err := repo.ResizeTx(ctx, tx, 31337, model.PoolIntention, 1)
		return err
	})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMassDeleteRefusesWithReservations(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	masses := NewMassRepo(db)
	ledger := NewReservationRepo(db)
	m := createMass(t, db, 1, 0, time.Now())

	require.NoError(t, inTx(t, db, func(tx *sql.Tx) error {
		return ledger.CreateTx(ctx, tx, &model.Reservation{MassID: m.ID, RequesterID: 7, Pool: model.PoolIntention, Payload: "for Anna"})
	}))
	err := inTx(t, db, func(tx *sql.Tx) error { return masses.DeleteTx(ctx, tx, m.ID) })
	require.ErrorIs(t, err, ErrConflict)

	empty := createMass(t, db, 1, 1, time.Now())
	require.NoError(t, inTx(t, db, func(tx *sql.Tx) error { return masses.DeleteTx(ctx, tx, empty.ID) }))
	err = inTx(t, db, func(tx *sql.Tx) error { return masses.DeleteTx(ctx, tx, empty.ID) })
	require.ErrorIs(t, err, ErrNotFound)
}

func TestTransitionIsGuarded(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	ledger := NewReservationRepo(db)
	m := createMass(t, db, 1, 0, time.Now())

	res := &model.Reservation{MassID: m.ID, RequesterID: 7, Pool: model.PoolIntention, Payload: "for Anna"}
	require.NoError(t, inTx(t, db, func(tx *sql.Tx) error { return ledger.CreateTx(ctx, tx, res) }))
	require.Equal(t, model.StatusPending, res.Status)
	require.NotZero(t, res.ID)

	require.NoError(t, inTx(t, db, func(tx *sql.Tx) error {
		return ledger.TransitionTx(ctx, tx, res.ID, model.StatusPending, model.StatusApproved)
	}))
	err := inTx(t, db, func(tx *sql.Tx) error {
		return ledger.TransitionTx(ctx, tx, res.ID, model.StatusPending, model.StatusRejected)
	})
	require.ErrorIs(t, err, ErrStatusMismatch)

	err = inTx(t, db, func(tx *sql.Tx) error {
		return ledger.TransitionTx(ctx, tx, 999, model.StatusPending, model.StatusRejected)
	})
	require.ErrorIs(t, err, ErrNotFound)

	got, err := ledger.GetByID(ctx, res.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusApproved, got.Status)
	require.Equal(t, "for Anna", got.Payload)

	require.NoError(t, inTx(t, db, func(tx *sql.Tx) error {
		return ledger.SetStatusTx(ctx, tx, res.ID, model.StatusRejected)
	}))
	require.NoError(t, inTx(t, db, func(tx *sql.Tx) error {
		n, err := ledger.CountHoldingTx(ctx, tx, m.ID, model.PoolIntention)
		require.Zero(t, n)
		return err
	}))

	err = inTx(t, db, func(tx *sql.Tx) error { return ledger.DeleteTx(ctx, tx, res.ID, model.StatusPending) })
	require.ErrorIs(t, err, ErrStatusMismatch)
	_, err = ledger.GetByID(ctx, res.ID)
	require.NoError(t, err)

	require.NoError(t, inTx(t, db, func(tx *sql.Tx) error { return ledger.DeleteTx(ctx, tx, res.ID, model.StatusRejected) }))
	_, err = ledger.GetByID(ctx, res.ID)
	require.ErrorIs(t, err, ErrNotFound)
	err = inTx(t, db, func(tx *sql.Tx) error { return ledger.DeleteTx(ctx, tx, res.ID, model.StatusRejected) })
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListUpcomingAndPast(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	ledger := NewReservationRepo(db)

	today := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	yesterday := createMass(t, db, 5, 5, today.Add(-14*time.Hour))
	morning := createMass(t, db, 5, 5, today.Add(8*time.Hour))
	nextWeek := createMass(t, db, 5, 5, today.Add(7*24*time.Hour))

	for _, id := range []uint64{nextWeek.ID, yesterday.ID, morning.ID} {
		massID := id
		require.NoError(t, inTx(t, db, func(tx *sql.Tx) error {
			return ledger.CreateTx(ctx, tx, &model.Reservation{MassID: massID, RequesterID: 1, Pool: model.PoolThanksgiving, Payload: "thanks"})
		}))
	}
	require.NoError(t, inTx(t, db, func(tx *sql.Tx) error {
		return ledger.CreateTx(ctx, tx, &model.Reservation{MassID: morning.ID, RequesterID: 2, Pool: model.PoolIntention, Payload: "other user"})
	}))

	up, err := ledger.ListUpcomingForUser(ctx, 1, today, Page{})
	require.NoError(t, err)
	require.Equal(t, 2, up.Total)
	require.Len(t, up.Items, 2)
	require.Equal(t, morning.ID, up.Items[0].MassID)
	require.Equal(t, nextWeek.ID, up.Items[1].MassID)
	require.Equal(t, "St. Anne", up.Items[0].MassLocation)
	require.Equal(t, 20, up.PageSize)

	past, err := ledger.ListPastForUser(ctx, 1, today, Page{})
	require.NoError(t, err)
	require.Equal(t, 1, past.Total)
	require.Equal(t, yesterday.ID, past.Items[0].MassID)

	second, err := ledger.ListUpcomingForUser(ctx, 1, today, Page{Number: 2, Size: 1})
	require.NoError(t, err)
	require.Equal(t, 2, second.Total)
	require.Len(t, second.Items, 1)
	require.Equal(t, nextWeek.ID, second.Items[0].MassID)

	forMass, err := ledger.ListForMass(ctx, morning.ID)
	require.NoError(t, err)
	require.Len(t, forMass, 2)
}

func TestPageNormalize(t *testing.T) {
	require.Equal(t, Page{Number: 1, Size: 20}, Page{}.Normalize())
	require.Equal(t, Page{Number: 3, Size: 100}, Page{Number: 3, Size: 500}.Normalize())
	require.Equal(t, 40, Page{Number: 3, Size: 20}.offset())

	huge := Page{Number: math.MaxInt, Size: 100}.Normalize()
	require.Equal(t, maxPageNumber, huge.Number)
	require.Positive(t, huge.offset())
}

func TestHugePageNumberListsNothing(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	ledger := NewReservationRepo(db)
	m := createMass(t, db, 5, 5, time.Now().Add(48*time.Hour))
	require.NoError(t, inTx(t, db, func(tx *sql.Tx) error {
		return ledger.CreateTx(ctx, tx, &model.Reservation{MassID: m.ID, RequesterID: 1, Pool: model.PoolIntention, Payload: "for Jan"})
	}))

	out, err := ledger.ListUpcomingForUser(ctx, 1, time.Now().Add(-24*time.Hour), Page{Number: math.MaxInt, Size: 50})
	require.NoError(t, err)
	require.Equal(t, 1, out.Total)
	require.Empty(t, out.Items)
	require.Equal(t, maxPageNumber, out.Page)
}

func TestActivityAppendAndList(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewActivityRepo(db)

	records := []model.ActivityRecord{
		{ActorID: 1, Audience: model.AudienceSelf, Description: "You requested a mass intention", EntityType: "reservation", EntityID: 10},
		{ActorID: 1, Audience: model.AudienceAdmin, Description: "User 1 requested a mass intention", EntityType: "reservation", EntityID: 10},
		{ActorID: 2, Audience: model.AudienceSelf, Description: "You requested a thanksgiving", EntityType: "reservation", EntityID: 11},
	}
	for i := range records {
		require.NoError(t, repo.Append(ctx, &records[i]))
		require.NotZero(t, records[i].ID)
	}

	mine, err := repo.List(ctx, ActivityQuery{ActorID: 1, Audience: model.AudienceSelf})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	require.Equal(t, "You requested a mass intention", mine[0].Description)

	all, err := repo.List(ctx, ActivityQuery{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, records[2].ID, all[0].ID, "newest first")

	older, err := repo.List(ctx, ActivityQuery{BeforeID: records[2].ID, Limit: 1})
	require.NoError(t, err)
	require.Len(t, older, 1)
	require.Equal(t, records[1].ID, older[0].ID)
}
