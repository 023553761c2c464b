package engine

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/parish-reservations/internal/activity"
	"github.com/iliyamo/parish-reservations/internal/database"
	"github.com/iliyamo/parish-reservations/internal/model"
	"github.com/iliyamo/parish-reservations/internal/notify"
	"github.com/iliyamo/parish-reservations/internal/repository"
)

var (
	admin = model.Actor{ID: 1, Role: model.RoleAdmin}
	alice = model.Actor{ID: 10, Role: model.RoleParishioner}
	bob   = model.Actor{ID: 11, Role: model.RoleParishioner}
)

type broadcast struct {
	ev  model.ReservationEvent
	aud notify.Audience
}

type captureNotifier struct {
	mu  sync.Mutex
	got []broadcast
}

func (c *captureNotifier) Broadcast(_ context.Context, ev model.ReservationEvent, aud notify.Audience) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, broadcast{ev: ev, aud: aud})
}

func (c *captureNotifier) events() []broadcast {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]broadcast(nil), c.got...)
}

type fixture struct {
	db       *sql.DB
	engine   *Engine
	notifier *captureNotifier
	activity *repository.ActivityRepo
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "engine.db"), database.DefaultSQLiteConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(context.Background(), db, database.SQLite))

	f := &fixture{
		db:       db,
		notifier: &captureNotifier{},
		activity: repository.NewActivityRepo(db),
		now:      time.Date(2026, 5, 3, 15, 0, 0, 0, time.UTC),
	}
	f.engine = New(db, repository.NewMassRepo(db), repository.NewReservationRepo(db),
		f.notifier, activity.NewRecorder(f.activity), WithClock(func() time.Time { return f.now }))
	return f
}

func (f *fixture) mass(t *testing.T, intentions, thanksgivings int) *model.Mass {
	t.Helper()
	m, err := f.engine.CreateMass(context.Background(), admin, MassInput{
		Title:             "Sunday Mass",
		Location:          "St. Joseph",
		ScheduledAt:       f.now.Add(48 * time.Hour),
		IntentionTotal:    intentions,
		ThanksgivingTotal: thanksgivings,
	})
	require.NoError(t, err)
	return m
}

func (f *fixture) requireConsistent(t *testing.T, massID uint64) *model.Mass {
	t.Helper()
	report, err := f.engine.VerifyMass(context.Background(), massID)
	require.NoError(t, err)
	require.True(t, report.Consistent, "invariant report: %+v", report)
	m, err := f.engine.GetMass(context.Background(), massID)
	require.NoError(t, err)
	return m
}

func TestScenarioRejectFreesSlotForRetry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.mass(t, 1, 0)

	resA, err := f.engine.RequestReservation(ctx, alice, m.ID, model.PoolIntention, "For the soul of Jan")
	require.NoError(t, err)
	require.Equal(t, model.StatusPending, resA.Status)
	got := f.requireConsistent(t, m.ID)
	require.Equal(t, 0, got.IntentionRemaining)
	require.Equal(t, model.MassFull, got.Status)

	_, err = f.engine.RequestReservation(ctx, bob, m.ID, model.PoolIntention, "For my family")
	require.ErrorIs(t, err, ErrNoAvailableSlots)

	_, err = f.engine.UpdateReservationStatus(ctx, admin, resA.ID, model.StatusRejected)
	require.NoError(t, err)
	got = f.requireConsistent(t, m.ID)
	require.Equal(t, 1, got.IntentionRemaining)
	require.Equal(t, model.MassAvailable, got.Status)

	resB, err := f.engine.RequestReservation(ctx, bob, m.ID, model.PoolIntention, "For my family")
	require.NoError(t, err)
	require.Equal(t, bob.ID, resB.RequesterID)
	f.requireConsistent(t, m.ID)
}

func TestStatusStaysAvailableWhileOtherPoolHasRoom(t *testing.T) {
	f := newFixture(t)
	m := f.mass(t, 1, 2)

	_, err := f.engine.RequestReservation(context.Background(), alice, m.ID, model.PoolIntention, "intention")
	require.NoError(t, err)
	got := f.requireConsistent(t, m.ID)
	require.Equal(t, 0, got.IntentionRemaining)
	require.Equal(t, 2, got.ThanksgivingRemaining)
	require.Equal(t, model.MassAvailable, got.Status)
}

func TestConcurrentRequestsNeverOverbook(t *testing.T) {
	f := newFixture(t)
	const capacity, callers = 5, 25
	m := f.mass(t, capacity, 0)

	var ok, full atomic.Int32
	var g errgroup.Group
	for i := 0; i < callers; i++ {
		actor := model.Actor{ID: uint64(100 + i), Role: model.RoleParishioner}
		g.Go(func() error {
			_, err := f.engine.RequestReservation(context.Background(), actor, m.ID, model.PoolIntention, "intention")
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, ErrNoAvailableSlots):
				full.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	require.Equal(t, int32(capacity), ok.Load())
	require.Equal(t, int32(callers-capacity), full.Load())
	got := f.requireConsistent(t, m.ID)
	require.Zero(t, got.IntentionRemaining)

	list, err := f.engine.ListForMass(context.Background(), admin, m.ID)
	require.NoError(t, err)
	require.Len(t, list, capacity)
}

func TestConcurrentRejectsReleaseOnce(t *testing.T) {
	f := newFixture(t)
	m := f.mass(t, 1, 0)
	res, err := f.engine.RequestReservation(context.Background(), alice, m.ID, model.PoolIntention, "intention")
	require.NoError(t, err)

	var wins, finalized atomic.Int32
	var g errgroup.Group
	for i := 0; i < 6; i++ {
		g.Go(func() error {
			_, err := f.engine.UpdateReservationStatus(context.Background(), admin, res.ID, model.StatusRejected)
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, ErrAlreadyFinalized):
				finalized.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.Equal(t, int32(1), wins.Load())
	require.Equal(t, int32(5), finalized.Load())

	got := f.requireConsistent(t, m.ID)
	require.Equal(t, 1, got.IntentionRemaining)
}

func TestConcurrentRejectAndDeleteReleaseOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.mass(t, 5, 0)
	_, err := f.engine.RequestReservation(ctx, bob, m.ID, model.PoolIntention, "kept")
	require.NoError(t, err)

	for round := 0; round < 10; round++ {
		res, err := f.engine.RequestReservation(ctx, alice, m.ID, model.PoolIntention, "raced")
		require.NoError(t, err)

		var g errgroup.Group
		g.Go(func() error {
			_, err := f.engine.UpdateReservationStatus(ctx, admin, res.ID, model.StatusRejected)
			if err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrAlreadyFinalized) {
				return nil
			}
			return err
		})
		g.Go(func() error {
			return f.engine.DeleteReservation(ctx, admin, res.ID)
		})
		require.NoError(t, g.Wait())

		_, err = f.engine.GetReservation(ctx, admin, res.ID)
		require.ErrorIs(t, err, ErrNotFound)
		got := f.requireConsistent(t, m.ID)
		require.Equal(t, 4, got.IntentionRemaining, "round %d: only the kept reservation holds a unit", round)
	}
}

func TestConcurrentDeletesReleaseOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.mass(t, 2, 0)
	res, err := f.engine.RequestReservation(ctx, alice, m.ID, model.PoolIntention, "intention")
	require.NoError(t, err)
	_, err = f.engine.RequestReservation(ctx, bob, m.ID, model.PoolIntention, "intention")
	require.NoError(t, err)

	var wins, missing atomic.Int32
	var g errgroup.Group
	for i := 0; i < 6; i++ {
		g.Go(func() error {
			err := f.engine.DeleteReservation(ctx, admin, res.ID)
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, ErrNotFound):
				missing.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.Equal(t, int32(1), wins.Load())
	require.Equal(t, int32(5), missing.Load())

	got := f.requireConsistent(t, m.ID)
	require.Equal(t, 1, got.IntentionRemaining)
}

func TestFinalizedReservationCannotBeUpdated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.mass(t, 2, 0)
	res, err := f.engine.RequestReservation(ctx, alice, m.ID, model.PoolIntention, "intention")
	require.NoError(t, err)

	approved, err := f.engine.UpdateReservationStatus(ctx, admin, res.ID, model.StatusApproved)
	require.NoError(t, err)
	require.Equal(t, model.StatusApproved, approved.Status)
	got := f.requireConsistent(t, m.ID)
	require.Equal(t, 1, got.IntentionRemaining, "approval keeps the unit held")

	_, err = f.engine.UpdateReservationStatus(ctx, admin, res.ID, model.StatusRejected)
	require.ErrorIs(t, err, ErrAlreadyFinalized)
	_, err = f.engine.UpdateReservationStatus(ctx, admin, res.ID, model.StatusApproved)
	require.ErrorIs(t, err, ErrAlreadyFinalized)
	_, err = f.engine.UpdateReservationStatus(ctx, admin, res.ID, model.StatusPending)
	require.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.engine.UpdateReservationStatus(ctx, admin, 777, model.StatusApproved)
	require.ErrorIs(t, err, ErrNotFound)

	got = f.requireConsistent(t, m.ID)
	require.Equal(t, 1, got.IntentionRemaining)
}

func TestDeleteReleasesOnlyHeldUnits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.mass(t, 0, 2)

	rejected, err := f.engine.RequestReservation(ctx, alice, m.ID, model.PoolThanksgiving, "thanks")
	require.NoError(t, err)
	approved, err := f.engine.RequestReservation(ctx, bob, m.ID, model.PoolThanksgiving, "thanks")
	require.NoError(t, err)
	got := f.requireConsistent(t, m.ID)
	require.Equal(t, model.MassFull, got.Status)

	_, err = f.engine.UpdateReservationStatus(ctx, admin, rejected.ID, model.StatusRejected)
	require.NoError(t, err)
	_, err = f.engine.UpdateReservationStatus(ctx, admin, approved.ID, model.StatusApproved)
	require.NoError(t, err)
	require.Equal(t, 1, f.requireConsistent(t, m.ID).ThanksgivingRemaining)

	require.NoError(t, f.engine.DeleteReservation(ctx, admin, rejected.ID))
	require.Equal(t, 1, f.requireConsistent(t, m.ID).ThanksgivingRemaining, "a rejected reservation released its unit already")

	require.NoError(t, f.engine.DeleteReservation(ctx, admin, approved.ID))
	got = f.requireConsistent(t, m.ID)
	require.Equal(t, 2, got.ThanksgivingRemaining)
	require.Equal(t, model.MassAvailable, got.Status)

	require.ErrorIs(t, f.engine.DeleteReservation(ctx, admin, approved.ID), ErrNotFound)
	require.Equal(t, 2, f.requireConsistent(t, m.ID).ThanksgivingRemaining)
}

func TestResizeRefusesBelowCommitted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.mass(t, 5, 0)
	for i := 0; i < 3; i++ {
		_, err := f.engine.RequestReservation(ctx, model.Actor{ID: uint64(50 + i)}, m.ID, model.PoolIntention, "intention")
		require.NoError(t, err)
	}

	_, err := f.engine.ResizeMassCapacity(ctx, admin, m.ID, model.PoolIntention, 2)
	require.ErrorIs(t, err, ErrBelowCommitted)
	var below *BelowCommittedError
	require.True(t, errors.As(err, &below))
	require.Equal(t, 3, below.Committed)

	resized, err := f.engine.ResizeMassCapacity(ctx, admin, m.ID, model.PoolIntention, 3)
	require.NoError(t, err)
	require.Equal(t, 3, resized.IntentionTotal)
	require.Equal(t, 0, resized.IntentionRemaining)
	require.Equal(t, model.MassFull, resized.Status)
	f.requireConsistent(t, m.ID)

	grown, err := f.engine.ResizeMassCapacity(ctx, admin, m.ID, model.PoolIntention, 8)
	require.NoError(t, err)
	require.Equal(t, 5, grown.IntentionRemaining)
	require.Equal(t, model.MassAvailable, grown.Status)

	_, err = f.engine.ResizeMassCapacity(ctx, admin, m.ID, model.PoolIntention, -1)
	require.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.engine.ResizeMassCapacity(ctx, admin, 999, model.PoolIntention, 1)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateMassIsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.mass(t, 2, 2)
	_, err := f.engine.RequestReservation(ctx, alice, m.ID, model.PoolThanksgiving, "thanks")
	require.NoError(t, err)

	_, err = f.engine.UpdateMass(ctx, admin, m.ID, MassInput{
		Title: "Renamed", Location: "Cathedral", ScheduledAt: m.ScheduledAt,
		IntentionTotal: 4, ThanksgivingTotal: 0,
	})
	var below *BelowCommittedError
	require.ErrorAs(t, err, &below)
	require.Equal(t, model.PoolThanksgiving, below.Pool)
	require.Equal(t, 1, below.Committed)

	got := f.requireConsistent(t, m.ID)
	require.Equal(t, "Sunday Mass", got.Title)
	require.Equal(t, 2, got.IntentionTotal)

	updated, err := f.engine.UpdateMass(ctx, admin, m.ID, MassInput{
		Title: "Renamed", Location: "Cathedral", ScheduledAt: m.ScheduledAt,
		IntentionTotal: 4, ThanksgivingTotal: 1,
	})
	require.NoError(t, err)
	require.Equal(t, "Renamed", updated.Title)
	require.Equal(t, 4, updated.IntentionRemaining)
	require.Equal(t, 0, updated.ThanksgivingRemaining)
	require.Equal(t, model.MassAvailable, updated.Status)
	f.requireConsistent(t, m.ID)
}

func TestDeleteMass(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	busy := f.mass(t, 1, 0)
	_, err := f.engine.RequestReservation(ctx, alice, busy.ID, model.PoolIntention, "intention")
	require.NoError(t, err)
	require.ErrorIs(t, f.engine.DeleteMass(ctx, admin, busy.ID), ErrMassHasReservations)

	empty := f.mass(t, 1, 1)
	require.NoError(t, f.engine.DeleteMass(ctx, admin, empty.ID))
	_, err = f.engine.GetMass(ctx, empty.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAdminOperationsRequireAdminRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.mass(t, 1, 0)
	res, err := f.engine.RequestReservation(ctx, alice, m.ID, model.PoolIntention, "intention")
	require.NoError(t, err)

	_, err = f.engine.UpdateReservationStatus(ctx, alice, res.ID, model.StatusApproved)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.ErrorIs(t, f.engine.DeleteReservation(ctx, alice, res.ID), ErrForbidden)
	_, err = f.engine.ResizeMassCapacity(ctx, alice, m.ID, model.PoolIntention, 3)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.engine.CreateMass(ctx, alice, MassInput{Title: "x", ScheduledAt: f.now})
	assert.ErrorIs(t, err, ErrForbidden)
	assert.ErrorIs(t, f.engine.DeleteMass(ctx, alice, m.ID), ErrForbidden)
	_, err = f.engine.ListForMass(ctx, alice, m.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.engine.GetReservation(ctx, bob, res.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	own, err := f.engine.GetReservation(ctx, alice, res.ID)
	require.NoError(t, err)
	assert.Equal(t, "intention", own.Payload)
	_, err = f.engine.GetReservation(ctx, admin, res.ID)
	assert.NoError(t, err)

	f.requireConsistent(t, m.ID)
}

func TestRequestValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.mass(t, 1, 1)

	_, err := f.engine.RequestReservation(ctx, alice, m.ID, model.Pool("CANDLE"), "x")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.engine.RequestReservation(ctx, alice, m.ID, model.PoolIntention, "   ")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.engine.RequestReservation(ctx, alice, 4040, model.PoolIntention, "x")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.engine.CreateMass(ctx, admin, MassInput{Title: "", ScheduledAt: f.now})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.engine.CreateMass(ctx, admin, MassInput{Title: "Vespers", ScheduledAt: f.now, IntentionTotal: -1})
	assert.ErrorIs(t, err, ErrInvalidInput)

	got := f.requireConsistent(t, m.ID)
	assert.Equal(t, 1, got.IntentionRemaining)
	assert.Empty(t, f.notifier.events(), "failed operations notify nobody")
}

func TestCancelledRequestRollsBack(t *testing.T) {
	f := newFixture(t)
	m := f.mass(t, 1, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.engine.RequestReservation(ctx, alice, m.ID, model.PoolIntention, "intention")
	require.ErrorIs(t, err, ErrAborted)

	got := f.requireConsistent(t, m.ID)
	require.Equal(t, 1, got.IntentionRemaining)
	list, err := f.engine.ListForMass(context.Background(), admin, m.ID)
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestSideEffectsFollowCommit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.mass(t, 2, 0)

	res, err := f.engine.RequestReservation(ctx, alice, m.ID, model.PoolIntention, "intention")
	require.NoError(t, err)
	_, err = f.engine.UpdateReservationStatus(ctx, admin, res.ID, model.StatusApproved)
	require.NoError(t, err)
	require.NoError(t, f.engine.DeleteReservation(ctx, admin, res.ID))

	events := f.notifier.events()
	require.Len(t, events, 3)
	assert.Equal(t, model.ActionCreated, events[0].ev.Action)
	assert.Equal(t, model.ActionStatusUpdated, events[1].ev.Action)
	assert.Equal(t, model.StatusApproved, events[1].ev.Status)
	assert.Equal(t, model.StatusPending, events[1].ev.PreviousStatus)
	assert.Equal(t, model.ActionDeleted, events[2].ev.Action)
	assert.Equal(t, model.StatusApproved, events[2].ev.Status)
	for _, b := range events {
		assert.Equal(t, model.PoolIntention, b.ev.Kind)
		assert.True(t, b.aud.Match(alice.ID, alice.Role))
		assert.True(t, b.aud.Match(99, model.RoleAdmin))
		assert.False(t, b.aud.Match(bob.ID, bob.Role))
	}

	self, err := f.activity.List(ctx, repository.ActivityQuery{ActorID: alice.ID, Audience: model.AudienceSelf})
	require.NoError(t, err)
	require.Len(t, self, 2)
	assert.Equal(t, "Your mass intention for Sunday Mass was approved.", self[0].Description)
	assert.Equal(t, "You requested a mass intention for Sunday Mass.", self[1].Description)

	admins, err := f.activity.List(ctx, repository.ActivityQuery{Audience: model.AudienceAdmin})
	require.NoError(t, err)
	require.Len(t, admins, 3)
}

func TestUpcomingAndPastUseUTCDayBoundary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	early, err := f.engine.CreateMass(ctx, admin, MassInput{Title: "Lauds", ScheduledAt: f.now.Add(-14 * time.Hour), IntentionTotal: 1})
	require.NoError(t, err)
	yesterday, err := f.engine.CreateMass(ctx, admin, MassInput{Title: "Compline", ScheduledAt: f.now.Add(-16 * time.Hour), IntentionTotal: 1})
	require.NoError(t, err)
	later := f.mass(t, 1, 0)

	for _, id := range []uint64{early.ID, yesterday.ID, later.ID} {
		_, err := f.engine.RequestReservation(ctx, alice, id, model.PoolIntention, "intention")
		require.NoError(t, err)
	}

	up, err := f.engine.ListUpcomingForUser(ctx, alice, repository.Page{})
	require.NoError(t, err)
	require.Equal(t, 2, up.Total)
	assert.Equal(t, early.ID, up.Items[0].MassID, "earlier today still counts as upcoming")
	assert.Equal(t, later.ID, up.Items[1].MassID)

	past, err := f.engine.ListPastForUser(ctx, alice, repository.Page{})
	require.NoError(t, err)
	require.Equal(t, 1, past.Total)
	assert.Equal(t, "Compline", past.Items[0].MassTitle)

	masses, err := f.engine.ListMasses(ctx, false, 0)
	require.NoError(t, err)
	require.Len(t, masses, 2)
	all, err := f.engine.ListMasses(ctx, true, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
}
