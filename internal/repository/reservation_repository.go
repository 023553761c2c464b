package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/parish-reservations/internal/model"
)

// ReservationRepo is the reservation ledger.  It stores reservations and
// answers the scoped listings; it never touches capacity counters, which
// belong to MassRepo.  Callers combine both inside one transaction.
type ReservationRepo struct {
	db  *sql.DB
	now func() time.Time
}

// NewReservationRepo returns a new ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo {
	return &ReservationRepo{db: db, now: time.Now}
}

// ReservationPage is one window of a scoped listing together with the
// total number of matching reservations.
type ReservationPage struct {
	Items    []model.ReservationDetail `json:"items"`
	Total    int                       `json:"total"`
	Page     int                       `json:"page"`
	PageSize int                       `json:"page_size"`
}

const reservationColumns = `id, mass_id, requester_id, pool, payload, status, created_at_ms, updated_at_ms`

func scanReservation(s rowScanner) (*model.Reservation, error) {
	var res model.Reservation
	var pool, status string
	var created, updated int64
	if err := s.Scan(&res.ID, &res.MassID, &res.RequesterID, &pool, &res.Payload, &status, &created, &updated); err != nil {
		return nil, err
	}
	res.Pool = model.Pool(pool)
	res.Status = model.ReservationStatus(status)
	res.CreatedAt = fromMillis(created)
	res.UpdatedAt = fromMillis(updated)
	return &res, nil
}

// CreateTx inserts a new PENDING reservation within the scope of an
// existing transaction and populates the generated ID and timestamps.  The
// caller must already have taken a capacity unit for it.
func (r *ReservationRepo) CreateTx(ctx context.Context, tx *sql.Tx, res *model.Reservation) error {
	now := toMillis(r.now())
	res.Status = model.StatusPending
	const q = `INSERT INTO reservations (mass_id, requester_id, pool, payload, status, created_at_ms, updated_at_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	result, err := tx.ExecContext(ctx, q, res.MassID, res.RequesterID, string(res.Pool), res.Payload, string(res.Status), now, now)
	if err != nil {
		return fmt.Errorf("insert reservation: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert reservation: %w", err)
	}
	res.ID = uint64(id)
	res.CreatedAt = fromMillis(now)
	res.UpdatedAt = res.CreatedAt
	return nil
}

// GetByID returns a reservation or ErrNotFound.
func (r *ReservationRepo) GetByID(ctx context.Context, id uint64) (*model.Reservation, error) {
	return r.get(ctx, r.db, id)
}

// GetByIDTx is GetByID within the caller's transaction.
func (r *ReservationRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Reservation, error) {
	return r.get(ctx, tx, id)
}

func (r *ReservationRepo) get(ctx context.Context, q queryer, id uint64) (*model.Reservation, error) {
	res, err := scanReservation(q.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	return res, nil
}

// TransitionTx moves a reservation from one status to another.  The write
// only happens when the stored status still equals from, so two concurrent
// transitions of the same reservation cannot both succeed.  It returns
// ErrNotFound when the reservation is missing and ErrStatusMismatch when
// it exists in a different status.
func (r *ReservationRepo) TransitionTx(ctx context.Context, tx *sql.Tx, id uint64, from, to model.ReservationStatus) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE reservations SET status = ?, updated_at_ms = ? WHERE id = ? AND status = ?`,
		string(to), toMillis(r.now()), id, string(from))
	if err != nil {
		return fmt.Errorf("transition reservation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition reservation: %w", err)
	}
	if n == 1 {
		return nil
	}
	if _, err := r.get(ctx, tx, id); err != nil {
		return err
	}
	return ErrStatusMismatch
}

// SetStatusTx writes a status unconditionally.  It performs no capacity
// bookkeeping and no transition checks.
func (r *ReservationRepo) SetStatusTx(ctx context.Context, tx *sql.Tx, id uint64, status model.ReservationStatus) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE reservations SET status = ?, updated_at_ms = ? WHERE id = ?`,
		string(status), toMillis(r.now()), id)
	if err != nil {
		return fmt.Errorf("set reservation status: %w", err)
	}
	return requireOneRow(res, ErrNotFound)
}

// DeleteTx removes a reservation row only while its stored status still
// equals status.  The caller decides from that status whether a unit is
// released, so a concurrent transition makes the delete fail with
// ErrStatusMismatch instead of releasing on a stale read.  A missing row
// yields ErrNotFound.
func (r *ReservationRepo) DeleteTx(ctx context.Context, tx *sql.Tx, id uint64, status model.ReservationStatus) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM reservations WHERE id = ? AND status = ?`, id, string(status))
	if err != nil {
		return fmt.Errorf("delete reservation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete reservation: %w", err)
	}
	if n == 1 {
		return nil
	}
	if _, err := r.get(ctx, tx, id); err != nil {
		return err
	}
	return ErrStatusMismatch
}

// CountHoldingTx counts the reservations of a pool that still hold a unit,
// which is every reservation that is not REJECTED.
func (r *ReservationRepo) CountHoldingTx(ctx context.Context, tx *sql.Tx, massID uint64, pool model.Pool) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reservations WHERE mass_id = ? AND pool = ? AND status <> ?`,
		massID, string(pool), string(model.StatusRejected)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count holding reservations: %w", err)
	}
	return n, nil
}

// ListForMass returns every reservation attached to a mass, oldest first.
func (r *ReservationRepo) ListForMass(ctx context.Context, massID uint64) ([]model.Reservation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE mass_id = ? ORDER BY created_at_ms ASC, id ASC`, massID)
	if err != nil {
		return nil, fmt.Errorf("list reservations for mass: %w", err)
	}
	defer rows.Close()
	list := make([]model.Reservation, 0)
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		list = append(list, *res)
	}
	return list, rows.Err()
}

// ListUpcomingForUser returns the requester's reservations for masses
// scheduled at or after dayStart, soonest first.
func (r *ReservationRepo) ListUpcomingForUser(ctx context.Context, userID uint64, dayStart time.Time, page Page) (*ReservationPage, error) {
	return r.listForUser(ctx, userID, `m.scheduled_at_ms >= ?`, `ASC`, dayStart, page)
}

// ListPastForUser returns the requester's reservations for masses
// scheduled before dayStart, most recent first.
func (r *ReservationRepo) ListPastForUser(ctx context.Context, userID uint64, dayStart time.Time, page Page) (*ReservationPage, error) {
	return r.listForUser(ctx, userID, `m.scheduled_at_ms < ?`, `DESC`, dayStart, page)
}

// listForUser runs the count and the window query for a scoped listing.
// cond and order come from the two callers above only.
func (r *ReservationRepo) listForUser(ctx context.Context, userID uint64, cond, order string, dayStart time.Time, page Page) (*ReservationPage, error) {
	page = page.Normalize()
	boundary := toMillis(dayStart)
	out := &ReservationPage{Items: make([]model.ReservationDetail, 0), Page: page.Number, PageSize: page.Size}

	countQ := `SELECT COUNT(*) FROM reservations r JOIN masses m ON m.id = r.mass_id
		WHERE r.requester_id = ? AND ` + cond
	if err := r.db.QueryRowContext(ctx, countQ, userID, boundary).Scan(&out.Total); err != nil {
		return nil, fmt.Errorf("count reservations: %w", err)
	}
	if out.Total == 0 {
		return out, nil
	}

	q := `SELECT r.id, r.mass_id, r.requester_id, r.pool, r.payload, r.status, r.created_at_ms, r.updated_at_ms,
			m.title, m.location, m.scheduled_at_ms
		FROM reservations r JOIN masses m ON m.id = r.mass_id
		WHERE r.requester_id = ? AND ` + cond + `
		ORDER BY m.scheduled_at_ms ` + order + `, r.id ` + order + `
		LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, q, userID, boundary, page.Size, page.offset())
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var d model.ReservationDetail
		var pool, status string
		var created, updated, scheduled int64
		if err := rows.Scan(&d.ID, &d.MassID, &d.RequesterID, &pool, &d.Payload, &status, &created, &updated,
			&d.MassTitle, &d.MassLocation, &scheduled); err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		d.Pool = model.Pool(pool)
		d.Status = model.ReservationStatus(status)
		d.CreatedAt = fromMillis(created)
		d.UpdatedAt = fromMillis(updated)
		d.MassScheduledAt = fromMillis(scheduled)
		out.Items = append(out.Items, d)
	}
	return out, rows.Err()
}
