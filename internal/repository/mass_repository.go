// Package repository contains data access logic.  This file implements the
// event store: masses and their two capacity pools.  Every counter change
// is a single conditional UPDATE so that the check and the write are one
// indivisible step from the database's point of view.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/parish-reservations/internal/model"
)

// MassRepo manages persistence for masses.
type MassRepo struct {
	db  *sql.DB
	now func() time.Time
}

// NewMassRepo constructs a MassRepo with the given DB handle.
func NewMassRepo(db *sql.DB) *MassRepo {
	return &MassRepo{db: db, now: time.Now}
}

// DB exposes the underlying sql.DB so callers can begin transactions
// spanning multiple repositories.
func (r *MassRepo) DB() *sql.DB {
	return r.db
}

// poolColumns maps a pool to its (total, remaining) column names.  Column
// names cannot be bound as parameters, so they come from this fixed set only.
func poolColumns(p model.Pool) (string, string, error) {
	switch p {
	case model.PoolIntention:
		return "intention_total", "intention_remaining", nil
	case model.PoolThanksgiving:
		return "thanksgiving_total", "thanksgiving_remaining", nil
	}
	return "", "", fmt.Errorf("%w: %q", ErrUnknownPool, p)
}

const massColumns = `id, title, location, scheduled_at_ms,
	intention_total, intention_remaining, thanksgiving_total, thanksgiving_remaining,
	status, created_at_ms, updated_at_ms`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMass(s rowScanner) (*model.Mass, error) {
	var m model.Mass
	var scheduled, created, updated int64
	var status string
	if err := s.Scan(&m.ID, &m.Title, &m.Location, &scheduled,
		&m.IntentionTotal, &m.IntentionRemaining, &m.ThanksgivingTotal, &m.ThanksgivingRemaining,
		&status, &created, &updated); err != nil {
		return nil, err
	}
	m.ScheduledAt = fromMillis(scheduled)
	m.CreatedAt = fromMillis(created)
	m.UpdatedAt = fromMillis(updated)
	m.Status = model.MassStatus(status)
	return &m, nil
}

// CreateTx inserts a new mass.  Remaining counters start at the totals and
// the status is derived from them.  The generated ID and timestamps are
// populated on m.
func (r *MassRepo) CreateTx(ctx context.Context, tx *sql.Tx, m *model.Mass) error {
	now := r.now().UTC()
	m.IntentionRemaining = m.IntentionTotal
	m.ThanksgivingRemaining = m.ThanksgivingTotal
	m.Status = model.DeriveMassStatus(m.IntentionRemaining, m.ThanksgivingRemaining)
	const q = `INSERT INTO masses (title, location, scheduled_at_ms,
		intention_total, intention_remaining, thanksgiving_total, thanksgiving_remaining,
		status, created_at_ms, updated_at_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, q, m.Title, m.Location, toMillis(m.ScheduledAt),
		m.IntentionTotal, m.IntentionRemaining, m.ThanksgivingTotal, m.ThanksgivingRemaining,
		string(m.Status), toMillis(now), toMillis(now))
	if err != nil {
		return fmt.Errorf("insert mass: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert mass: %w", err)
	}
	m.ID = uint64(id)
	m.ScheduledAt = fromMillis(toMillis(m.ScheduledAt))
	m.CreatedAt = fromMillis(toMillis(now))
	m.UpdatedAt = m.CreatedAt
	return nil
}

// GetByID returns a mass or ErrNotFound.
func (r *MassRepo) GetByID(ctx context.Context, id uint64) (*model.Mass, error) {
	return r.get(ctx, r.db, id)
}

// GetByIDTx is GetByID within the caller's transaction.
func (r *MassRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Mass, error) {
	return r.get(ctx, tx, id)
}

func (r *MassRepo) get(ctx context.Context, q queryer, id uint64) (*model.Mass, error) {
	m, err := scanMass(q.QueryRowContext(ctx, `SELECT `+massColumns+` FROM masses WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get mass: %w", err)
	}
	return m, nil
}

// List returns masses scheduled at or after from, earliest first.  A zero
// from lists every mass.
func (r *MassRepo) List(ctx context.Context, from time.Time, limit int) ([]model.Mass, error) {
	if limit <= 0 || limit > maxPageSize {
		limit = maxPageSize
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+massColumns+` FROM masses WHERE scheduled_at_ms >= ? ORDER BY scheduled_at_ms ASC, id ASC LIMIT ?`,
		toMillis(from), limit)
	if err != nil {
		return nil, fmt.Errorf("list masses: %w", err)
	}
	defer rows.Close()
	masses := make([]model.Mass, 0)
	for rows.Next() {
		m, err := scanMass(rows)
		if err != nil {
			return nil, fmt.Errorf("scan mass: %w", err)
		}
		masses = append(masses, *m)
	}
	return masses, rows.Err()
}

// UpdateDetailsTx changes the descriptive fields of a mass.  Capacity is
// never touched here; use ResizeTx for that.
func (r *MassRepo) UpdateDetailsTx(ctx context.Context, tx *sql.Tx, id uint64, title, location string, scheduledAt time.Time) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE masses SET title = ?, location = ?, scheduled_at_ms = ?, updated_at_ms = ? WHERE id = ?`,
		title, location, toMillis(scheduledAt), toMillis(r.now()), id)
	if err != nil {
		return fmt.Errorf("update mass: %w", err)
	}
	return requireOneRow(res, ErrNotFound)
}

// DeleteTx removes a mass that no reservation references.  It returns
// ErrConflict when reservations exist and ErrNotFound when the mass does
// not.
func (r *MassRepo) DeleteTx(ctx context.Context, tx *sql.Tx, id uint64) error {
	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM reservations WHERE mass_id = ?`, id).Scan(&n); err != nil {
		return fmt.Errorf("count reservations: %w", err)
	}
	if n > 0 {
		return ErrConflict
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM masses WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete mass: %w", err)
	}
	return requireOneRow(res, ErrNotFound)
}

// TryDecrementTx takes one unit from the pool and returns the new remaining
// count.  The decrement is a single conditional UPDATE, so two concurrent
// callers can never both take the last unit.  Zero affected rows means
// either the mass does not exist (ErrNotFound) or the pool is exhausted
// (ErrInsufficientCapacity).
func (r *MassRepo) TryDecrementTx(ctx context.Context, tx *sql.Tx, id uint64, pool model.Pool) (int, error) {
	_, remCol, err := poolColumns(pool)
	if err != nil {
		return 0, err
	}
	q := `UPDATE masses SET ` + remCol + ` = ` + remCol + ` - 1, updated_at_ms = ?
		WHERE id = ? AND ` + remCol + ` > 0`
	res, err := tx.ExecContext(ctx, q, toMillis(r.now()), id)
	if err != nil {
		return 0, fmt.Errorf("decrement %s: %w", remCol, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("decrement %s: %w", remCol, err)
	}
	if n == 0 {
		ok, err := r.exists(ctx, tx, id)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, ErrNotFound
		}
		return 0, ErrInsufficientCapacity
	}
	var remaining int
	if err := tx.QueryRowContext(ctx, `SELECT `+remCol+` FROM masses WHERE id = ?`, id).Scan(&remaining); err != nil {
		return 0, fmt.Errorf("read %s: %w", remCol, err)
	}
	return remaining, nil
}

// IncrementTx returns one unit to the pool.  The update is guarded by
// remaining < total; a release that would overflow the configured total
// yields ErrCapacityOverflow so the caller rolls back instead of silently
// clamping.
func (r *MassRepo) IncrementTx(ctx context.Context, tx *sql.Tx, id uint64, pool model.Pool) error {
	totalCol, remCol, err := poolColumns(pool)
	if err != nil {
		return err
	}
	q := `UPDATE masses SET ` + remCol + ` = ` + remCol + ` + 1, updated_at_ms = ?
		WHERE id = ? AND ` + remCol + ` < ` + totalCol
	res, err := tx.ExecContext(ctx, q, toMillis(r.now()), id)
	if err != nil {
		return fmt.Errorf("increment %s: %w", remCol, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("increment %s: %w", remCol, err)
	}
	if n == 0 {
		ok, err := r.exists(ctx, tx, id)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotFound
		}
		return ErrCapacityOverflow
	}
	return nil
}

// ResizeTx sets a new total for the pool and shifts remaining by the same
// delta, keeping the committed count (total - remaining) unchanged.  The
// guard total - remaining <= newTotal is part of the UPDATE; when it fails
// a *BelowCommittedError with the committed count is returned.  On success
// the committed count is returned.
//
// remaining is assigned before total: MySQL evaluates SET assignments left
// to right, so this order reads the old total on both MySQL and SQLite.
func (r *MassRepo) ResizeTx(ctx context.Context, tx *sql.Tx, id uint64, pool model.Pool, newTotal int) (int, error) {
	totalCol, remCol, err := poolColumns(pool)
	if err != nil {
		return 0, err
	}
	if newTotal < 0 {
		return 0, &BelowCommittedError{Pool: pool, Requested: newTotal}
	}
	q := `UPDATE masses SET ` + remCol + ` = ? - (` + totalCol + ` - ` + remCol + `), ` +
		totalCol + ` = ?, updated_at_ms = ?
		WHERE id = ? AND ` + totalCol + ` - ` + remCol + ` <= ?`
	res, err := tx.ExecContext(ctx, q, newTotal, newTotal, toMillis(r.now()), id, newTotal)
	if err != nil {
		return 0, fmt.Errorf("resize %s: %w", totalCol, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("resize %s: %w", totalCol, err)
	}
	var total, remaining int
	row := tx.QueryRowContext(ctx, `SELECT `+totalCol+`, `+remCol+` FROM masses WHERE id = ?`, id)
	if err := row.Scan(&total, &remaining); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("read %s: %w", totalCol, err)
	}
	if n == 0 {
		return 0, &BelowCommittedError{Pool: pool, Requested: newTotal, Committed: total - remaining}
	}
	return total - remaining, nil
}

// RecomputeStatusTx derives the status from both remaining counters and
// returns it.  It must run after every counter change in the same
// transaction.
func (r *MassRepo) RecomputeStatusTx(ctx context.Context, tx *sql.Tx, id uint64) (model.MassStatus, error) {
	const q = `UPDATE masses SET status = CASE
			WHEN intention_remaining = 0 AND thanksgiving_remaining = 0 THEN 'FULL'
			ELSE 'AVAILABLE' END
		WHERE id = ?`
	res, err := tx.ExecContext(ctx, q, id)
	if err != nil {
		return "", fmt.Errorf("recompute status: %w", err)
	}
	if err := requireOneRow(res, ErrNotFound); err != nil {
		return "", err
	}
	var status string
	if err := tx.QueryRowContext(ctx, `SELECT status FROM masses WHERE id = ?`, id).Scan(&status); err != nil {
		return "", fmt.Errorf("read status: %w", err)
	}
	return model.MassStatus(status), nil
}

func (r *MassRepo) exists(ctx context.Context, q queryer, id uint64) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM masses WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check mass: %w", err)
	}
	return true, nil
}

func requireOneRow(res sql.Result, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return missing
	}
	return nil
}
