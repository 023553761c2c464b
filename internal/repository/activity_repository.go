package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/parish-reservations/internal/model"
)

// ActivityRepo appends and reads activity feed lines.  Records are never
// updated or deleted.
type ActivityRepo struct {
	db  *sql.DB
	now func() time.Time
}

func NewActivityRepo(db *sql.DB) *ActivityRepo {
	return &ActivityRepo{db: db, now: time.Now}
}

// ActivityQuery filters a feed listing.  Zero values mean "any".  BeforeID
// pages backwards through the feed.
type ActivityQuery struct {
	ActorID  uint64
	Audience model.Audience
	BeforeID uint64
	Limit    int
}

// Append stores one record and fills in its ID and CreatedAt.
func (r *ActivityRepo) Append(ctx context.Context, rec *model.ActivityRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = r.now().UTC()
	}
	const q = `INSERT INTO activity_records (actor_id, audience, description, entity_type, entity_id, created_at_ms)
		VALUES (?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q, rec.ActorID, string(rec.Audience), rec.Description,
		rec.EntityType, rec.EntityID, toMillis(rec.CreatedAt))
	if err != nil {
		return fmt.Errorf("append activity: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("append activity: %w", err)
	}
	rec.ID = uint64(id)
	return nil
}

// List returns matching records, newest first.
func (r *ActivityRepo) List(ctx context.Context, f ActivityQuery) ([]model.ActivityRecord, error) {
	var where []string
	var args []any
	if f.ActorID != 0 {
		where = append(where, "actor_id = ?")
		args = append(args, f.ActorID)
	}
	if f.Audience != "" {
		where = append(where, "audience = ?")
		args = append(args, string(f.Audience))
	}
	if f.BeforeID != 0 {
		where = append(where, "id < ?")
		args = append(args, f.BeforeID)
	}
	limit := f.Limit
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}
	q := `SELECT id, actor_id, audience, description, entity_type, entity_id, created_at_ms FROM activity_records`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()
	out := make([]model.ActivityRecord, 0)
	for rows.Next() {
		var rec model.ActivityRecord
		var audience string
		var created int64
		if err := rows.Scan(&rec.ID, &rec.ActorID, &audience, &rec.Description, &rec.EntityType, &rec.EntityID, &created); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		rec.Audience = model.Audience(audience)
		rec.CreatedAt = fromMillis(created)
		out = append(out, rec)
	}
	return out, rows.Err()
}
