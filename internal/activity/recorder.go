// Package activity writes and reads the human readable activity feed.
// Recording is best effort: a failed append is logged and counted but
// never reported to the operation that triggered it.
package activity

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/iliyamo/parish-reservations/internal/log"
	"github.com/iliyamo/parish-reservations/internal/metrics"
	"github.com/iliyamo/parish-reservations/internal/model"
	"github.com/iliyamo/parish-reservations/internal/repository"
)

// Store is the persistence the recorder needs.
type Store interface {
	Append(ctx context.Context, rec *model.ActivityRecord) error
	List(ctx context.Context, q repository.ActivityQuery) ([]model.ActivityRecord, error)
}

// Recorder appends activity records and emits an audit log line for each.
type Recorder struct {
	store  Store
	logger zerolog.Logger
	audit  zerolog.Logger
}

func NewRecorder(store Store) *Recorder {
	return &Recorder{
		store:  store,
		logger: log.WithComponent("activity"),
		audit:  log.WithComponent("audit"),
	}
}

// Record appends every record in order.  Failures do not stop the
// remaining records.
func (r *Recorder) Record(ctx context.Context, recs ...model.ActivityRecord) {
	for i := range recs {
		rec := recs[i]
		r.audit.Info().
			Uint64(log.FieldActorID, rec.ActorID).
			Str("audience", string(rec.Audience)).
			Str("entity_type", rec.EntityType).
			Uint64("entity_id", rec.EntityID).
			Str(log.FieldRequestID, log.RequestIDFromContext(ctx)).
			Msg(rec.Description)

		if err := r.store.Append(ctx, &rec); err != nil {
			metrics.ActivityAppendFailuresTotal.Inc()
			logger := log.WithContext(ctx, r.logger)
			logger.Error().Err(err).
				Uint64(log.FieldActorID, rec.ActorID).
				Str("audience", string(rec.Audience)).
				Msg("failed to append activity record")
		}
	}
}

// Query filters a feed read.
type Query struct {
	ActorID  uint64
	Audience model.Audience
	BeforeID uint64
	Limit    int
}

// Feed lists records newest first.
func (r *Recorder) Feed(ctx context.Context, q Query) ([]model.ActivityRecord, error) {
	return r.store.List(ctx, repository.ActivityQuery{
		ActorID:  q.ActorID,
		Audience: q.Audience,
		BeforeID: q.BeforeID,
		Limit:    q.Limit,
	})
}
