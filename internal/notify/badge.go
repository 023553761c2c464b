package notify

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/parish-reservations/internal/model"
)

// Redis keys for the badge counters.
const (
	adminPendingKey = "badge:admin:pending"
)

func userUpdatesKey(userID uint64) string {
	return "badge:user:" + strconv.FormatUint(userID, 10) + ":updates"
}

// decrFloor decrements a counter without letting it go below zero.
var decrFloor = redis.NewScript(`
local v = redis.call("DECR", KEYS[1])
if v < 0 then
	redis.call("SET", KEYS[1], 0)
	return 0
end
return v
`)

// BadgeCounter keeps the unread badges in Redis.  Administrators see how
// many reservations await a decision; a requester sees how many of their
// reservations changed status since they last looked.
type BadgeCounter struct {
	rdb *redis.Client
}

// NewBadgeCounter returns a counter backed by rdb.
func NewBadgeCounter(rdb *redis.Client) *BadgeCounter {
	return &BadgeCounter{rdb: rdb}
}

func (b *BadgeCounter) Name() string { return "redis_badge" }

// Deliver updates the counters for one event.
func (b *BadgeCounter) Deliver(ctx context.Context, env Envelope) error {
	ev := env.Event
	switch ev.Action {
	case model.ActionCreated:
		return b.rdb.Incr(ctx, adminPendingKey).Err()
	case model.ActionStatusUpdated:
		if ev.PreviousStatus == model.StatusPending {
			if err := decrFloor.Run(ctx, b.rdb, []string{adminPendingKey}).Err(); err != nil {
				return fmt.Errorf("decrement pending: %w", err)
			}
		}
		return b.rdb.Incr(ctx, userUpdatesKey(ev.RequesterID)).Err()
	case model.ActionDeleted:
		if ev.Status == model.StatusPending {
			return decrFloor.Run(ctx, b.rdb, []string{adminPendingKey}).Err()
		}
	}
	return nil
}

// Pending returns the number of reservations awaiting a decision.
func (b *BadgeCounter) Pending(ctx context.Context) (int64, error) {
	return b.get(ctx, adminPendingKey)
}

// UserUpdates returns the number of unseen status changes for a requester.
func (b *BadgeCounter) UserUpdates(ctx context.Context, userID uint64) (int64, error) {
	return b.get(ctx, userUpdatesKey(userID))
}

// ClearUser resets a requester's badge after they viewed their updates.
func (b *BadgeCounter) ClearUser(ctx context.Context, userID uint64) error {
	return b.rdb.Del(ctx, userUpdatesKey(userID)).Err()
}

func (b *BadgeCounter) get(ctx context.Context, key string) (int64, error) {
	n, err := b.rdb.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}
