// Package notify fans reservation events out to observers after the engine
// has committed.  Delivery is best effort: a slow or failing observer loses
// events and never delays or fails the operation that produced them.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/iliyamo/parish-reservations/internal/log"
	"github.com/iliyamo/parish-reservations/internal/metrics"
	"github.com/iliyamo/parish-reservations/internal/model"
)

// Envelope is one broadcast as seen by subscribers and transports.
type Envelope struct {
	ID       string                 `json:"id"`
	Event    model.ReservationEvent `json:"event"`
	Audience Audience               `json:"-"`
}

// Transport delivers envelopes outside the process.
type Transport interface {
	Name() string
	Deliver(ctx context.Context, env Envelope) error
}

// HubOptions bounds the hub's buffers.
type HubOptions struct {
	OutboxSize     int
	SubscriberBuf  int
	DeliverTimeout time.Duration
}

func (o HubOptions) withDefaults() HubOptions {
	if o.OutboxSize < 1 {
		o.OutboxSize = 256
	}
	if o.SubscriberBuf < 1 {
		o.SubscriberBuf = 32
	}
	if o.DeliverTimeout <= 0 {
		o.DeliverTimeout = 3 * time.Second
	}
	return o
}

// Hub is the in-process fan-out point.  Subscribers receive matching
// envelopes on a buffered channel; transports receive every envelope
// through a bounded outbox drained by Run.
type Hub struct {
	opts       HubOptions
	transports []Transport
	outbox     chan Envelope
	logger     zerolog.Logger

	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
}

// NewHub creates a hub.  Transports may be empty, in which case only
// in-process subscribers are served and Run has nothing to do.
func NewHub(opts HubOptions, transports ...Transport) *Hub {
	opts = opts.withDefaults()
	return &Hub{
		opts:       opts,
		transports: transports,
		outbox:     make(chan Envelope, opts.OutboxSize),
		logger:     log.WithComponent("notify"),
		subs:       make(map[uint64]*Subscription),
	}
}

// Subscription is a live in-process observer.
type Subscription struct {
	hub    *Hub
	id     uint64
	userID uint64
	role   model.Role
	ch     chan Envelope
	once   sync.Once
}

// C returns the channel envelopes arrive on.  It is closed by Close.
func (s *Subscription) C() <-chan Envelope { return s.ch }

// Close detaches the subscription.  It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		delete(s.hub.subs, s.id)
		close(s.ch)
		s.hub.mu.Unlock()
		metrics.NotifySubscribers.Dec()
	})
}

// Subscribe registers an observer for the given identity.
func (h *Hub) Subscribe(userID uint64, role model.Role) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	s := &Subscription{
		hub:    h,
		id:     h.nextID,
		userID: userID,
		role:   role,
		ch:     make(chan Envelope, h.opts.SubscriberBuf),
	}
	h.subs[s.id] = s
	metrics.NotifySubscribers.Inc()
	return s
}

// Broadcast hands ev to every matching subscriber and queues it for the
// transports.  It never blocks: a full subscriber buffer or a full outbox
// drops the envelope for that target and counts the drop.
func (h *Hub) Broadcast(ctx context.Context, ev model.ReservationEvent, aud Audience) {
	env := Envelope{ID: uuid.NewString(), Event: ev, Audience: aud}
	logger := log.WithContext(ctx, h.logger)

	h.mu.RLock()
	for _, s := range h.subs {
		if !aud.Match(s.userID, s.role) {
			continue
		}
		select {
		case s.ch <- env:
		default:
			metrics.IncNotifyDrop("subscriber", "buffer_full")
			logger.Warn().
				Uint64("subscriber_user_id", s.userID).
				Uint64(log.FieldReservationID, ev.ReservationID).
				Str("action", string(ev.Action)).
				Msg("subscriber buffer full; dropping notification")
		}
	}
	h.mu.RUnlock()

	if len(h.transports) == 0 {
		return
	}
	select {
	case h.outbox <- env:
	default:
		metrics.IncNotifyDrop("outbox", "full")
		logger.Warn().
			Uint64(log.FieldReservationID, ev.ReservationID).
			Str("action", string(ev.Action)).
			Msg("notification outbox full; dropping")
	}
}

// Run drains the outbox into the transports until ctx is cancelled.  On
// cancellation it makes one last pass over envelopes already queued, each
// bounded by the delivery timeout.
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.drain()
			return nil
		case env := <-h.outbox:
			h.deliver(ctx, env)
		}
	}
}

func (h *Hub) drain() {
	for {
		select {
		case env := <-h.outbox:
			h.deliver(context.Background(), env)
		default:
			return
		}
	}
}

func (h *Hub) deliver(ctx context.Context, env Envelope) {
	for _, t := range h.transports {
		dctx, cancel := context.WithTimeout(ctx, h.opts.DeliverTimeout)
		err := t.Deliver(dctx, env)
		cancel()
		if err != nil {
			metrics.IncNotifyDrop(t.Name(), "deliver_failed")
			h.logger.Warn().Err(err).
				Str(log.FieldTransport, t.Name()).
				Str("envelope_id", env.ID).
				Uint64(log.FieldReservationID, env.Event.ReservationID).
				Msg("transport delivery failed")
			continue
		}
		metrics.NotifyDeliveredTotal.WithLabelValues(t.Name()).Inc()
	}
}

// SubscriberCount returns the number of live subscriptions.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
