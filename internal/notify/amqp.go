package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/parish-reservations/internal/queue"
)

// defaultDialTimeout bounds a broker dial when the delivery context carries
// no deadline.
const defaultDialTimeout = 5 * time.Second

// AMQPPublisher publishes envelopes to a durable RabbitMQ queue as
// persistent JSON messages.  The connection is opened lazily and reopened
// after any failure.
type AMQPPublisher struct {
	url       string
	queueName string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewAMQPPublisher returns a publisher for the given broker URL and queue.
func NewAMQPPublisher(url, queueName string) *AMQPPublisher {
	if queueName == "" {
		queueName = queue.DefaultQueueName
	}
	return &AMQPPublisher{url: url, queueName: queueName}
}

func (p *AMQPPublisher) Name() string { return "amqp" }

// Deliver publishes one envelope.  The message ID is the envelope ID so a
// consumer can discard duplicates.
func (p *AMQPPublisher) Deliver(ctx context.Context, env Envelope) error {
	msg := queue.NewReservationMessage(env.Event)
	msg.ID = env.ID
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	ch, err := p.channel(ctx)
	if err != nil {
		return err
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    env.ID,
		Timestamp:    time.Now().UTC(),
		Type:         string(env.Event.Action),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", p.queueName, false, false, pub); err != nil {
		p.reset()
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// channel returns an open channel with the queue declared, dialing when
// needed.  The dial is bounded by ctx's deadline.  The caller holds p.mu.
func (p *AMQPPublisher) channel(ctx context.Context) (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.reset()
	if p.url == "" {
		return nil, errors.New("amqp: broker url not configured")
	}
	timeout, err := dialTimeout(ctx)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	conn, err := amqp.DialConfig(p.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(timeout),
	})
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("channel open: %w", err)
	}
	if _, err := ch.QueueDeclare(p.queueName, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("queue declare: %w", err)
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

// dialTimeout returns the time left before ctx's deadline, or
// defaultDialTimeout when there is none.
func dialTimeout(ctx context.Context) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		return defaultDialTimeout, nil
	}
	left := time.Until(deadline)
	if left <= 0 {
		return 0, context.DeadlineExceeded
	}
	return left, nil
}

func (p *AMQPPublisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

// Close releases the broker connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset()
	return nil
}
