package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/iliyamo/parish-reservations/internal/log"
)

const notificationLogFile = "notifications.log"

// NotificationLog appends one line per reservation message to
// <dir>/notifications.log.
type NotificationLog struct {
	dir string
	mu  sync.Mutex
}

// NewNotificationLog returns a log writing under dir ("logs" when empty).
func NewNotificationLog(dir string) *NotificationLog {
	if dir == "" {
		dir = "logs"
	}
	return &NotificationLog{dir: dir}
}

// Path returns the file the log appends to.
func (l *NotificationLog) Path() string {
	return filepath.Join(l.dir, notificationLogFile)
}

// handleMessage decodes a message body and appends its line.
func (l *NotificationLog) handleMessage(body []byte) error {
	var msg ReservationMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if msg.ReservationID == 0 || msg.Action == "" {
		return errors.New("message is missing reservation_id or action")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", l.dir, err)
	}
	f, err := os.OpenFile(l.Path(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(msg.Line()); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

// StartNotificationConsumer connects to RabbitMQ, declares the queue
// (durable) and appends every message to the notification log.  It runs a
// reconnect loop with exponential backoff and returns only when ctx is
// cancelled.  Messages that cannot be handled are rejected without requeue
// so a poison message cannot spin the loop.
func StartNotificationConsumer(ctx context.Context, url, queueName string, out *NotificationLog) error {
	logger := log.WithComponent("notification-consumer")
	if queueName == "" {
		queueName = DefaultQueueName
	}

	backoff := time.Second
	for {
		conn, err := amqp.Dial(url)
		if err != nil {
			logger.Warn().Err(err).Dur("retry_in", backoff).Msg("failed to dial broker")
			if !sleepCtx(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = consumeLoop(ctx, conn, queueName, out, logger)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warn().Err(err).Msg("consume loop ended; reconnecting")
		if !sleepCtx(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, queueName string, out *NotificationLog, logger zerolog.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		logger.Warn().Err(err).Msg("set QoS failed")
	}
	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}
	logger.Info().Str("queue", queueName).Str("file", out.Path()).Msg("consuming reservation events")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := out.handleMessage(d.Body); err != nil {
				logger.Error().Err(err).Str("message_id", d.MessageId).Msg("handle message failed")
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
