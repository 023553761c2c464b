package config

import "time"

// NotifyConfig defines how reservation notifications leave the process.
// The in-process hub always runs; the broker publisher is enabled when
// AMQPURL is set and the consumer only when ConsumerEnabled is true.
// OutboxSize bounds the queue between the engine and the transports and
// DeliverTimeout caps a single transport delivery.
type NotifyConfig struct {
	AMQPURL         string
	Queue           string
	ConsumerEnabled bool
	LogDir          string
	OutboxSize      int
	SubscriberBuf   int
	DeliverTimeout  time.Duration
}

// LoadNotifyConfig reads the notification settings.  RABBITMQ_URL wins over
// AMQP_URL when both are set.
func LoadNotifyConfig() NotifyConfig {
	cfg := NotifyConfig{
		AMQPURL:         envStr("RABBITMQ_URL", envStr("AMQP_URL", "")),
		Queue:           envStr("NOTIFY_QUEUE", "reservation.events"),
		ConsumerEnabled: envBool("NOTIFY_CONSUMER_ENABLED", false),
		LogDir:          envStr("NOTIFY_LOG_DIR", "logs"),
		OutboxSize:      envInt("NOTIFY_OUTBOX_SIZE", 256),
		SubscriberBuf:   envInt("NOTIFY_SUBSCRIBER_BUFFER", 32),
		DeliverTimeout:  envDur("NOTIFY_DELIVER_TIMEOUT", 3*time.Second),
	}
	if cfg.OutboxSize < 1 {
		cfg.OutboxSize = 1
	}
	if cfg.SubscriberBuf < 1 {
		cfg.SubscriberBuf = 1
	}
	if cfg.DeliverTimeout <= 0 {
		cfg.DeliverTimeout = time.Second
	}
	return cfg
}
