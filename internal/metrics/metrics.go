// Package metrics provides Prometheus collectors for the reservation
// service.  Labels are kept to small fixed sets; no user, mass or
// reservation identifiers.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ReservationOperationsTotal counts engine operations by name and outcome.
	ReservationOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parish_reservation_operations_total",
		Help: "Total number of reservation engine operations, by operation and result.",
	}, []string{"op", "result"})

	// NotifyDroppedTotal counts notifications that were not delivered, by
	// target (subscriber, outbox or a transport name) and reason.
	NotifyDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parish_notify_dropped_total",
		Help: "Total number of dropped reservation notifications, by target and reason.",
	}, []string{"target", "reason"})

	// NotifyDeliveredTotal counts successful transport deliveries.
	NotifyDeliveredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parish_notify_delivered_total",
		Help: "Total number of notifications delivered, by transport.",
	}, []string{"transport"})

	// ActivityAppendFailuresTotal counts activity records that could not be stored.
	ActivityAppendFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parish_activity_append_failures_total",
		Help: "Total number of activity records that failed to persist.",
	})

	// NotifySubscribers tracks the number of live in-process subscribers.
	NotifySubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "parish_notify_subscribers",
		Help: "Current number of in-process notification subscribers.",
	})
)

// ObserveOperation records the outcome of an engine operation.
func ObserveOperation(op, result string) {
	if result == "" {
		result = "unknown"
	}
	ReservationOperationsTotal.WithLabelValues(op, result).Inc()
}

// IncNotifyDrop records a dropped notification with a concrete reason.
func IncNotifyDrop(target, reason string) {
	if target == "" {
		target = "unknown"
	}
	if reason == "" {
		reason = "unknown"
	}
	NotifyDroppedTotal.WithLabelValues(target, reason).Inc()
}
