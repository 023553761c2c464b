// Package queue defines message payloads exchanged over the message broker
// and the background consumer that turns them into a notification log.
package queue

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/parish-reservations/internal/model"
)

// DefaultQueueName is the durable queue reservation events are published to.
const DefaultQueueName = "reservation.events"

// ReservationMessage is published after every committed reservation change.
// It carries enough information for downstream consumers to log or notify
// without querying the primary database.
type ReservationMessage struct {
	ID             string `json:"id"`
	Kind           string `json:"kind"`
	Action         string `json:"action"`
	ReservationID  uint64 `json:"reservation_id"`
	MassID         uint64 `json:"mass_id"`
	RequesterID    uint64 `json:"requester_id"`
	Status         string `json:"status,omitempty"`
	PreviousStatus string `json:"previous_status,omitempty"`
	OccurredAt     string `json:"occurred_at"`
}

// NewReservationMessage converts an engine event to its wire form and
// assigns it a fresh message ID.
func NewReservationMessage(ev model.ReservationEvent) ReservationMessage {
	occurred := ev.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}
	return ReservationMessage{
		ID:             uuid.NewString(),
		Kind:           string(ev.Kind),
		Action:         string(ev.Action),
		ReservationID:  ev.ReservationID,
		MassID:         ev.MassID,
		RequesterID:    ev.RequesterID,
		Status:         string(ev.Status),
		PreviousStatus: string(ev.PreviousStatus),
		OccurredAt:     occurred.UTC().Format(time.RFC3339),
	}
}

// Line renders the message as a single human friendly log line.
func (m ReservationMessage) Line() string {
	line := fmt.Sprintf("[%s] Reservation %s | kind=%s | reservation_id=%d | mass_id=%d | requester_id=%d",
		m.OccurredAt, m.Action, m.Kind, m.ReservationID, m.MassID, m.RequesterID)
	if m.Status != "" {
		line += " | status=" + m.Status
	}
	if m.PreviousStatus != "" {
		line += " | previous_status=" + m.PreviousStatus
	}
	return line + "\n"
}
