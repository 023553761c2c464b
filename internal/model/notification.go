package model

import "time"

// ReservationAction names the kind of state change a notification
// describes.
type ReservationAction string

const (
	ActionCreated       ReservationAction = "created"
	ActionStatusUpdated ReservationAction = "statusUpdated"
	ActionDeleted       ReservationAction = "deleted"
)

// ReservationEvent is the payload fanned out after every committed
// reservation change.  It is never persisted by the engine; transports
// encode it as JSON.
type ReservationEvent struct {
	Kind           Pool              `json:"kind"`
	ReservationID  uint64            `json:"reservation_id"`
	MassID         uint64            `json:"mass_id"`
	RequesterID    uint64            `json:"requester_id"`
	Action         ReservationAction `json:"action"`
	Status         ReservationStatus `json:"status,omitempty"`
	PreviousStatus ReservationStatus `json:"previous_status,omitempty"`
	OccurredAt     time.Time         `json:"occurred_at"`
}
