package model

import "time"

// ReservationStatus is the lifecycle state of a reservation.
type ReservationStatus string

const (
	StatusPending  ReservationStatus = "PENDING"
	StatusApproved ReservationStatus = "APPROVED"
	StatusRejected ReservationStatus = "REJECTED"
)

// Valid reports whether s is a known status.
func (s ReservationStatus) Valid() bool {
	return s == StatusPending || s == StatusApproved || s == StatusRejected
}

// HoldsCapacity reports whether a reservation in this status still
// occupies a unit of its pool.  Only REJECTED reservations have
// released their unit.
func (s ReservationStatus) HoldsCapacity() bool {
	return s == StatusPending || s == StatusApproved
}

// Reservation records a parishioner's request for a slot on a mass.
// Intentions and thanksgivings share this shape and are told apart by
// Pool.  It corresponds to a row in the `reservations` table.
//
// Fields:
//
//	ID          – primary key identifier.
//	MassID      – mass the reservation is attached to.
//	RequesterID – user who requested the slot.
//	Pool        – INTENTION or THANKSGIVING.
//	Payload     – free text content (the intention or thanksgiving).
//	Status      – PENDING, APPROVED or REJECTED.
//	CreatedAt   – creation timestamp.
//	UpdatedAt   – last update timestamp.
type Reservation struct {
	ID          uint64            `json:"id"`           // reservations.id
	MassID      uint64            `json:"mass_id"`      // reservations.mass_id
	RequesterID uint64            `json:"requester_id"` // reservations.requester_id
	Pool        Pool              `json:"pool"`         // reservations.pool
	Payload     string            `json:"content"`      // reservations.payload
	Status      ReservationStatus `json:"status"`       // reservations.status
	CreatedAt   time.Time         `json:"created_at"`   // reservations.created_at_ms
	UpdatedAt   time.Time         `json:"updated_at"`   // reservations.updated_at_ms
}

// ReservationDetail is a reservation joined with the mass it belongs
// to.  It is returned by the scoped listings so that callers can show
// the schedule without a second lookup.
type ReservationDetail struct {
	Reservation
	MassTitle       string    `json:"mass_title"`
	MassLocation    string    `json:"mass_location"`
	MassScheduledAt time.Time `json:"mass_scheduled_at"`
}
