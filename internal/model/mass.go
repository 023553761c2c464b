package model

import "time"

// Pool identifies one of the two independent slot pools attached to a
// mass.  Intentions and thanksgivings are counted separately and a
// reservation always consumes a unit from exactly one pool.
type Pool string

const (
	PoolIntention    Pool = "INTENTION"
	PoolThanksgiving Pool = "THANKSGIVING"
)

// Valid reports whether p names a known pool.
func (p Pool) Valid() bool {
	return p == PoolIntention || p == PoolThanksgiving
}

// Label returns the wording used in activity descriptions.
func (p Pool) Label() string {
	switch p {
	case PoolIntention:
		return "mass intention"
	case PoolThanksgiving:
		return "thanksgiving"
	}
	return "reservation"
}

// MassStatus is the derived availability of a mass.  It is FULL when
// both remaining counters are zero and AVAILABLE otherwise.
type MassStatus string

const (
	MassAvailable MassStatus = "AVAILABLE"
	MassFull      MassStatus = "FULL"
)

// DeriveMassStatus computes the status from the two remaining counters.
func DeriveMassStatus(intentionRemaining, thanksgivingRemaining int) MassStatus {
	if intentionRemaining == 0 && thanksgivingRemaining == 0 {
		return MassFull
	}
	return MassAvailable
}

// Mass represents a scheduled celebration that parishioners can attach
// intentions and thanksgivings to.  It corresponds to a row in the
// `masses` table.  Capacity is tracked per pool as a configured total
// and a remaining counter; the difference is the number of
// reservations currently holding a unit.
//
// Fields:
//
//	ID                    – primary key identifier.
//	Title                 – display title (e.g. "Sunday Mass").
//	Location              – church or chapel where the mass is held.
//	ScheduledAt           – when the mass begins (UTC).
//	IntentionTotal        – configured number of intention slots.
//	IntentionRemaining    – intention slots not held by a reservation.
//	ThanksgivingTotal     – configured number of thanksgiving slots.
//	ThanksgivingRemaining – thanksgiving slots not held by a reservation.
//	Status                – AVAILABLE or FULL, derived from the counters.
//	CreatedAt             – creation timestamp.
//	UpdatedAt             – last update timestamp.
type Mass struct {
	ID                    uint64     `json:"id"`                     // masses.id
	Title                 string     `json:"title"`                  // masses.title
	Location              string     `json:"location"`               // masses.location
	ScheduledAt           time.Time  `json:"scheduled_at"`           // masses.scheduled_at_ms
	IntentionTotal        int        `json:"intention_total"`        // masses.intention_total
	IntentionRemaining    int        `json:"intention_remaining"`    // masses.intention_remaining
	ThanksgivingTotal     int        `json:"thanksgiving_total"`     // masses.thanksgiving_total
	ThanksgivingRemaining int        `json:"thanksgiving_remaining"` // masses.thanksgiving_remaining
	Status                MassStatus `json:"status"`                 // masses.status
	CreatedAt             time.Time  `json:"created_at"`             // masses.created_at_ms
	UpdatedAt             time.Time  `json:"updated_at"`             // masses.updated_at_ms
}

// Total returns the configured capacity of the given pool.
func (m *Mass) Total(p Pool) int {
	if p == PoolThanksgiving {
		return m.ThanksgivingTotal
	}
	return m.IntentionTotal
}

// Remaining returns the free capacity of the given pool.
func (m *Mass) Remaining(p Pool) int {
	if p == PoolThanksgiving {
		return m.ThanksgivingRemaining
	}
	return m.IntentionRemaining
}

// Committed returns the number of units currently held in the pool.
func (m *Mass) Committed(p Pool) int {
	return m.Total(p) - m.Remaining(p)
}
