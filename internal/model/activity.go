package model

import "time"

// Audience scopes who may read an activity record.  Self records are
// shown to the actor only, admin records to parish administrators.
type Audience string

const (
	AudienceSelf  Audience = "self"
	AudienceAdmin Audience = "admin"
)

// ActivityRecord is one append-only line of the activity feed.  It
// corresponds to a row in the `activity_records` table.
//
// Fields:
//
//	ID          – primary key identifier.
//	ActorID     – user the line is about (and, for self records, shown to).
//	Description – human readable sentence.
//	Audience    – self or admin.
//	EntityType  – kind of the related entity (e.g. "reservation").
//	EntityID    – identifier of the related entity.
//	CreatedAt   – when the record was appended.
type ActivityRecord struct {
	ID          uint64    `json:"id"`          // activity_records.id
	ActorID     uint64    `json:"actor_id"`    // activity_records.actor_id
	Description string    `json:"description"` // activity_records.description
	Audience    Audience  `json:"audience"`    // activity_records.audience
	EntityType  string    `json:"entity_type"` // activity_records.entity_type
	EntityID    uint64    `json:"entity_id"`   // activity_records.entity_id
	CreatedAt   time.Time `json:"created_at"`  // activity_records.created_at_ms
}
