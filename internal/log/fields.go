package log

// Canonical field names for structured logging.
const (
	FieldComponent     = "component"
	FieldRequestID     = "request_id"
	FieldOperation     = "op"
	FieldMassID        = "mass_id"
	FieldReservationID = "reservation_id"
	FieldPool          = "pool"
	FieldActorID       = "actor_id"
	FieldStatus        = "status"
	FieldTransport     = "transport"
)
