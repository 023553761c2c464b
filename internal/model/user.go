package model

// Role is the authorization role carried in the access token.  The
// engine performs no authentication; it trusts the role supplied by
// the caller layer.
type Role string

const (
	RoleAdmin       Role = "ADMIN"
	RoleParishioner Role = "PARISHIONER"
)

// Actor identifies the authenticated caller of an engine operation.
type Actor struct {
	ID   uint64
	Role Role
}

// IsAdmin reports whether the actor holds the administrative role.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}
