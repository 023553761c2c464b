package notify

import (
	"slices"

	"github.com/iliyamo/parish-reservations/internal/model"
)

// Audience selects which subscribers receive a broadcast.  A subscriber
// matches when its role is listed or its user ID is listed.  The zero
// Audience matches nobody.
type Audience struct {
	Roles   []model.Role `json:"roles,omitempty"`
	UserIDs []uint64     `json:"user_ids,omitempty"`
}

// Match reports whether a subscriber with the given identity is addressed.
func (a Audience) Match(userID uint64, role model.Role) bool {
	return slices.Contains(a.Roles, role) || slices.Contains(a.UserIDs, userID)
}

// AdminsAnd addresses every administrator plus the given user.
func AdminsAnd(userID uint64) Audience {
	return Audience{Roles: []model.Role{model.RoleAdmin}, UserIDs: []uint64{userID}}
}
