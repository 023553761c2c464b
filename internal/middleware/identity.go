package middleware

// identity.go holds helpers shared across middleware files and handlers for
// reading the caller identity that JWTAuth stored in the Echo context.

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/parish-reservations/internal/model"
)

// ActorFrom returns the authenticated caller.  The second result is false
// when JWTAuth did not run or did not accept a token.
func ActorFrom(c echo.Context) (model.Actor, bool) {
	uid, ok := c.Get(ctxUserID).(uint64)
	if !ok || uid == 0 {
		return model.Actor{}, false
	}
	role, ok := c.Get(ctxRole).(model.Role)
	if !ok {
		return model.Actor{}, false
	}
	return model.Actor{ID: uid, Role: role}, true
}

// subjectID converts a "sub" claim into a user ID.
func subjectID(v interface{}) (uint64, bool) {
	switch s := v.(type) {
	case float64:
		if s < 1 || s != float64(uint64(s)) {
			return 0, false
		}
		return uint64(s), true
	case string:
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil || n == 0 {
			return 0, false
		}
		return n, true
	}
	return 0, false
}
