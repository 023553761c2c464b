package handler // handler defines http handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/parish-reservations/internal/engine"
)

// parseID reads a positive numeric path parameter.
func parseID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
}

// writeError maps engine errors to HTTP responses.  Persistence faults are
// reported as 503 so clients retry; their details stay in the server log.
func writeError(c echo.Context, err error) error {
	var below *engine.BelowCommittedError
	switch {
	case errors.As(err, &below):
		return c.JSON(http.StatusConflict, echo.Map{
			"error":     "capacity is below committed reservations",
			"pool":      below.Pool,
			"committed": below.Committed,
		})
	case errors.Is(err, engine.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	case errors.Is(err, engine.ErrNoAvailableSlots):
		return c.JSON(http.StatusConflict, echo.Map{"error": "no available slots"})
	case errors.Is(err, engine.ErrAlreadyFinalized):
		return c.JSON(http.StatusConflict, echo.Map{"error": "reservation already finalized"})
	case errors.Is(err, engine.ErrMassHasReservations):
		return c.JSON(http.StatusConflict, echo.Map{"error": "mass still has reservations"})
	case errors.Is(err, engine.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	case errors.Is(err, engine.ErrInvalidInput):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "please try again"})
}
