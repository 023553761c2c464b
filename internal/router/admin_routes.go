package router

// This file registers the administrative routes: schedule management,
// capacity changes and decisions on reservations.

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/parish-reservations/internal/middleware"
	"github.com/iliyamo/parish-reservations/internal/model"
)

// RegisterAdmin registers routes under /v1/admin.  All routes require a
// JWT token with the ADMIN role.
func RegisterAdmin(e *echo.Echo, h Handlers, jwtSecret string) {
	g := e.Group(
		"/v1/admin",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleAdmin),
	)
	g.POST("/masses", h.Masses.Create)
	g.PUT("/masses/:id", h.Masses.Update)
	g.DELETE("/masses/:id", h.Masses.Delete)
	g.PATCH("/masses/:id/capacity", h.Masses.Resize)
	g.GET("/masses/:id/reservations", h.Masses.Reservations)
	g.GET("/masses/:id/verify", h.Masses.Verify)

	g.PATCH("/reservations/:id/status", h.Reservations.UpdateStatus)
	g.DELETE("/reservations/:id", h.Reservations.Delete)

	g.GET("/activity", h.Activity.Admin)
}
