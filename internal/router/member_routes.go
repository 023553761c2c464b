package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/parish-reservations/internal/handler"
	"github.com/iliyamo/parish-reservations/internal/middleware"
	"github.com/iliyamo/parish-reservations/internal/model"
)

// Handlers bundles the handlers mounted by the routers.
type Handlers struct {
	Masses        *handler.MassHandler
	Reservations  *handler.ReservationHandler
	Activity      *handler.ActivityHandler
	Notifications *handler.NotificationHandler
}

// RegisterMember registers endpoints available to every signed-in user
// under /v1.  Parishioners browse the schedule, request intentions and
// thanksgivings, and follow their own reservations.
func RegisterMember(e *echo.Echo, h Handlers, jwtSecret string) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleParishioner, model.RoleAdmin),
	)
	g.GET("/masses", h.Masses.List)
	g.GET("/masses/:id", h.Masses.Get)
	g.POST("/masses/:id/intentions", h.Reservations.RequestIntention)
	g.POST("/masses/:id/thanksgivings", h.Reservations.RequestThanksgiving)

	g.GET("/my/reservations", h.Reservations.ListMine)
	g.GET("/reservations/:id", h.Reservations.Get)

	g.GET("/activity", h.Activity.Mine)
	g.GET("/notifications/stream", h.Notifications.Stream)
	g.GET("/notifications/badge", h.Notifications.Badge)
	g.DELETE("/notifications/badge", h.Notifications.ClearBadge)
}
