package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/parish-reservations/internal/log"
	"github.com/iliyamo/parish-reservations/internal/middleware"
	"github.com/iliyamo/parish-reservations/internal/notify"
)

// NotificationHandler streams live reservation events and serves the
// unread badges.  Badges is nil when Redis is unavailable.
type NotificationHandler struct {
	Hub       *notify.Hub
	Badges    *notify.BadgeCounter
	Heartbeat time.Duration
}

func NewNotificationHandler(hub *notify.Hub, badges *notify.BadgeCounter) *NotificationHandler {
	if hub == nil {
		panic("nil hub passed to NewNotificationHandler")
	}
	return &NotificationHandler{Hub: hub, Badges: badges, Heartbeat: 25 * time.Second}
}

// Stream handles GET /v1/notifications/stream as server-sent events.
// Administrators receive every reservation event; parishioners receive
// events about their own reservations.  A client that falls behind loses
// events rather than slowing anyone down.
func (h *NotificationHandler) Stream(c echo.Context) error {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		return unauthorized(c)
	}
	sub := h.Hub.Subscribe(actor.ID, actor.Role)
	defer sub.Close()

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set(echo.HeaderCacheControl, "no-cache")
	w.Header().Set(echo.HeaderConnection, "keep-alive")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	logger := log.WithContext(c.Request().Context(), log.WithComponent("sse"))
	ticker := time.NewTicker(h.Heartbeat)
	defer ticker.Stop()
	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return nil
			}
			w.Flush()
		case env, open := <-sub.C():
			if !open {
				return nil
			}
			data, err := json.Marshal(env.Event)
			if err != nil {
				logger.Error().Err(err).Str("envelope_id", env.ID).Msg("encode event")
				continue
			}
			if _, err := fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", env.ID, env.Event.Action, data); err != nil {
				return nil
			}
			w.Flush()
		}
	}
}

// Badge handles GET /v1/notifications/badge.
func (h *NotificationHandler) Badge(c echo.Context) error {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		return unauthorized(c)
	}
	if h.Badges == nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "badges unavailable"})
	}
	ctx := c.Request().Context()
	updates, err := h.Badges.UserUpdates(ctx, actor.ID)
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "badges unavailable"})
	}
	out := echo.Map{"updates": updates}
	if actor.IsAdmin() {
		pending, err := h.Badges.Pending(ctx)
		if err != nil {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "badges unavailable"})
		}
		out["pending"] = pending
	}
	return c.JSON(http.StatusOK, out)
}

// ClearBadge handles DELETE /v1/notifications/badge.
func (h *NotificationHandler) ClearBadge(c echo.Context) error {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		return unauthorized(c)
	}
	if h.Badges == nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "badges unavailable"})
	}
	if err := h.Badges.ClearUser(c.Request().Context(), actor.ID); err != nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "badges unavailable"})
	}
	return c.NoContent(http.StatusNoContent)
}
