package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/parish-reservations/internal/activity"
	"github.com/iliyamo/parish-reservations/internal/middleware"
	"github.com/iliyamo/parish-reservations/internal/model"
)

// ActivityHandler serves the read-only activity feeds.
type ActivityHandler struct {
	Recorder *activity.Recorder
}

func NewActivityHandler(r *activity.Recorder) *ActivityHandler {
	if r == nil {
		panic("nil recorder passed to NewActivityHandler")
	}
	return &ActivityHandler{Recorder: r}
}

// Mine handles GET /v1/activity: the caller's own feed.
func (h *ActivityHandler) Mine(c echo.Context) error {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		return unauthorized(c)
	}
	return h.feed(c, activity.Query{ActorID: actor.ID, Audience: model.AudienceSelf})
}

// Admin handles GET /v1/admin/activity.  actor_id narrows the feed to one
// user.
func (h *ActivityHandler) Admin(c echo.Context) error {
	q := activity.Query{Audience: model.AudienceAdmin}
	if v := c.QueryParam("actor_id"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid actor_id"})
		}
		q.ActorID = id
	}
	return h.feed(c, q)
}

// feed applies the paging parameters before_id and limit.
func (h *ActivityHandler) feed(c echo.Context, q activity.Query) error {
	if v := c.QueryParam("before_id"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid before_id"})
		}
		q.BeforeID = id
	}
	q.Limit, _ = strconv.Atoi(c.QueryParam("limit"))
	recs, err := h.Recorder.Feed(c.Request().Context(), q)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"activity": recs})
}
