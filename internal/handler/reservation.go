package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/parish-reservations/internal/engine"
	"github.com/iliyamo/parish-reservations/internal/middleware"
	"github.com/iliyamo/parish-reservations/internal/model"
	"github.com/iliyamo/parish-reservations/internal/repository"
)

// ReservationHandler serves mass intentions and thanksgivings on behalf of
// parishioners and administrators.
type ReservationHandler struct {
	Engine *engine.Engine
}

// NewReservationHandler constructs a ReservationHandler and panics on a nil
// engine.
func NewReservationHandler(e *engine.Engine) *ReservationHandler {
	if e == nil {
		panic("nil engine passed to NewReservationHandler")
	}
	return &ReservationHandler{Engine: e}
}

// RequestIntention handles POST /v1/masses/:id/intentions.
func (h *ReservationHandler) RequestIntention(c echo.Context) error {
	return h.request(c, model.PoolIntention)
}

// RequestThanksgiving handles POST /v1/masses/:id/thanksgivings.
func (h *ReservationHandler) RequestThanksgiving(c echo.Context) error {
	return h.request(c, model.PoolThanksgiving)
}

// request takes a slot from the given pool.  The body is {"content": "..."}.
// It answers 201 with the PENDING reservation, or 409 when the pool is
// exhausted.
func (h *ReservationHandler) request(c echo.Context, pool model.Pool) error {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		return unauthorized(c)
	}
	massID, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid mass id"})
	}
	var body struct {
		Content string `json:"content"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	res, err := h.Engine.RequestReservation(c.Request().Context(), actor, massID, pool, body.Content)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, res)
}

// ListMine handles GET /v1/my/reservations?scope=upcoming|past&page=&page_size=.
func (h *ReservationHandler) ListMine(c echo.Context) error {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		return unauthorized(c)
	}
	page := repository.Page{}
	page.Number, _ = strconv.Atoi(c.QueryParam("page"))
	page.Size, _ = strconv.Atoi(c.QueryParam("page_size"))

	var (
		out *repository.ReservationPage
		err error
	)
	switch c.QueryParam("scope") {
	case "", "upcoming":
		out, err = h.Engine.ListUpcomingForUser(c.Request().Context(), actor, page)
	case "past":
		out, err = h.Engine.ListPastForUser(c.Request().Context(), actor, page)
	default:
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "scope must be upcoming or past"})
	}
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

// Get handles GET /v1/reservations/:id.  Parishioners can only read their
// own reservations.
func (h *ReservationHandler) Get(c echo.Context) error {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}
	res, err := h.Engine.GetReservation(c.Request().Context(), actor, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// UpdateStatus handles PATCH /v1/admin/reservations/:id/status with a body
// of {"status": "APPROVED"|"REJECTED"}.
func (h *ReservationHandler) UpdateStatus(c echo.Context) error {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}
	var body struct {
		Status model.ReservationStatus `json:"status"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	res, err := h.Engine.UpdateReservationStatus(c.Request().Context(), actor, id, body.Status)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Delete handles DELETE /v1/admin/reservations/:id.
func (h *ReservationHandler) Delete(c echo.Context) error {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}
	if err := h.Engine.DeleteReservation(c.Request().Context(), actor, id); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
