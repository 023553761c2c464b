package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/parish-reservations/internal/engine"
	"github.com/iliyamo/parish-reservations/internal/middleware"
	"github.com/iliyamo/parish-reservations/internal/model"
)

// MassHandler serves the mass schedule and its administration.  It assumes
// JWTAuth has run; the admin routes are additionally wrapped in
// RequireRole, and the engine checks the role again.
type MassHandler struct {
	Engine *engine.Engine
}

// NewMassHandler constructs a MassHandler and panics on a nil engine.
func NewMassHandler(e *engine.Engine) *MassHandler {
	if e == nil {
		panic("nil engine passed to NewMassHandler")
	}
	return &MassHandler{Engine: e}
}

// massRequest is the body of POST and PUT /v1/admin/masses.
type massRequest struct {
	Title             string `json:"title"`
	Location          string `json:"location"`
	ScheduledAt       string `json:"scheduled_at"` // RFC 3339
	IntentionTotal    int    `json:"intention_total"`
	ThanksgivingTotal int    `json:"thanksgiving_total"`
}

func (r massRequest) input() (engine.MassInput, bool) {
	at, err := time.Parse(time.RFC3339, r.ScheduledAt)
	if err != nil {
		return engine.MassInput{}, false
	}
	return engine.MassInput{
		Title:             r.Title,
		Location:          r.Location,
		ScheduledAt:       at,
		IntentionTotal:    r.IntentionTotal,
		ThanksgivingTotal: r.ThanksgivingTotal,
	}, true
}

// List handles GET /v1/masses.  By default only masses from today (UTC)
// on are listed; include_past=true lists all of them.  limit caps the
// result (default and maximum 100).
func (h *MassHandler) List(c echo.Context) error {
	includePast, _ := strconv.ParseBool(c.QueryParam("include_past"))
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	masses, err := h.Engine.ListMasses(c.Request().Context(), includePast, limit)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"masses": masses})
}

// Get handles GET /v1/masses/:id.
func (h *MassHandler) Get(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid mass id"})
	}
	m, err := h.Engine.GetMass(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, m)
}

// Create handles POST /v1/admin/masses.
func (h *MassHandler) Create(c echo.Context) error {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		return unauthorized(c)
	}
	var body massRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	in, ok := body.input()
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "scheduled_at must be an RFC 3339 timestamp"})
	}
	m, err := h.Engine.CreateMass(c.Request().Context(), actor, in)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, m)
}

// Update handles PUT /v1/admin/masses/:id.  Details and both capacities
// are replaced together; a capacity below the committed count leaves the
// mass unchanged and answers 409 with the committed count.
func (h *MassHandler) Update(c echo.Context) error {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid mass id"})
	}
	var body massRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	in, ok := body.input()
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "scheduled_at must be an RFC 3339 timestamp"})
	}
	m, err := h.Engine.UpdateMass(c.Request().Context(), actor, id, in)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, m)
}

// Delete handles DELETE /v1/admin/masses/:id.
func (h *MassHandler) Delete(c echo.Context) error {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid mass id"})
	}
	if err := h.Engine.DeleteMass(c.Request().Context(), actor, id); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Resize handles PATCH /v1/admin/masses/:id/capacity with a body of
// {"pool": "INTENTION"|"THANKSGIVING", "total": n}.
func (h *MassHandler) Resize(c echo.Context) error {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid mass id"})
	}
	var body struct {
		Pool  model.Pool `json:"pool"`
		Total *int       `json:"total"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.Total == nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "total is required"})
	}
	m, err := h.Engine.ResizeMassCapacity(c.Request().Context(), actor, id, body.Pool, *body.Total)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, m)
}

// Reservations handles GET /v1/admin/masses/:id/reservations.
func (h *MassHandler) Reservations(c echo.Context) error {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid mass id"})
	}
	list, err := h.Engine.ListForMass(c.Request().Context(), actor, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"reservations": list})
}

// Verify handles GET /v1/admin/masses/:id/verify.
func (h *MassHandler) Verify(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid mass id"})
	}
	report, err := h.Engine.VerifyMass(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, report)
}
