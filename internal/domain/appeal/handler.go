package appeal

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/ehr/revcycle/internal/domain/claim"
	"github.com/ehr/revcycle/internal/platform/apperr"
	"github.com/ehr/revcycle/internal/platform/auth"
)

// DefaultWithinDays is the deadline worklist window when none is given.
const DefaultWithinDays = 30

type Handler struct {
	tracker *Tracker
}

func NewHandler(tracker *Tracker) *Handler {
	return &Handler{tracker: tracker}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole("admin", "billing"))
	g.POST("/claims/:id/appeals", h.Submit)
	g.POST("/claims/:id/appeals/outcome", h.RecordOutcome)
	g.GET("/claims/:id/appeals", h.List)
	g.GET("/appeals/deadlines", h.Deadlines)
	g.GET("/appeals/templates", h.Templates)
}

func (h *Handler) Submit(c echo.Context) error {
	id, err := claim.ParseID(c)
	if err != nil {
		return err
	}
	var req SubmitRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return apperr.HTTP(apperr.Invalid("body", "malformed request body"))
		}
	}
	out, err := h.tracker.Submit(c.Request().Context(), id, req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, out)
}

func (h *Handler) RecordOutcome(c echo.Context) error {
	id, err := claim.ParseID(c)
	if err != nil {
		return err
	}
	var req OutcomeRequest
	if err := c.Bind(&req); err != nil {
		return apperr.HTTP(apperr.Invalid("body", "malformed request body"))
	}
	out, err := h.tracker.RecordOutcome(c.Request().Context(), id, req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) List(c echo.Context) error {
	id, err := claim.ParseID(c)
	if err != nil {
		return err
	}
	items, err := h.tracker.ListAppeals(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	if items == nil {
		items = []*Appeal{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) Deadlines(c echo.Context) error {
	within := DefaultWithinDays
	if v := c.QueryParam("withinDays"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return apperr.HTTP(apperr.Invalid("withinDays", "must be an integer"))
		}
		within = n
	}
	items, err := h.tracker.ListUpcomingDeadlines(c.Request().Context(), within)
	if err != nil {
		return apperr.HTTP(err)
	}
	if items == nil {
		items = []UpcomingDeadline{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"withinDays": within, "appeals": items})
}

func (h *Handler) Templates(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{"templates": h.tracker.templates.Names()})
}
