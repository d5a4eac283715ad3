package modifier

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/revcycle/internal/platform/apperr"
	"github.com/ehr/revcycle/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/modifiers", auth.RequireRole("admin", "billing"))
	g.POST("/suggest", h.Suggest)
	g.GET("/rules", h.ListRules)
	g.GET("/:cpt", h.GetInfo)
}

func (h *Handler) Suggest(c echo.Context) error {
	var req SuggestRequest
	if err := c.Bind(&req); err != nil {
		return apperr.HTTP(apperr.Invalid("body", "malformed request body"))
	}
	items, err := h.svc.Suggest(c.Request().Context(), req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"suggestions": items})
}

func (h *Handler) ListRules(c echo.Context) error {
	rules, err := h.svc.GetAllModifierRules(c.Request().Context(), c.QueryParam("payerId"))
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"rules": rules})
}

func (h *Handler) GetInfo(c echo.Context) error {
	info, err := h.svc.GetModifierInfo(c.Request().Context(), c.Param("cpt"))
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, info)
}
