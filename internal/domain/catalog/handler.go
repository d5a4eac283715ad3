package catalog

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/revcycle/internal/platform/apperr"
	"github.com/ehr/revcycle/internal/platform/auth"
	"github.com/ehr/revcycle/internal/platform/db"
)

type Handler struct {
	store  Store
	logger zerolog.Logger
}

func NewHandler(store Store, logger zerolog.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/catalog/refresh", h.Refresh, auth.RequireRole("admin"))
}

// Refresh drops the tenant's cached rule set after catalog tables change.
func (h *Handler) Refresh(c echo.Context) error {
	ctx := c.Request().Context()
	if err := Invalidate(ctx, h.store); err != nil {
		h.logger.Error().Err(err).
			Str("tenant_id", db.TenantFromContext(ctx)).
			Str("op", "refresh catalog").
			Msg("catalog cache invalidation failed")
		return apperr.HTTP(apperr.Persistence("refresh catalog", err))
	}
	return c.NoContent(http.StatusNoContent)
}
