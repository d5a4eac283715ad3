package era

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/revcycle/internal/platform/apperr"
	"github.com/ehr/revcycle/internal/platform/auth"
	"github.com/ehr/revcycle/pkg/pagination"
)

type Handler struct {
	rec *Reconciler
}

func NewHandler(rec *Reconciler) *Handler {
	return &Handler{rec: rec}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/era", auth.RequireRole("admin", "billing"))
	g.POST("/import", h.Import)
	g.GET("/batches", h.ListBatches)
	g.GET("/batches/:id", h.GetBatch)
}

// Import accepts JSON, or gzip'd JSON when Content-Encoding says so.
func (h *Handler) Import(c echo.Context) error {
	body := c.Request().Body
	if c.Request().Header.Get(echo.HeaderContentEncoding) == "gzip" {
		zr, err := newGzipReader(body)
		if err != nil {
			return apperr.HTTP(apperr.Invalid("body", "malformed gzip body"))
		}
		defer zr.Close()
		body = zr
	}
	req, err := DecodeImport(body)
	if err != nil {
		return apperr.HTTP(apperr.Invalid("body", "malformed request body"))
	}
	if req.Claims == nil {
		return apperr.HTTP(apperr.Invalid("claims", "is required"))
	}
	res, err := h.rec.Import(c.Request().Context(), req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) ListBatches(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.rec.ListBatches(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	if items == nil {
		items = []*Batch{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetBatch(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.HTTP(apperr.Invalid("id", "must be a UUID"))
	}
	b, err := h.rec.GetBatch(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, b)
}
