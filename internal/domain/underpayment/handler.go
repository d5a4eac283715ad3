package underpayment

import (
	"bytes"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/ehr/revcycle/internal/domain/claim"
	"github.com/ehr/revcycle/internal/platform/apperr"
	"github.com/ehr/revcycle/internal/platform/auth"
	"github.com/ehr/revcycle/pkg/pagination"
)

const mimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole("admin", "billing"))
	g.GET("/claims/:id/underpayment", h.AnalyzeClaim)
	g.POST("/claims/:id/underpayment/flag", h.FlagClaim)
	g.GET("/underpayments", h.Report)
	g.GET("/underpayments/export", h.Export)
	g.GET("/underpayment-flags", h.ListFlags)
	g.POST("/underpayment-flags/:id/resolve", h.ResolveFlag)
}

func (h *Handler) AnalyzeClaim(c echo.Context) error {
	id, err := claim.ParseID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.AnalyzeClaim(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, a)
}

func reportOptions(c echo.Context) (ReportOptions, error) {
	var opts ReportOptions
	if v := c.QueryParam("topN"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return opts, apperr.HTTP(apperr.Invalid("topN", "must be a positive integer"))
		}
		opts.TopN = n
	}
	if v := c.QueryParam("underpaidOnly"); v != "" {
		only, err := strconv.ParseBool(v)
		if err != nil {
			return opts, apperr.HTTP(apperr.Invalid("underpaidOnly", "must be true or false"))
		}
		opts.UnderpaidOnly = only
	}
	return opts, nil
}

func (h *Handler) Report(c echo.Context) error {
	opts, err := reportOptions(c)
	if err != nil {
		return err
	}
	r, err := h.svc.Report(c.Request().Context(), opts)
	if err != nil {
		return apperr.HTTP(err)
	}
	if r.Claims == nil {
		r.Claims = []Analysis{}
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) Export(c echo.Context) error {
	opts, err := reportOptions(c)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := h.svc.ExportReport(c.Request().Context(), &buf, opts); err != nil {
		return apperr.HTTP(err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="underpayments.xlsx"`)
	return c.Blob(http.StatusOK, mimeXLSX, buf.Bytes())
}

func (h *Handler) FlagClaim(c echo.Context) error {
	id, err := claim.ParseID(c)
	if err != nil {
		return err
	}
	var req FlagRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return apperr.HTTP(apperr.Invalid("body", "malformed request body"))
		}
	}
	f, err := h.svc.FlagUnderpayment(c.Request().Context(), id, req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, f)
}

func (h *Handler) ListFlags(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListFlags(c.Request().Context(), FlagStatus(c.QueryParam("status")), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	if items == nil {
		items = []*Flag{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) ResolveFlag(c echo.Context) error {
	id, err := claim.ParseID(c)
	if err != nil {
		return err
	}
	var req ResolveRequest
	if err := c.Bind(&req); err != nil {
		return apperr.HTTP(apperr.Invalid("body", "malformed request body"))
	}
	f, err := h.svc.ResolveFlag(c.Request().Context(), id, req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, f)
}
