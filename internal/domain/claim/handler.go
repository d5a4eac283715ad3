package claim

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/revcycle/internal/platform/apperr"
	"github.com/ehr/revcycle/internal/platform/auth"
	"github.com/ehr/revcycle/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Read endpoints – admin, billing
	read := api.Group("", auth.RequireRole("admin", "billing"))
	read.GET("/claims", h.ListClaims)
	read.GET("/claims/:id", h.GetClaim)
	read.GET("/claims/:id/payments", h.ListPayments)
	read.GET("/claims/:id/adjustments", h.ListAdjustments)
	read.GET("/claims/:id/history", h.ListHistory)
	read.GET("/claims/:id/scrub/passed", h.PassedChecks)
	read.GET("/claims/:id/modifier-suggestions", h.SuggestModifiers)

	// Write endpoints – admin, billing
	write := api.Group("", auth.RequireRole("admin", "billing"))
	write.POST("/claims", h.CreateClaim)
	write.PUT("/claims/:id", h.UpdateClaim)
	write.POST("/claims/:id/status", h.TransitionStatus)
	write.POST("/claims/:id/submit", h.SubmitClaim)
	write.POST("/claims/submit", h.SubmitClaims)
	write.POST("/claims/:id/payments", h.PostPayment)
	write.POST("/claims/:id/scrub", h.ScrubClaim)
}

// ParseID reads the :id route parameter.
func ParseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperr.HTTP(apperr.Invalid("id", "must be a UUID"))
	}
	return id, nil
}

func bind(c echo.Context, v interface{}) error {
	if err := c.Bind(v); err != nil {
		return apperr.HTTP(apperr.Invalid("body", "malformed request body"))
	}
	return nil
}

func (h *Handler) CreateClaim(c echo.Context) error {
	var req CreateRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	cl, err := h.svc.CreateClaim(c.Request().Context(), req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, cl)
}

func (h *Handler) GetClaim(c echo.Context) error {
	id, err := ParseID(c)
	if err != nil {
		return err
	}
	cl, err := h.svc.GetClaim(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, cl)
}

func (h *Handler) ListClaims(c echo.Context) error {
	pg := pagination.FromContext(c)
	f, err := filterFromQuery(c)
	if err != nil {
		return apperr.HTTP(err)
	}
	items, total, err := h.svc.ListClaims(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	if items == nil {
		items = []*Claim{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func filterFromQuery(c echo.Context) (Filter, error) {
	f := Filter{
		Status:  Status(c.QueryParam("status")),
		PayerID: c.QueryParam("payerId"),
	}
	fields := apperr.Fields{}
	if v := c.QueryParam("patientId"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			fields.Add("patientId", "must be a UUID")
		}
		f.PatientID = id
	}
	if v := c.QueryParam("serviceDateFrom"); v != "" {
		d, err := ParseDate(v)
		if err != nil {
			fields.Add("serviceDateFrom", "must be YYYY-MM-DD")
		}
		f.ServiceDateFrom = d.Ptr()
	}
	if v := c.QueryParam("serviceDateTo"); v != "" {
		d, err := ParseDate(v)
		if err != nil {
			fields.Add("serviceDateTo", "must be YYYY-MM-DD")
		}
		f.ServiceDateTo = d.Ptr()
	}
	return f, fields.Err()
}

func (h *Handler) UpdateClaim(c echo.Context) error {
	id, err := ParseID(c)
	if err != nil {
		return err
	}
	var req UpdateRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	cl, err := h.svc.UpdateClaim(c.Request().Context(), id, req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, cl)
}

func (h *Handler) TransitionStatus(c echo.Context) error {
	id, err := ParseID(c)
	if err != nil {
		return err
	}
	var req TransitionRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	cl, err := h.svc.TransitionStatus(c.Request().Context(), id, req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, cl)
}

func (h *Handler) SubmitClaim(c echo.Context) error {
	id, err := ParseID(c)
	if err != nil {
		return err
	}
	cl, err := h.svc.SubmitClaim(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, cl)
}

func (h *Handler) SubmitClaims(c echo.Context) error {
	var req BulkSubmitRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if len(req.ClaimIDs) == 0 {
		return apperr.HTTP(apperr.Invalid("claimIds", "at least one claim id is required"))
	}
	return c.JSON(http.StatusOK, h.svc.SubmitClaims(c.Request().Context(), req.ClaimIDs))
}

func (h *Handler) PostPayment(c echo.Context) error {
	id, err := ParseID(c)
	if err != nil {
		return err
	}
	var req PaymentRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	res, err := h.svc.PostPayment(c.Request().Context(), id, req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, res)
}

func (h *Handler) ListPayments(c echo.Context) error {
	id, err := ParseID(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListPayments(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	if items == nil {
		items = []*Payment{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) ListAdjustments(c echo.Context) error {
	id, err := ParseID(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListAdjustments(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	if items == nil {
		items = []*Adjustment{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) ListHistory(c echo.Context) error {
	id, err := ParseID(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListStatusHistory(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	if items == nil {
		items = []*StatusHistoryEntry{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) ScrubClaim(c echo.Context) error {
	id, err := ParseID(c)
	if err != nil {
		return err
	}
	autoFix := false
	if v := c.QueryParam("autoFix"); v != "" {
		if autoFix, err = strconv.ParseBool(v); err != nil {
			return apperr.HTTP(apperr.Invalid("autoFix", "must be true or false"))
		}
	}
	out, err := h.svc.ScrubClaim(c.Request().Context(), id, autoFix)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) PassedChecks(c echo.Context) error {
	id, err := ParseID(c)
	if err != nil {
		return err
	}
	checks, err := h.svc.GetPassedChecks(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"passed": checks})
}

func (h *Handler) SuggestModifiers(c echo.Context) error {
	id, err := ParseID(c)
	if err != nil {
		return err
	}
	items, err := h.svc.SuggestModifiers(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	if items == nil {
		items = []ModifierSuggestion{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"suggestions": items})
}
