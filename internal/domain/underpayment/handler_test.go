package underpayment

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/revcycle/internal/platform/apperr"
)

func newTestHandler(t *testing.T) (*Handler, *fixture, *echo.Echo) {
	f := newFixture(t)
	e := echo.New()
	e.HTTPErrorHandler = apperr.ErrorHandler(zerolog.Nop())
	return NewHandler(f.svc), f, e
}

func TestHandler_Report(t *testing.T) {
	h, f, e := newTestHandler(t)
	f.seed("CLM-1", 8000)
	f.seed("CLM-2", 9500)

	req := httptest.NewRequest(http.MethodGet, "/underpayments?topN=5", nil).WithContext(testCtx())
	rec := httptest.NewRecorder()
	if err := h.Report(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got Report
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Claims) != 2 || got.Claims[0].ClaimNumber != "CLM-1" {
		t.Errorf("expected CLM-1 then CLM-2, got %+v", got.Claims)
	}
	if got.Summary.Count != 1 || got.Summary.TotalUnderpaymentCents != 2000 {
		t.Errorf("unexpected summary %+v", got.Summary)
	}

	req = httptest.NewRequest(http.MethodGet, "/underpayments?underpaidOnly=true", nil).WithContext(testCtx())
	rec = httptest.NewRecorder()
	if err := h.Report(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got = Report{}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Claims) != 1 || got.Claims[0].ClaimNumber != "CLM-1" {
		t.Errorf("expected only CLM-1, got %+v", got.Claims)
	}
}

func TestHandler_Report_BadQuery(t *testing.T) {
	h, _, e := newTestHandler(t)
	for _, q := range []string{"topN=0", "topN=abc", "underpaidOnly=maybe"} {
		req := httptest.NewRequest(http.MethodGet, "/underpayments?"+q, nil).WithContext(testCtx())
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		err := h.Report(c)
		if err == nil {
			t.Fatalf("%s: expected error", q)
		}
		e.HTTPErrorHandler(err, c)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", q, rec.Code)
		}
	}
}

func TestHandler_Export(t *testing.T) {
	h, f, e := newTestHandler(t)
	f.seed("CLM-1", 8000)

	req := httptest.NewRequest(http.MethodGet, "/underpayments/export", nil).WithContext(testCtx())
	rec := httptest.NewRecorder()
	if err := h.Export(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != mimeXLSX {
		t.Errorf("unexpected content type %q", ct)
	}
	if !strings.Contains(rec.Header().Get(echo.HeaderContentDisposition), "underpayments.xlsx") {
		t.Errorf("missing attachment header")
	}
	if rec.Body.Len() == 0 {
		t.Error("expected workbook body")
	}
}

func TestHandler_FlagAndResolve(t *testing.T) {
	h, f, e := newTestHandler(t)
	c := f.seed("CLM-1", 8000)

	req := httptest.NewRequest(http.MethodPost, "/", nil).WithContext(testCtx())
	rec := httptest.NewRecorder()
	ec := e.NewContext(req, rec)
	ec.SetParamNames("id")
	ec.SetParamValues(c.ID.String())
	if err := h.FlagClaim(ec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var flag Flag
	json.Unmarshal(rec.Body.Bytes(), &flag)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"status":"dismissed"}`)).WithContext(testCtx())
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec = httptest.NewRecorder()
	ec = e.NewContext(req, rec)
	ec.SetParamNames("id")
	ec.SetParamValues(flag.ID.String())
	if err := h.ResolveFlag(ec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got Flag
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got.Status != FlagDismissed {
		t.Errorf("expected dismissed, got %s", got.Status)
	}
}
