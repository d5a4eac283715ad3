package modifier

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/revcycle/internal/domain/catalog"
)

func newTestHandler() (*Handler, *echo.Echo) {
	svc := NewService(NewAdvisor(), catalog.NewStatic(defaultRules()), zerolog.Nop())
	return NewHandler(svc), echo.New()
}

func TestHandler_Suggest(t *testing.T) {
	h, e := newTestHandler()
	body := `{"lineItems":[{"cpt":"99213","units":1,"charge":100},{"cpt":"11102","units":1,"charge":150}]}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()

	require.NoError(t, h.Suggest(e.NewContext(req, rec)))
	assert.Equal(t, http.StatusOK, rec.Code)

	var res struct {
		Suggestions []struct {
			Modifier string `json:"modifier"`
			RuleID   string `json:"ruleId"`
		} `json:"suggestions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Len(t, res.Suggestions, 1)
	assert.Equal(t, "25", res.Suggestions[0].Modifier)
}

func TestHandler_GetInfo(t *testing.T) {
	h, e := newTestHandler()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("cpt")
	c.SetParamValues("20610")

	require.NoError(t, h.GetInfo(c))
	var info CPTInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, "20610", info.CPT)
	require.NotEmpty(t, info.Rules)
	assert.Equal(t, "BILAT-20610", info.Rules[0].ID)
}

func TestHandler_ListRules_ForPayer(t *testing.T) {
	h, e := newTestHandler()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/?payerId=AET", nil), rec)

	require.NoError(t, h.ListRules(c))
	assert.Contains(t, rec.Body.String(), `"EM-25"`)
}
