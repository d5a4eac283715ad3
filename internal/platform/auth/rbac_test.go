package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name  string
		roles []string
		want  int
	}{
		{"billing allowed", []string{"billing"}, http.StatusOK},
		{"admin bypass", []string{"admin"}, http.StatusOK},
		{"nurse denied", []string{"nurse"}, http.StatusForbidden},
		{"no roles", nil, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req = req.WithContext(WithUser(context.Background(), "u", tt.roles...))
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			h := RequireRole("billing")(func(c echo.Context) error {
				return c.NoContent(http.StatusOK)
			})
			err := h(c)
			if tt.want == http.StatusOK {
				if err != nil || rec.Code != http.StatusOK {
					t.Fatalf("expected pass, got %v", err)
				}
				return
			}
			he, ok := err.(*echo.HTTPError)
			if !ok || he.Code != tt.want {
				t.Fatalf("expected %d, got %v", tt.want, err)
			}
		})
	}
}
