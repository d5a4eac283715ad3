package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestFromContext(t *testing.T) {
	tests := []struct {
		query      string
		wantLimit  int
		wantOffset int
	}{
		{"", DefaultLimit, 0},
		{"?limit=5&offset=10", 5, 10},
		{"?limit=10000", MaxLimit, 0},
		{"?limit=-1&offset=-4", DefaultLimit, 0},
		{"?limit=abc", DefaultLimit, 0},
	}
	e := echo.New()
	for _, tt := range tests {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/"+tt.query, nil), httptest.NewRecorder())
		p := FromContext(c)
		if p.Limit != tt.wantLimit || p.Offset != tt.wantOffset {
			t.Errorf("%q: got %+v", tt.query, p)
		}
	}
}

func TestNewResponse_HasMore(t *testing.T) {
	if !NewResponse(nil, 30, 20, 0).HasMore {
		t.Error("expected more")
	}
	if NewResponse(nil, 30, 20, 20).HasMore {
		t.Error("expected last page")
	}
}

func TestSlice(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	if got := Slice(items, 2, 1); len(got) != 2 || got[0] != 2 {
		t.Errorf("Slice = %v", got)
	}
	if got := Slice(items, 10, 4); len(got) != 1 {
		t.Errorf("Slice tail = %v", got)
	}
	if got := Slice(items, 2, 9); len(got) != 0 {
		t.Errorf("Slice past end = %v", got)
	}
}
