package money

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

func TestToCents(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"300", 30000},
		{"150.00", 15000},
		{"0.1", 10},
		{"19.995", 2000},
		{"-4.5", -450},
	}
	for _, tt := range tests {
		got := ToCents(decimal.RequireFromString(tt.in))
		if got != tt.want {
			t.Errorf("ToCents(%s) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestFromCents(t *testing.T) {
	if got := FromCents(30050).String(); got != "300.5" {
		t.Errorf("FromCents(30050) = %s, want 300.5", got)
	}
}

func TestFromFloat(t *testing.T) {
	if got := FromFloat(7.5); got.String() != "7.5" {
		t.Errorf("FromFloat(7.5) = %s, want 7.5", got)
	}
	if got := FromFloat(0.1 + 0.2); got.String() != "0.3" {
		t.Errorf("FromFloat(0.1+0.2) = %s, want 0.3", got)
	}
}

func TestPercent(t *testing.T) {
	if got := Percent(2000, 10000); !got.Equal(decimal.NewFromInt(20)) {
		t.Errorf("Percent(2000,10000) = %s, want 20", got)
	}
	if got := Percent(1, 3); got.String() != "33.33" {
		t.Errorf("Percent(1,3) = %s, want 33.33", got)
	}
	if got := Percent(5, 0); !got.IsZero() {
		t.Errorf("Percent with zero denominator = %s, want 0", got)
	}
}

func TestScalePercent(t *testing.T) {
	if got := ScalePercent(10000, decimal.NewFromInt(80)); got != 8000 {
		t.Errorf("ScalePercent = %d, want 8000", got)
	}
	if got := ScalePercent(333, decimal.RequireFromString("50")); got != 167 {
		t.Errorf("ScalePercent(333, 50) = %d, want 167", got)
	}
}

func TestAllocate_SumsExactly(t *testing.T) {
	parts := Allocate(10000, []int64{1, 1, 1})
	var sum int64
	for _, p := range parts {
		sum += p
	}
	if sum != 10000 {
		t.Fatalf("parts sum to %d, want 10000", sum)
	}
	if parts[0] != 3334 || parts[1] != 3333 || parts[2] != 3333 {
		t.Errorf("unexpected split %v", parts)
	}
}

func TestAllocate_Proportional(t *testing.T) {
	parts := Allocate(8000, []int64{15000, 15000, 0})
	if parts[0] != 4000 || parts[1] != 4000 || parts[2] != 0 {
		t.Errorf("unexpected split %v", parts)
	}
}

func TestAllocate_NoWeights(t *testing.T) {
	parts := Allocate(500, []int64{0, 0})
	if parts[0] != 0 || parts[1] != 0 {
		t.Errorf("expected zero parts, got %v", parts)
	}
}

func TestDecimalJSONIsNumber(t *testing.T) {
	b, err := json.Marshal(struct {
		V decimal.Decimal `json:"v"`
	}{V: FromCents(30000)})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"v":300}` {
		t.Errorf("got %s", b)
	}
}

func TestAmount_JSON(t *testing.T) {
	var v struct {
		Charge Amount `json:"charge"`
		Quoted Amount `json:"quoted"`
	}
	if err := json.Unmarshal([]byte(`{"charge":75.5,"quoted":"19.995"}`), &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v.Charge.Cents() != 7550 || v.Quoted.Cents() != 2000 {
		t.Errorf("got %d and %d cents", v.Charge.Cents(), v.Quoted.Cents())
	}

	out, err := json.Marshal(struct {
		Total Amount `json:"total"`
	}{Cents(30000)})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `{"total":300}` {
		t.Errorf("marshal = %s", out)
	}
	if Cents(15025).String() != "150.25" {
		t.Errorf("String = %s", Cents(15025).String())
	}

	if err := json.Unmarshal([]byte(`{"charge":"abc"}`), &v); err == nil {
		t.Error("expected error for non-numeric amount")
	}
}
