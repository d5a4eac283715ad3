package idgen

import (
	"regexp"
	"testing"
	"time"
)

func TestUUIDGenerator_ClaimNumberFormat(t *testing.T) {
	g := &UUIDGenerator{Now: func() time.Time { return time.Date(2025, 1, 2, 15, 0, 0, 0, time.UTC) }}
	num := g.NewClaimNumber()
	if !regexp.MustCompile(`^CLM-20250102-[0-9A-F]{8}$`).MatchString(num) {
		t.Errorf("unexpected claim number %q", num)
	}
	if g.NewClaimNumber() == num {
		t.Error("expected distinct claim numbers")
	}
}

func TestSequence_Deterministic(t *testing.T) {
	a := &Sequence{Prefix: "T"}
	b := &Sequence{Prefix: "T"}
	if a.NewID() != b.NewID() {
		t.Error("sequences with the same prefix should yield the same ids")
	}
	if got := a.NewClaimNumber(); got != "T-000002" {
		t.Errorf("NewClaimNumber = %q, want T-000002", got)
	}
}
