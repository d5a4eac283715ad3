package batch

import (
	"errors"
	"testing"

	"github.com/ehr/revcycle/internal/platform/apperr"
)

func TestRun_IsolatesFailures(t *testing.T) {
	items := []string{"CLM-1", "CLM-2", "CLM-3", "CLM-4"}
	res := Run(items, func(id string) (string, error) {
		switch id {
		case "CLM-2":
			return "", apperr.Conflict("claim %s has blocking scrub errors", id)
		case "CLM-3":
			panic("driver exploded with row data")
		}
		return id + ":submitted", nil
	})

	if len(res.Successes) != 2 || res.Successes[0] != "CLM-1:submitted" || res.Successes[1] != "CLM-4:submitted" {
		t.Fatalf("unexpected successes %v", res.Successes)
	}
	if len(res.Failures) != 2 {
		t.Fatalf("expected 2 failures, got %d", len(res.Failures))
	}

	f := res.Failures[0]
	if f.Item != "CLM-2" || f.Type != string(apperr.TypeStateConflict) {
		t.Errorf("unexpected failure %+v", f)
	}
	if f.Error != "claim CLM-2 has blocking scrub errors" {
		t.Errorf("unexpected message %q", f.Error)
	}

	p := res.Failures[1]
	if p.Item != "CLM-3" || p.Error != apperr.UnknownError {
		t.Errorf("panic should normalize to %q, got %+v", apperr.UnknownError, p)
	}
}

func TestRun_HidesPersistenceDetail(t *testing.T) {
	res := Run([]int{1}, func(int) (int, error) {
		return 0, apperr.Persistence("submit claim", errors.New("connection reset by peer"))
	})
	if res.Failures[0].Error != "failed to submit claim" {
		t.Errorf("unexpected message %q", res.Failures[0].Error)
	}
}

func TestRun_EmptyInput(t *testing.T) {
	res := Run(nil, func(int) (int, error) { return 0, nil })
	if res.Successes == nil || res.Failures == nil {
		t.Error("slices should be non-nil so they encode as []")
	}
}
