package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/revcycle/internal/platform/auth"
	"github.com/ehr/revcycle/internal/platform/db"
)

type memSink struct {
	entries []Entry
	err     error
}

func (m *memSink) Record(_ context.Context, e Entry) error {
	m.entries = append(m.entries, e)
	return m.err
}

func TestRecord_FillsActorAndTenant(t *testing.T) {
	ctx := auth.WithUser(db.WithTenant(context.Background(), "acme"), "biller-1", "billing")
	sink := &memSink{}

	Record(ctx, sink, zerolog.Nop(), ActionCreate, "claim", "c-1")

	if len(sink.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(sink.entries))
	}
	e := sink.entries[0]
	if e.TenantID != "acme" || e.UserID != "biller-1" || e.Action != ActionCreate || e.ResourceID != "c-1" {
		t.Errorf("unexpected entry %+v", e)
	}
}

func TestRecord_LogsSinkFailure(t *testing.T) {
	var buf bytes.Buffer
	sink := &memSink{err: errors.New("disk full")}

	Record(context.Background(), sink, zerolog.New(&buf), ActionUpdate, "claim", "c-2")

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected a log line: %v", err)
	}
	if line["message"] != "failed to record audit entry" || line["resource_id"] != "c-2" {
		t.Errorf("unexpected log %v", line)
	}
}

func TestMulti_ReturnsFirstError(t *testing.T) {
	a, b := &memSink{err: errors.New("a")}, &memSink{}
	err := Multi{a, b}.Record(context.Background(), Entry{Action: ActionRead})
	if err == nil || err.Error() != "a" {
		t.Fatalf("expected first error, got %v", err)
	}
	if len(b.entries) != 1 {
		t.Error("second sink should still receive the entry")
	}
}

func TestInsertEntry_Placeholders(t *testing.T) {
	at := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	sql, args, err := insertEntry(Entry{
		TenantID: "acme", UserID: "biller-1", Action: ActionImport,
		ResourceType: "era_batch", ResourceID: "b-1", At: at,
	}).ToSQL()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !strings.HasPrefix(sql, `INSERT INTO "audit_log"`) || !strings.Contains(sql, "$6") {
		t.Errorf("unexpected sql %q", sql)
	}
	if len(args) != 6 {
		t.Fatalf("expected 6 args, got %v", args)
	}
	found := false
	for _, a := range args {
		if a == "era_batch" {
			found = true
		}
	}
	if !found {
		t.Errorf("resource type missing from args %v", args)
	}
}
