package events

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type recorder struct{ got []Event }

func (r *recorder) Emit(_ context.Context, e Event) { r.got = append(r.got, e) }

func TestFanout_DeliversToAll(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	Fanout{a, Nop{}, b}.Emit(context.Background(), Event{Type: ClaimPaid})
	if len(a.got) != 1 || len(b.got) != 1 {
		t.Fatalf("expected one event each, got %d and %d", len(a.got), len(b.got))
	}
}

func TestLogEmitter_WritesFields(t *testing.T) {
	var buf bytes.Buffer
	id := uuid.New()
	NewLogEmitter(zerolog.New(&buf)).Emit(context.Background(), Event{
		Type: ClaimStatusChanged, TenantID: "acme", ClaimID: id, Status: "submitted",
	})

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log: %v", err)
	}
	if line["event"] != "claim.status_changed" || line["claim_id"] != id.String() || line["status"] != "submitted" {
		t.Errorf("unexpected log line %v", line)
	}
}

func TestRedisEmitter_Channel(t *testing.T) {
	r := NewRedisEmitter(nil, "", zerolog.Nop())
	if got := r.Channel("acme"); got != "revcycle:claims:acme" {
		t.Errorf("Channel = %q", got)
	}
}
