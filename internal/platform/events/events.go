// Package events fans claim lifecycle events out to downstream notifiers.
// Emitting is fire-and-forget: failures are logged, never returned.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Type string

const (
	ClaimCreated         Type = "claim.created"
	ClaimUpdated         Type = "claim.updated"
	ClaimStatusChanged   Type = "claim.status_changed"
	ClaimSubmitted       Type = "claim.submitted"
	ClaimDenied          Type = "claim.denied"
	ClaimPaid            Type = "claim.paid"
	ClaimPaymentReceived Type = "claim.payment_received"
)

type Event struct {
	ID          uuid.UUID              `json:"id"`
	Type        Type                   `json:"type"`
	TenantID    string                 `json:"tenant_id"`
	ClaimID     uuid.UUID              `json:"claim_id"`
	ClaimNumber string                 `json:"claim_number,omitempty"`
	Status      string                 `json:"status,omitempty"`
	Data        map[string]interface{} `json:"data,omitempty"`
	OccurredAt  time.Time              `json:"occurred_at"`
}

type Emitter interface {
	Emit(ctx context.Context, e Event)
}

// LogEmitter writes events to the structured log.
type LogEmitter struct {
	logger zerolog.Logger
}

func NewLogEmitter(logger zerolog.Logger) *LogEmitter {
	return &LogEmitter{logger: logger}
}

func (l *LogEmitter) Emit(_ context.Context, e Event) {
	l.logger.Info().
		Str("event_id", e.ID.String()).
		Str("event", string(e.Type)).
		Str("tenant_id", e.TenantID).
		Str("claim_id", e.ClaimID.String()).
		Str("status", e.Status).
		Msg("claim event")
}

// Nop drops every event.
type Nop struct{}

func (Nop) Emit(context.Context, Event) {}

// Fanout sends each event to every emitter in order.
type Fanout []Emitter

func (f Fanout) Emit(ctx context.Context, e Event) {
	for _, em := range f {
		em.Emit(ctx, e)
	}
}
