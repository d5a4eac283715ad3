// Package audit records who did what to which billing resource.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/ehr/revcycle/internal/platform/auth"
	"github.com/ehr/revcycle/internal/platform/db"
)

const (
	ActionCreate = "create"
	ActionRead   = "read"
	ActionUpdate = "update"
	ActionStatus = "status_change"
	ActionPost   = "post_payment"
	ActionImport = "import"
	ActionAppeal = "appeal"
	ActionExport = "export"
)

type Entry struct {
	TenantID     string    `json:"tenant_id"`
	UserID       string    `json:"user_id"`
	Action       string    `json:"action"`
	ResourceType string    `json:"resource_type"`
	ResourceID   string    `json:"resource_id"`
	At           time.Time `json:"at"`
}

// Sink persists audit entries. Failures are reported to the caller, who logs
// them; an audit failure never fails the business operation.
type Sink interface {
	Record(ctx context.Context, e Entry) error
}

// NewEntry fills tenant and actor from ctx.
func NewEntry(ctx context.Context, action, resourceType, resourceID string) Entry {
	return Entry{
		TenantID:     db.TenantFromContext(ctx),
		UserID:       auth.ActorFromContext(ctx),
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		At:           time.Now().UTC(),
	}
}

// Record writes the entry and logs a failure instead of returning it.
func Record(ctx context.Context, sink Sink, logger zerolog.Logger, action, resourceType, resourceID string) {
	if sink == nil {
		return
	}
	e := NewEntry(ctx, action, resourceType, resourceID)
	if err := sink.Record(ctx, e); err != nil {
		logger.Error().Err(err).
			Str("tenant_id", e.TenantID).
			Str("action", action).
			Str("resource_type", resourceType).
			Str("resource_id", resourceID).
			Msg("failed to record audit entry")
	}
}

// LogSink writes entries to the structured log only.
type LogSink struct {
	logger zerolog.Logger
}

func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Record(_ context.Context, e Entry) error {
	s.logger.Info().
		Str("type", "billing_audit").
		Str("tenant_id", e.TenantID).
		Str("user_id", e.UserID).
		Str("action", e.Action).
		Str("resource_type", e.ResourceType).
		Str("resource_id", e.ResourceID).
		Time("at", e.At).
		Msg("audit")
	return nil
}

// PGSink appends to the tenant's audit_log table.
type PGSink struct {
	pool *pgxpool.Pool
}

func NewPGSink(pool *pgxpool.Pool) *PGSink {
	return &PGSink{pool: pool}
}

func (s *PGSink) Record(ctx context.Context, e Entry) error {
	sql, args, err := insertEntry(e).ToSQL()
	if err != nil {
		return fmt.Errorf("build audit insert: %w", err)
	}
	if _, err := db.Conn(ctx, s.pool).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func insertEntry(e Entry) *goqu.InsertDataset {
	return db.Insert("audit_log").Rows(goqu.Record{
		"tenant_id":     e.TenantID,
		"user_id":       e.UserID,
		"action":        e.Action,
		"resource_type": e.ResourceType,
		"resource_id":   e.ResourceID,
		"created_at":    e.At,
	})
}

// Multi fans an entry out to several sinks and returns the first error.
type Multi []Sink

func (m Multi) Record(ctx context.Context, e Entry) error {
	var first error
	for _, s := range m {
		if err := s.Record(ctx, e); err != nil && first == nil {
			first = err
		}
	}
	return first
}
