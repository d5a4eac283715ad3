package era

import (
	"context"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/revcycle/internal/platform/apperr"
	"github.com/ehr/revcycle/internal/platform/db"
)

type batchRepoPG struct{ pool *pgxpool.Pool }

func NewBatchRepoPG(pool *pgxpool.Pool) BatchRepository { return &batchRepoPG{pool: pool} }

func (r *batchRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const batchCols = `id, filename, status, total_claims, matched, auto_posted, unmatched, denied,
	partial_payments, error_count, total_paid_cents, total_adjustments_cents, failure_reason,
	result, created_by, created_at, completed_at`

func scanBatch(row pgx.Row) (*Batch, error) {
	var b Batch
	err := row.Scan(&b.ID, &b.Filename, &b.Status, &b.TotalClaims, &b.Matched, &b.AutoPosted,
		&b.Unmatched, &b.Denied, &b.PartialPayments, &b.ErrorCount, &b.TotalPaidCents,
		&b.TotalAdjustmentsCents, &b.FailureReason, &b.Result, &b.CreatedBy, &b.CreatedAt, &b.CompletedAt)
	return &b, err
}

func (r *batchRepoPG) Create(ctx context.Context, b *Batch) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO era_import_batches (id, filename, status, total_claims, created_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		b.ID, b.Filename, b.Status, b.TotalClaims, b.CreatedBy,
	).Scan(&b.CreatedAt)
}

func (r *batchRepoPG) Complete(ctx context.Context, b *Batch) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE era_import_batches SET status = $2, matched = $3, auto_posted = $4, unmatched = $5,
			denied = $6, partial_payments = $7, error_count = $8, total_paid_cents = $9,
			total_adjustments_cents = $10, result = $11, completed_at = NOW()
		WHERE id = $1
		RETURNING completed_at`,
		b.ID, BatchCompleted, b.Matched, b.AutoPosted, b.Unmatched, b.Denied, b.PartialPayments,
		b.ErrorCount, b.TotalPaidCents, b.TotalAdjustmentsCents, b.Result,
	).Scan(&b.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("era batch", b.ID.String())
	}
	if err == nil {
		b.Status = BatchCompleted
	}
	return err
}

func (r *batchRepoPG) Fail(ctx context.Context, id uuid.UUID, reason string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE era_import_batches SET status = $2, failure_reason = $3, completed_at = NOW()
		WHERE id = $1`, id, BatchFailed, reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("era batch", id.String())
	}
	return nil
}

func (r *batchRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Batch, error) {
	b, err := scanBatch(r.conn(ctx).QueryRow(ctx, `SELECT `+batchCols+` FROM era_import_batches WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("era batch", id.String())
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// List omits the stored result; callers fetch one batch for the detail.
func (r *batchRepoPG) List(ctx context.Context, limit, offset int) ([]*Batch, int, error) {
	ds := db.From("era_import_batches")

	countSQL, countArgs, err := db.Count(ds).ToSQL()
	if err != nil {
		return nil, 0, fmt.Errorf("build count query: %w", err)
	}
	var total int
	if err := r.conn(ctx).QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	sql, args, err := db.Page(ds.Select(goqu.L(batchCols)).Order(goqu.I("created_at").Desc()), limit, offset).ToSQL()
	if err != nil {
		return nil, 0, fmt.Errorf("build list query: %w", err)
	}
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []*Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, 0, err
		}
		b.Result = nil
		out = append(out, b)
	}
	return out, total, rows.Err()
}
