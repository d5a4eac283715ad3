package underpayment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/revcycle/internal/platform/apperr"
	"github.com/ehr/revcycle/internal/platform/db"
)

type flagRepoPG struct{ pool *pgxpool.Pool }

func NewFlagRepoPG(pool *pgxpool.Pool) FlagRepository { return &flagRepoPG{pool: pool} }

func (r *flagRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const flagCols = `f.id, f.claim_id, c.claim_number, f.expected_amount_cents, f.actual_paid_cents,
	f.variance_percent, f.status, f.notes, f.created_by, f.created_at, f.resolved_at`

func flagsFrom() *goqu.SelectDataset {
	return db.From(goqu.T("underpayment_flags").As("f")).
		Join(goqu.T("claims").As("c"), goqu.On(goqu.I("c.id").Eq(goqu.I("f.claim_id"))))
}

func scanFlag(row pgx.Row) (*Flag, error) {
	var f Flag
	err := row.Scan(&f.ID, &f.ClaimID, &f.ClaimNumber, &f.ExpectedAmountCents, &f.ActualPaidCents,
		&f.VariancePercent, &f.Status, &f.Notes, &f.CreatedBy, &f.CreatedAt, &f.ResolvedAt)
	return &f, err
}

func (r *flagRepoPG) Create(ctx context.Context, f *Flag) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO underpayment_flags (id, claim_id, expected_amount_cents, actual_paid_cents,
			variance_percent, status, notes, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`,
		f.ID, f.ClaimID, f.ExpectedAmountCents, f.ActualPaidCents,
		f.VariancePercent, f.Status, f.Notes, f.CreatedBy,
	).Scan(&f.CreatedAt)
}

func (r *flagRepoPG) one(ctx context.Context, where ...goqu.Expression) (*Flag, error) {
	sql, args, err := flagsFrom().Select(goqu.L(flagCols)).Where(where...).
		Order(goqu.I("f.created_at").Desc()).Limit(1).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build flag query: %w", err)
	}
	return scanFlag(r.conn(ctx).QueryRow(ctx, sql, args...))
}

func (r *flagRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Flag, error) {
	f, err := r.one(ctx, goqu.I("f.id").Eq(id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("underpayment flag", id.String())
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (r *flagRepoPG) PendingForClaim(ctx context.Context, claimID uuid.UUID) (*Flag, error) {
	f, err := r.one(ctx, goqu.I("f.claim_id").Eq(claimID), goqu.I("f.status").Eq(FlagPending))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (r *flagRepoPG) List(ctx context.Context, status FlagStatus, limit, offset int) ([]*Flag, int, error) {
	ds := flagsFrom()
	if status != "" {
		ds = ds.Where(goqu.I("f.status").Eq(status))
	}

	countSQL, countArgs, err := db.Count(ds).ToSQL()
	if err != nil {
		return nil, 0, fmt.Errorf("build count query: %w", err)
	}
	var total int
	if err := r.conn(ctx).QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	sql, args, err := db.Page(ds.Select(goqu.L(flagCols)).Order(goqu.I("f.created_at").Desc()), limit, offset).ToSQL()
	if err != nil {
		return nil, 0, fmt.Errorf("build list query: %w", err)
	}
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []*Flag
	for rows.Next() {
		f, err := scanFlag(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, f)
	}
	return out, total, rows.Err()
}

func (r *flagRepoPG) Resolve(ctx context.Context, id uuid.UUID, status FlagStatus, notes *string, at time.Time) (*Flag, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE underpayment_flags SET status = $2, notes = COALESCE($3, notes), resolved_at = $4
		WHERE id = $1 AND status = $5`,
		id, status, notes, at, FlagPending)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		existing, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, apperr.Conflict("underpayment flag %s is already %s", id, existing.Status)
	}
	return r.GetByID(ctx, id)
}
