package appeal

import (
	"context"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/revcycle/internal/platform/apperr"
	"github.com/ehr/revcycle/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const appealCols = `id, claim_id, appeal_level, appeal_status, template_used, letter, appeal_deadline,
	notes, outcome, approved_amount_cents, decision_date, submitted_by, created_at`

func scanAppeal(row pgx.Row) (*Appeal, error) {
	var a Appeal
	err := row.Scan(&a.ID, &a.ClaimID, &a.Level, &a.Status, &a.TemplateUsed, &a.Letter, &a.Deadline,
		&a.Notes, &a.Outcome, &a.ApprovedAmountCents, &a.DecisionDate, &a.SubmittedBy, &a.CreatedAt)
	return &a, err
}

func (r *repoPG) Create(ctx context.Context, a *Appeal) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appeals (id, claim_id, appeal_level, appeal_status, template_used, letter,
			appeal_deadline, notes, submitted_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at`,
		a.ID, a.ClaimID, a.Level, a.Status, a.TemplateUsed, a.Letter, a.Deadline, a.Notes, a.SubmittedBy,
	).Scan(&a.CreatedAt)
}

func (r *repoPG) RecordOutcome(ctx context.Context, a *Appeal) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE appeals SET appeal_status = $2, outcome = $3, approved_amount_cents = $4,
			decision_date = $5, notes = COALESCE($6, notes)
		WHERE id = $1`,
		a.ID, a.Status, a.Outcome, a.ApprovedAmountCents, a.DecisionDate, a.Notes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("appeal", a.ID.String())
	}
	return nil
}

func (r *repoPG) CloseOpen(ctx context.Context, claimID uuid.UUID, status Status, decided time.Time) error {
	sql, args, err := closeOpen(claimID, status, decided).ToSQL()
	if err != nil {
		return fmt.Errorf("build close appeal: %w", err)
	}
	_, err = r.conn(ctx).Exec(ctx, sql, args...)
	return err
}

func closeOpen(claimID uuid.UUID, status Status, decided time.Time) *goqu.UpdateDataset {
	return db.Update("appeals").
		Set(goqu.Record{
			"appeal_status": status,
			"outcome":       string(status),
			"decision_date": decided,
		}).
		Where(
			goqu.C("claim_id").Eq(claimID.String()),
			goqu.C("appeal_status").Eq(StatusSubmitted),
		)
}

func (r *repoPG) ListByClaim(ctx context.Context, claimID uuid.UUID) ([]*Appeal, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+appealCols+` FROM appeals
		WHERE claim_id = $1
		ORDER BY created_at DESC, id DESC`, claimID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Appeal
	for rows.Next() {
		a, err := scanAppeal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *repoPG) ListOpenDeadlines(ctx context.Context, from, to time.Time) ([]UpcomingDeadline, error) {
	sql, args, err := db.From(goqu.T("appeals").As("a")).
		Join(goqu.T("claims").As("c"), goqu.On(goqu.I("c.id").Eq(goqu.I("a.claim_id")))).
		Select("a.id", "a.claim_id", "c.claim_number", "a.appeal_level", "a.appeal_deadline").
		Where(db.And(
			goqu.I("a.appeal_status").Eq(StatusSubmitted),
			goqu.I("a.appeal_deadline").Gte(from),
			goqu.I("a.appeal_deadline").Lte(to),
		)).
		Order(goqu.I("a.appeal_deadline").Asc(), goqu.I("c.claim_number").Asc()).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build deadline query: %w", err)
	}
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []UpcomingDeadline
	for rows.Next() {
		var d UpcomingDeadline
		if err := rows.Scan(&d.AppealID, &d.ClaimID, &d.ClaimNumber, &d.Level, &d.Deadline); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
