package claim

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
	"github.com/ehr/revcycle/pkg/money"
)

// =========== Claim Repository ===========

type claimRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &claimRepoPG{pool: pool} }

func (r *claimRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const claimCols = `c.id, c.tenant_id, c.claim_number, c.encounter_id, c.patient_id,
	c.total_charges_cents, c.paid_cents, c.patient_responsibility_cents, c.status,
	c.payer, c.payer_id, c.payer_name, c.service_date, c.diagnosis_codes, c.line_items,
	c.scrub_status, c.scrub_errors, c.scrub_warnings, c.scrub_info, c.last_scrubbed_at,
	c.is_cosmetic, c.cosmetic_reason,
	c.denial_reason, c.denial_code, c.denial_date, c.denial_category,
	c.appeal_status, c.appeal_notes, c.appeal_submitted_at,
	c.version_id, c.created_at, c.updated_at`

func scanClaim(row pgx.Row, extra ...interface{}) (*Claim, error) {
	var c Claim
	dest := []interface{}{&c.ID, &c.TenantID, &c.ClaimNumber, &c.EncounterID, &c.PatientID,
		&c.TotalCharges, &c.PaidAmount, &c.PatientResponsibility, &c.Status,
		&c.Payer, &c.PayerID, &c.PayerName, &c.ServiceDate, &c.DiagnosisCodes, &c.LineItems,
		&c.ScrubStatus, &c.ScrubErrors, &c.ScrubWarnings, &c.ScrubInfo, &c.LastScrubbedAt,
		&c.IsCosmetic, &c.CosmeticReason,
		&c.DenialReason, &c.DenialCode, &c.DenialDate, &c.DenialCategory,
		&c.AppealStatus, &c.AppealNotes, &c.AppealSubmittedAt,
		&c.VersionID, &c.CreatedAt, &c.UpdatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	return &c, nil
}

func issues(in []Issue) []Issue {
	if in == nil {
		return []Issue{}
	}
	return in
}

func (r *claimRepoPG) Create(ctx context.Context, c *Claim) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO claims (id, tenant_id, claim_number, encounter_id, patient_id,
			total_charges_cents, paid_cents, patient_responsibility_cents, status,
			payer, payer_id, payer_name, service_date, diagnosis_codes, line_items,
			scrub_errors, scrub_warnings, scrub_info, is_cosmetic, cosmetic_reason, version_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,1)
		RETURNING version_id, created_at, updated_at`,
		c.ID, c.TenantID, c.ClaimNumber, c.EncounterID, c.PatientID,
		c.TotalCharges, c.PaidAmount, c.PatientResponsibility, c.Status,
		c.Payer, c.PayerID, c.PayerName, c.ServiceDate, c.DiagnosisCodes, c.LineItems,
		issues(c.ScrubErrors), issues(c.ScrubWarnings), issues(c.ScrubInfo), c.IsCosmetic, c.CosmeticReason,
	).Scan(&c.VersionID, &c.CreatedAt, &c.UpdatedAt)
	return err
}

func (r *claimRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Claim, error) {
	c, err := scanClaim(r.conn(ctx).QueryRow(ctx, `SELECT `+claimCols+` FROM claims c WHERE c.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("claim", id.String())
	}
	return c, err
}

func (r *claimRepoPG) GetByNumber(ctx context.Context, number string) (*Claim, error) {
	c, err := scanClaim(r.conn(ctx).QueryRow(ctx, `SELECT `+claimCols+` FROM claims c WHERE c.claim_number = $1`, number))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("claim", number)
	}
	return c, err
}

func (r *claimRepoPG) Update(ctx context.Context, c *Claim) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE claims SET encounter_id=$3, total_charges_cents=$4, paid_cents=$5,
			patient_responsibility_cents=$6, status=$7, payer=$8, payer_id=$9, payer_name=$10,
			service_date=$11, diagnosis_codes=$12, line_items=$13,
			scrub_status=$14, scrub_errors=$15, scrub_warnings=$16, scrub_info=$17, last_scrubbed_at=$18,
			is_cosmetic=$19, cosmetic_reason=$20,
			denial_reason=$21, denial_code=$22, denial_date=$23, denial_category=$24,
			appeal_status=$25, appeal_notes=$26, appeal_submitted_at=$27,
			version_id = version_id + 1, updated_at = NOW()
		WHERE id = $1 AND version_id = $2
		RETURNING version_id, updated_at`,
		c.ID, c.VersionID, c.EncounterID, c.TotalCharges, c.PaidAmount,
		c.PatientResponsibility, c.Status, c.Payer, c.PayerID, c.PayerName,
		c.ServiceDate, c.DiagnosisCodes, c.LineItems,
		c.ScrubStatus, issues(c.ScrubErrors), issues(c.ScrubWarnings), issues(c.ScrubInfo), c.LastScrubbedAt,
		c.IsCosmetic, c.CosmeticReason,
		c.DenialReason, c.DenialCode, c.DenialDate, c.DenialCategory,
		c.AppealStatus, c.AppealNotes, c.AppealSubmittedAt,
	).Scan(&c.VersionID, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.Conflict("claim %s was modified by another request; reload and retry", c.ClaimNumber)
	}
	return err
}

func claimsFrom() *goqu.SelectDataset {
	return db.From(goqu.T("claims").As("c")).Select(goqu.L(claimCols))
}

func (r *claimRepoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Claim, int, error) {
	var conds []goqu.Expression
	if f.Status != "" {
		conds = append(conds, goqu.I("c.status").Eq(f.Status))
	}
	if f.PatientID != uuid.Nil {
		conds = append(conds, goqu.I("c.patient_id").Eq(f.PatientID))
	}
	if f.PayerID != "" {
		conds = append(conds, goqu.I("c.payer_id").Eq(f.PayerID))
	}
	if f.ServiceDateFrom != nil {
		conds = append(conds, goqu.I("c.service_date").Gte(*f.ServiceDateFrom))
	}
	if f.ServiceDateTo != nil {
		conds = append(conds, goqu.I("c.service_date").Lte(*f.ServiceDateTo))
	}
	ds := claimsFrom().Where(db.And(conds...)).Order(goqu.I("c.created_at").Desc())

	countSQL, countArgs, err := db.Count(ds).ToSQL()
	if err != nil {
		return nil, 0, fmt.Errorf("build count query: %w", err)
	}
	var total int
	if err := r.conn(ctx).QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	sql, args, err := db.Page(ds, limit, offset).ToSQL()
	if err != nil {
		return nil, 0, fmt.Errorf("build list query: %w", err)
	}
	items, err := r.query(ctx, sql, args)
	return items, total, err
}

func (r *claimRepoPG) ListOpenByServiceDate(ctx context.Context, serviceDate time.Time) ([]PatientClaim, error) {
	sql, args, err := claimsFrom().
		SelectAppend(goqu.I("p.first_name"), goqu.I("p.last_name")).
		Join(goqu.T("patient").As("p"), goqu.On(goqu.I("p.id").Eq(goqu.I("c.patient_id")))).
		Where(
			goqu.I("c.service_date").Eq(serviceDate),
			goqu.I("c.status").In(StatusSubmitted, StatusAccepted, StatusAppealed),
		).
		Order(goqu.I("c.created_at").Desc()).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build candidate query: %w", err)
	}

	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PatientClaim
	for rows.Next() {
		var pc PatientClaim
		c, err := scanClaim(rows, &pc.FirstName, &pc.LastName)
		if err != nil {
			return nil, err
		}
		pc.Claim = c
		out = append(out, pc)
	}
	return out, rows.Err()
}

func (r *claimRepoPG) ListForUnderpayment(ctx context.Context) ([]*Claim, error) {
	sql, args, err := claimsFrom().
		Where(
			goqu.I("c.status").In(StatusPaid, StatusAccepted),
			goqu.I("c.total_charges_cents").Gt(0),
			goqu.I("c.paid_cents").Gt(0),
		).
		Order(goqu.I("c.service_date").Desc()).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build underpayment query: %w", err)
	}
	return r.query(ctx, sql, args)
}

func (r *claimRepoPG) query(ctx context.Context, sql string, args []interface{}) ([]*Claim, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

// =========== Ledger Repository ===========

type ledgerRepoPG struct{ pool *pgxpool.Pool }

func NewLedgerRepoPG(pool *pgxpool.Pool) LedgerRepository { return &ledgerRepoPG{pool: pool} }

func (r *ledgerRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const paymentCols = `id, claim_id, amount_cents, payment_date, payment_method, payer, check_number,
	era_batch_id, created_by, created_at`

func scanPayment(row pgx.Row) (*Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.ClaimID, &p.AmountCents, &p.PaymentDate, &p.PaymentMethod, &p.Payer,
		&p.CheckNumber, &p.EraBatchID, &p.CreatedBy, &p.CreatedAt)
	p.Amount = money.Cents(p.AmountCents)
	return &p, err
}

func (r *ledgerRepoPG) AddPayment(ctx context.Context, p *Payment) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO payments (id, claim_id, amount_cents, payment_date, payment_method, payer,
			check_number, era_batch_id, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at`,
		p.ID, p.ClaimID, p.AmountCents, p.PaymentDate, p.PaymentMethod, p.Payer,
		p.CheckNumber, p.EraBatchID, p.CreatedBy,
	).Scan(&p.CreatedAt)
}

func (r *ledgerRepoPG) ListPayments(ctx context.Context, claimID uuid.UUID) ([]*Payment, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+paymentCols+` FROM payments WHERE claim_id = $1 ORDER BY created_at`, claimID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

func (r *ledgerRepoPG) SumPayments(ctx context.Context, claimID uuid.UUID) (int64, error) {
	var total int64
	err := r.conn(ctx).QueryRow(ctx, `SELECT COALESCE(SUM(amount_cents), 0)::bigint FROM payments WHERE claim_id = $1`, claimID).Scan(&total)
	return total, err
}

func (r *ledgerRepoPG) AddAdjustment(ctx context.Context, a *Adjustment) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO claim_adjustments (id, claim_id, code, reason, amount_cents, era_batch_id)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at`,
		a.ID, a.ClaimID, a.Code, a.Reason, a.AmountCents, a.EraBatchID,
	).Scan(&a.CreatedAt)
}

func (r *ledgerRepoPG) ListAdjustments(ctx context.Context, claimID uuid.UUID) ([]*Adjustment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, claim_id, code, reason, amount_cents, era_batch_id, created_at
		FROM claim_adjustments WHERE claim_id = $1 ORDER BY created_at`, claimID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Adjustment
	for rows.Next() {
		var a Adjustment
		if err := rows.Scan(&a.ID, &a.ClaimID, &a.Code, &a.Reason, &a.AmountCents, &a.EraBatchID, &a.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &a)
	}
	return items, rows.Err()
}

// =========== History Repository ===========

type historyRepoPG struct{ pool *pgxpool.Pool }

func NewHistoryRepoPG(pool *pgxpool.Pool) HistoryRepository { return &historyRepoPG{pool: pool} }

func (r *historyRepoPG) Append(ctx context.Context, h *StatusHistoryEntry) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO claim_status_history (id, claim_id, status, notes, changed_by, changed_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		h.ID, h.ClaimID, h.Status, h.Notes, h.ChangedBy, h.ChangedAt)
	return err
}

func (r *historyRepoPG) List(ctx context.Context, claimID uuid.UUID) ([]*StatusHistoryEntry, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT id, claim_id, status, notes, changed_by, changed_at
		FROM claim_status_history WHERE claim_id = $1 ORDER BY changed_at, id`, claimID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*StatusHistoryEntry
	for rows.Next() {
		var h StatusHistoryEntry
		if err := rows.Scan(&h.ID, &h.ClaimID, &h.Status, &h.Notes, &h.ChangedBy, &h.ChangedAt); err != nil {
			return nil, err
		}
		items = append(items, &h)
	}
	return items, rows.Err()
}
