package catalog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ehr/revcycle/internal/platform/db"
)

type storePG struct{ pool *pgxpool.Pool }

func NewStorePG(pool *pgxpool.Pool) Store { return &storePG{pool: pool} }

func (s *storePG) RuleSet(ctx context.Context) (*RuleSet, error) {
	q := db.Conn(ctx, s.pool)

	dx, err := collect(ctx, q, `SELECT code, description, billable FROM diagnosis_codes`,
		func(row pgx.Row) (DiagnosisCode, error) {
			var d DiagnosisCode
			err := row.Scan(&d.Code, &d.Description, &d.Billable)
			return d, err
		})
	if err != nil {
		return nil, fmt.Errorf("load diagnosis codes: %w", err)
	}

	fees, err := collect(ctx, q, `SELECT cpt, amount_cents, medicare_amount_cents, COALESCE(description, ''), cosmetic FROM fee_schedule`,
		func(row pgx.Row) (FeeScheduleEntry, error) {
			var f FeeScheduleEntry
			err := row.Scan(&f.CPT, &f.AmountCents, &f.MedicareAmountCents, &f.Description, &f.Cosmetic)
			return f, err
		})
	if err != nil {
		return nil, fmt.Errorf("load fee schedule: %w", err)
	}

	contracts, err := collect(ctx, q, `
		SELECT id, payer_id, payer_name, reimbursement_percent::text, basis,
			effective_from, effective_to, active, timely_filing_days
		FROM payer_contracts`,
		scanContract)
	if err != nil {
		return nil, fmt.Errorf("load payer contracts: %w", err)
	}

	rules, err := collect(ctx, q, `
		SELECT id, kind, COALESCE(payer_id, ''), COALESCE(cpt, ''), COALESCE(secondary_cpt, ''),
			COALESCE(modifier, ''), COALESCE(modifiers, '{}'), COALESCE(keep, ''), COALESCE(exempt, '{}'),
			required, confidence, rationale
		FROM modifier_rules`,
		func(row pgx.Row) (ModifierRule, error) {
			var r ModifierRule
			err := row.Scan(&r.ID, &r.Kind, &r.PayerID, &r.CPT, &r.SecondaryCPT,
				&r.Modifier, &r.Modifiers, &r.Keep, &r.Exempt,
				&r.Required, &r.Confidence, &r.Rationale)
			return r, err
		})
	if err != nil {
		return nil, fmt.Errorf("load modifier rules: %w", err)
	}

	mods, err := collect(ctx, q, `SELECT code, description FROM modifier_codes`,
		func(row pgx.Row) (ModifierInfo, error) {
			var m ModifierInfo
			err := row.Scan(&m.Code, &m.Description)
			return m, err
		})
	if err != nil {
		return nil, fmt.Errorf("load modifier codes: %w", err)
	}

	rules, mods = withDefaults(rules, mods)
	return NewRuleSet(dx, fees, contracts, rules, mods), nil
}

func scanContract(row pgx.Row) (PayerContract, error) {
	var (
		c   PayerContract
		pct string
	)
	if err := row.Scan(&c.ID, &c.PayerID, &c.PayerName, &pct, &c.Basis,
		&c.EffectiveFrom, &c.EffectiveTo, &c.Active, &c.TimelyFilingDays); err != nil {
		return c, err
	}
	d, err := decimal.NewFromString(pct)
	if err != nil {
		return c, fmt.Errorf("contract %s: reimbursement percent %q: %w", c.PayerID, pct, err)
	}
	c.ReimbursementPercent = d
	return c, nil
}

func collect[T any](ctx context.Context, q db.Querier, sql string, scan func(pgx.Row) (T, error)) ([]T, error) {
	rows, err := q.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
