// Package underpayment compares what payers paid against what fee schedules
// and payer contracts say they should have paid.
package underpayment

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/ehr/revcycle/internal/domain/catalog"
	"github.com/ehr/revcycle/internal/domain/claim"
	"github.com/ehr/revcycle/pkg/money"
)

// Analyzer is pure: results depend only on the claim, its paid total and
// the rule set.
type Analyzer struct {
	threshold decimal.Decimal
}

// NewAnalyzer flags claims whose variance exceeds thresholdPercent. A
// negative threshold falls back to the default.
func NewAnalyzer(thresholdPercent decimal.Decimal) *Analyzer {
	if thresholdPercent.IsNegative() {
		thresholdPercent = DefaultThresholdPercent
	}
	return &Analyzer{threshold: thresholdPercent}
}

func (a *Analyzer) Threshold() decimal.Decimal { return a.threshold }

// Analyze computes expected reimbursement per line and the claim variance
// against paidCents.
func (a *Analyzer) Analyze(c *claim.Claim, paidCents int64, rs *catalog.RuleSet) Analysis {
	if rs == nil {
		rs = catalog.NewRuleSet(nil, nil, nil, nil, nil)
	}
	out := Analysis{
		ClaimID:     c.ID,
		ClaimNumber: c.ClaimNumber,
		Status:      c.Status,
		PayerID:     c.PayerID,
		PayerName:   c.PayerName,
		ServiceDate: c.ServiceDate,
		PaidCents:   paidCents,
		Lines:       make([]LineAnalysis, 0, len(c.LineItems)),
	}

	contract, hasContract := a.contract(c, rs)
	if hasContract {
		pct := contract.ReimbursementPercent
		out.ContractPercent = &pct
	}

	weights := make([]int64, len(c.LineItems))
	for i, li := range c.LineItems {
		la := LineAnalysis{
			LineIndex:   i,
			CPT:         li.CPT,
			Units:       li.Units,
			BilledCents: li.Total(),
		}
		la.Basis, la.BaselineCents = baseline(li, rs, contract, hasContract)
		la.ExpectedCents = la.BaselineCents
		if hasContract {
			la.ExpectedCents = money.ScalePercent(la.BaselineCents, contract.ReimbursementPercent)
		}
		weights[i] = la.ExpectedCents
		out.BilledCents += la.BilledCents
		out.ExpectedCents += la.ExpectedCents
		out.Lines = append(out.Lines, la)
	}

	for i, paid := range money.Allocate(paidCents, weights) {
		out.Lines[i].PaidCents = paid
		out.Lines[i].VarianceCents = out.Lines[i].ExpectedCents - paid
	}

	out.VarianceCents = out.ExpectedCents - paidCents
	out.VariancePercent = money.Percent(out.VarianceCents, out.ExpectedCents)
	out.IsUnderpaid = out.ExpectedCents > 0 && out.VariancePercent.GreaterThan(a.threshold)
	return out
}

func (a *Analyzer) contract(c *claim.Claim, rs *catalog.RuleSet) (catalog.PayerContract, bool) {
	if c.ServiceDate == nil {
		return catalog.PayerContract{}, false
	}
	payerID, payerName := c.PayerKey()
	if payerID == "" && payerName == "" {
		return catalog.PayerContract{}, false
	}
	return rs.ContractFor(payerID, payerName, *c.ServiceDate)
}

// baseline picks the Medicare rate when the contract is Medicare based and
// one exists, then the fee schedule, then the billed charge.
func baseline(li claim.LineItem, rs *catalog.RuleSet, contract catalog.PayerContract, hasContract bool) (string, int64) {
	fee, ok := rs.Fee(li.CPT)
	switch {
	case ok && hasContract && contract.Basis == catalog.BasisMedicare && fee.MedicareAmountCents != nil:
		return BasisMedicare, money.MulUnits(*fee.MedicareAmountCents, li.Units)
	case ok:
		return BasisFeeSchedule, money.MulUnits(fee.AmountCents, li.Units)
	default:
		return BasisBilled, li.Total()
	}
}

// Rank orders analyses by absolute variance, largest first, and keeps the
// top n. Ties keep claim number order so reports are stable.
func Rank(items []Analysis, n int) []Analysis {
	ranked := append([]Analysis(nil), items...)
	sort.SliceStable(ranked, func(i, j int) bool {
		vi, vj := abs(ranked[i].VarianceCents), abs(ranked[j].VarianceCents)
		if vi != vj {
			return vi > vj
		}
		return ranked[i].ClaimNumber < ranked[j].ClaimNumber
	})
	if n > 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// Summarize totals the underpaid claims in items.
func Summarize(items []Analysis) Summary {
	var (
		s   Summary
		sum decimal.Decimal
	)
	for _, a := range items {
		if !a.IsUnderpaid {
			continue
		}
		s.Count++
		s.TotalUnderpaymentCents += a.VarianceCents
		sum = sum.Add(a.VariancePercent)
	}
	if s.Count > 0 {
		s.AverageVariancePercent = sum.Div(decimal.NewFromInt(int64(s.Count))).Round(2)
	}
	return s
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
