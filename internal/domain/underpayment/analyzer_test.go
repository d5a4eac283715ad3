package underpayment

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/revcycle/internal/domain/catalog"
	"github.com/ehr/revcycle/internal/domain/claim"
	"github.com/ehr/revcycle/pkg/money"
)

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func str(s string) *string { return &s }

func i64(v int64) *int64 { return &v }

func testRules() *catalog.RuleSet {
	fees := []catalog.FeeScheduleEntry{
		{CPT: "99213", AmountCents: 10000, MedicareAmountCents: i64(7000)},
		{CPT: "20610", AmountCents: 5000},
		{CPT: "11102", AmountCents: 14000},
	}
	contracts := []catalog.PayerContract{
		{PayerID: "AET", PayerName: "Aetna", ReimbursementPercent: decimal.NewFromInt(80),
			Basis: catalog.BasisFeeSchedule, EffectiveFrom: *date(2024, 1, 1), Active: true},
		{PayerID: "MCR", PayerName: "Medicare", ReimbursementPercent: decimal.NewFromInt(110),
			Basis: catalog.BasisMedicare, EffectiveFrom: *date(2024, 1, 1), Active: true},
		{PayerID: "OLD", PayerName: "Old Payer", ReimbursementPercent: decimal.NewFromInt(50),
			EffectiveFrom: *date(2020, 1, 1), EffectiveTo: date(2021, 1, 1), Active: true},
	}
	return catalog.NewRuleSet(nil, fees, contracts, nil, nil)
}

func testClaim(number string, lines ...claim.LineItem) *claim.Claim {
	c := &claim.Claim{
		ID:          uuid.New(),
		ClaimNumber: number,
		Status:      claim.StatusPaid,
		ServiceDate: date(2025, 2, 3),
		LineItems:   lines,
	}
	c.TotalCharges = money.Cents(c.ComputeTotal())
	return c
}

func line(cpt string, units int, charge int64) claim.LineItem {
	return claim.LineItem{CPT: cpt, Units: units, Charge: money.Cents(charge)}
}

func TestAnalyze_Thresholds(t *testing.T) {
	a := NewAnalyzer(DefaultThresholdPercent)
	rs := testRules()

	tests := []struct {
		name      string
		paid      int64
		variance  int64
		percent   string
		underpaid bool
	}{
		{"twenty percent short", 8000, 2000, "20", true},
		{"five percent short", 9500, 500, "5", false},
		{"exactly at threshold", 9000, 1000, "10", false},
		{"overpaid", 12000, -2000, "-20", false},
		{"paid in full", 10000, 0, "0", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testClaim("CLM-1", line("99213", 1, 15000))
			got := a.Analyze(c, tt.paid, rs)
			assert.Equal(t, int64(10000), got.ExpectedCents)
			assert.Equal(t, int64(15000), got.BilledCents)
			assert.Equal(t, tt.variance, got.VarianceCents)
			assert.True(t, got.VariancePercent.Equal(decimal.RequireFromString(tt.percent)), "got %s", got.VariancePercent)
			assert.Equal(t, tt.underpaid, got.IsUnderpaid)
			assert.Nil(t, got.ContractPercent)
		})
	}
}

func TestAnalyze_ContractBasis(t *testing.T) {
	a := NewAnalyzer(DefaultThresholdPercent)
	rs := testRules()

	t.Run("fee schedule contract", func(t *testing.T) {
		c := testClaim("CLM-1", line("99213", 2, 15000))
		c.PayerID = str("AET")
		got := a.Analyze(c, 16000, rs)
		require.Len(t, got.Lines, 1)
		assert.Equal(t, BasisFeeSchedule, got.Lines[0].Basis)
		assert.Equal(t, int64(20000), got.Lines[0].BaselineCents)
		assert.Equal(t, int64(16000), got.ExpectedCents)
		assert.True(t, got.ContractPercent.Equal(decimal.NewFromInt(80)))
		assert.False(t, got.IsUnderpaid)
	})

	t.Run("medicare contract matched by name", func(t *testing.T) {
		c := testClaim("CLM-2", line("99213", 1, 15000), line("20610", 1, 9000))
		c.PayerName = str("medicare")
		got := a.Analyze(c, 0, rs)
		require.Len(t, got.Lines, 2)
		assert.Equal(t, BasisMedicare, got.Lines[0].Basis)
		assert.Equal(t, int64(7700), got.Lines[0].ExpectedCents)
		// no Medicare rate for 20610, so the fee schedule applies
		assert.Equal(t, BasisFeeSchedule, got.Lines[1].Basis)
		assert.Equal(t, int64(5500), got.Lines[1].ExpectedCents)
		assert.Equal(t, int64(13200), got.ExpectedCents)
		assert.True(t, got.IsUnderpaid)
	})

	t.Run("expired contract is ignored", func(t *testing.T) {
		c := testClaim("CLM-3", line("99213", 1, 15000))
		c.PayerID = str("OLD")
		got := a.Analyze(c, 10000, rs)
		assert.Nil(t, got.ContractPercent)
		assert.Equal(t, int64(10000), got.ExpectedCents)
	})

	t.Run("unknown code falls back to billed", func(t *testing.T) {
		c := testClaim("CLM-4", line("99999", 3, 2000))
		got := a.Analyze(c, 6000, rs)
		assert.Equal(t, BasisBilled, got.Lines[0].Basis)
		assert.Equal(t, int64(6000), got.ExpectedCents)
		assert.True(t, got.VariancePercent.IsZero())
	})
}

func TestAnalyze_AllocatesPaidAcrossLines(t *testing.T) {
	a := NewAnalyzer(DefaultThresholdPercent)
	c := testClaim("CLM-1", line("99213", 1, 15000), line("20610", 1, 9000), line("20610", 1, 9000))
	got := a.Analyze(c, 10001, testRules())

	var sum int64
	for _, l := range got.Lines {
		sum += l.PaidCents
		assert.Equal(t, l.ExpectedCents-l.PaidCents, l.VarianceCents)
	}
	assert.Equal(t, int64(10001), sum)
	assert.Equal(t, int64(5001), got.Lines[0].PaidCents)
}

func TestAnalyze_NoExpectedAmount(t *testing.T) {
	a := NewAnalyzer(DefaultThresholdPercent)
	c := testClaim("CLM-1")
	got := a.Analyze(c, 500, nil)
	assert.Zero(t, got.ExpectedCents)
	assert.True(t, got.VariancePercent.IsZero())
	assert.False(t, got.IsUnderpaid)
	assert.Empty(t, got.Lines)
}

func TestNewAnalyzer_NegativeThreshold(t *testing.T) {
	assert.True(t, NewAnalyzer(decimal.NewFromInt(-1)).Threshold().Equal(DefaultThresholdPercent))
	assert.True(t, NewAnalyzer(decimal.Zero).Threshold().IsZero())
}

func TestRank(t *testing.T) {
	items := []Analysis{
		{ClaimNumber: "CLM-3", VarianceCents: 500},
		{ClaimNumber: "CLM-1", VarianceCents: -4000},
		{ClaimNumber: "CLM-2", VarianceCents: 500},
		{ClaimNumber: "CLM-4", VarianceCents: 3000},
	}
	got := Rank(items, 3)
	require.Len(t, got, 3)
	assert.Equal(t, "CLM-1", got[0].ClaimNumber)
	assert.Equal(t, "CLM-4", got[1].ClaimNumber)
	assert.Equal(t, "CLM-2", got[2].ClaimNumber)
	assert.Equal(t, "CLM-3", items[0].ClaimNumber, "input must not be reordered")

	assert.Len(t, Rank(items, 0), 4)
}

func TestSummarize(t *testing.T) {
	items := []Analysis{
		{VarianceCents: 2000, VariancePercent: decimal.NewFromInt(20), IsUnderpaid: true},
		{VarianceCents: 1500, VariancePercent: decimal.RequireFromString("15.5"), IsUnderpaid: true},
		{VarianceCents: 100, VariancePercent: decimal.NewFromInt(1)},
	}
	got := Summarize(items)
	assert.Equal(t, 2, got.Count)
	assert.Equal(t, int64(3500), got.TotalUnderpaymentCents)
	assert.Equal(t, "17.75", got.AverageVariancePercent.String())

	empty := Summarize(nil)
	assert.Zero(t, empty.Count)
	assert.True(t, empty.AverageVariancePercent.IsZero())
}
