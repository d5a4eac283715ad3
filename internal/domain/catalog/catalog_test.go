package catalog

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestMatchCPT(t *testing.T) {
	assert.True(t, MatchCPT("99213", "99213"))
	assert.True(t, MatchCPT("992*", "99214"))
	assert.True(t, MatchCPT("*", "11100"))
	assert.False(t, MatchCPT("992*", "11100"))
	assert.False(t, MatchCPT("", "11100"))
	assert.False(t, MatchCPT("99213", ""))
}

func TestRuleSet_ContractFor(t *testing.T) {
	ended := day("2024-12-31")
	rs := NewRuleSet(nil, nil, []PayerContract{
		{PayerID: "AET", PayerName: "Aetna", ReimbursementPercent: decimal.NewFromInt(90), EffectiveFrom: day("2023-01-01"), EffectiveTo: &ended, Active: true},
		{PayerID: "AET", PayerName: "Aetna", ReimbursementPercent: decimal.NewFromInt(95), EffectiveFrom: day("2025-01-01"), Active: true},
		{PayerID: "CIG", PayerName: "Cigna", ReimbursementPercent: decimal.NewFromInt(80), EffectiveFrom: day("2023-01-01"), Active: false},
	}, nil, nil)

	c, ok := rs.ContractFor("AET", "", day("2024-06-01"))
	require.True(t, ok)
	assert.Equal(t, "90", c.ReimbursementPercent.String())

	c, ok = rs.ContractFor("", "aetna", day("2025-03-01"))
	require.True(t, ok, "name lookup is case-insensitive")
	assert.Equal(t, "95", c.ReimbursementPercent.String())

	_, ok = rs.ContractFor("CIG", "", day("2024-06-01"))
	assert.False(t, ok, "inactive contracts never apply")

	c, ok = rs.ContractFor("AET-OLD", "Aetna", day("2025-03-01"))
	require.True(t, ok, "an unknown payer id falls back to the name")
	assert.Equal(t, "95", c.ReimbursementPercent.String())

	_, ok = rs.ContractFor("AET-OLD", "", day("2025-03-01"))
	assert.False(t, ok)

	id, ok := rs.PayerIDForName(" Aetna ")
	require.True(t, ok)
	assert.Equal(t, "AET", id)
	_, ok = rs.PayerIDForName("Cigna")
	assert.False(t, ok)
}

func TestRuleSet_RulesForShadowsGlobal(t *testing.T) {
	rs := NewRuleSet(nil, nil, nil, []ModifierRule{
		{ID: "EXCL-59-X", Kind: KindExclusive, Modifiers: []string{"59", "XS"}, Keep: "XS"},
		{ID: "EXCL-59-X", Kind: KindExclusive, PayerID: "MCR", Modifiers: []string{"59", "XS"}},
		{ID: "BILAT-20610", Kind: KindBilateral, CPT: "20610", Modifier: "50"},
		{ID: "ONLY-BCBS", Kind: KindPair, PayerID: "BCBS", CPT: "1", SecondaryCPT: "2", Modifier: "59"},
	}, nil)

	global := rs.RulesFor("")
	require.Len(t, global, 2)
	assert.Equal(t, "XS", global[1].Keep)

	mcr := rs.RulesFor("MCR")
	require.Len(t, mcr, 2)
	for _, r := range mcr {
		if r.ID == "EXCL-59-X" {
			assert.Equal(t, "MCR", r.PayerID)
			assert.Empty(t, r.Keep)
		}
	}
}

func TestRuleSet_TimelyFilingDays(t *testing.T) {
	days := 180
	rs := NewRuleSet(nil, nil, []PayerContract{
		{PayerID: "AET", PayerName: "Aetna", EffectiveFrom: day("2020-01-01"), Active: true, TimelyFilingDays: &days},
	}, nil, nil)
	assert.Equal(t, 180, rs.TimelyFilingDays("AET", "", day("2025-01-01")))
	assert.Equal(t, DefaultTimelyFilingDays, rs.TimelyFilingDays("UHC", "", day("2025-01-01")))
}

func TestNewRuleSet_UppercasesRuleModifiers(t *testing.T) {
	in := []ModifierRule{{ID: "EXCL-X", Kind: KindExclusive, Modifiers: []string{"xs", " xu"}, Keep: "xs", Modifier: "lt"}}
	rs := NewRuleSet(nil, nil, nil, in, nil)

	r := rs.ModifierRules[0]
	assert.Equal(t, []string{"XS", "XU"}, r.Modifiers)
	assert.Equal(t, "XS", r.Keep)
	assert.Equal(t, "LT", r.Modifier)
	assert.Equal(t, "xs", in[0].Modifiers[0], "inputs are not modified")
}

func TestNewRuleSet_CopiesInputs(t *testing.T) {
	rules := DefaultModifierRules()
	rs := NewRuleSet([]DiagnosisCode{{Code: "l70.0", Billable: true}}, nil, nil, rules, DefaultModifiers())
	rules[0].Modifier = "ZZ"

	for _, r := range rs.ModifierRules {
		assert.NotEqual(t, "ZZ", r.Modifier)
	}
	_, ok := rs.Diagnosis("L70.0")
	assert.True(t, ok, "diagnosis lookup is case-insensitive")
	assert.Equal(t, "Bilateral procedure", rs.ModifierDescription("50"))
	assert.Equal(t, "QQ", rs.ModifierDescription("QQ"))
}

func TestModifierRule_Exempt(t *testing.T) {
	r := ModifierRule{CPT: "1*", Exempt: []string{"11101"}}
	assert.True(t, r.Applies("11100"))
	assert.False(t, r.Applies("11101"))
}
