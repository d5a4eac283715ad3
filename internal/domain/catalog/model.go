// Package catalog holds the read-only code tables the billing engines consult:
// diagnosis codes, fee schedules, payer contracts and modifier rules. A
// RuleSet is loaded once per call and passed by value into each engine.
package catalog

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	MaxModifiersPerLine     = 4
	MaxDiagnosisPointers    = 4
	DefaultTimelyFilingDays = 90
)

type DiagnosisCode struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	Billable    bool   `json:"billable"`
}

type FeeScheduleEntry struct {
	CPT                 string `json:"cpt"`
	AmountCents         int64  `json:"amountCents"`
	MedicareAmountCents *int64 `json:"medicareAmountCents,omitempty"`
	Description         string `json:"description,omitempty"`
	Cosmetic            bool   `json:"cosmetic"`
}

type ContractBasis string

const (
	BasisFeeSchedule ContractBasis = "fee_schedule"
	BasisMedicare    ContractBasis = "medicare"
)

type PayerContract struct {
	ID                   uuid.UUID       `json:"id"`
	PayerID              string          `json:"payerId"`
	PayerName            string          `json:"payerName"`
	ReimbursementPercent decimal.Decimal `json:"reimbursementPercent"`
	Basis                ContractBasis   `json:"basis"`
	EffectiveFrom        time.Time       `json:"effectiveFrom"`
	EffectiveTo          *time.Time      `json:"effectiveTo,omitempty"`
	Active               bool            `json:"active"`
	TimelyFilingDays     *int            `json:"timelyFilingDays,omitempty"`
}

// InEffect reports whether the contract applies on day.
func (c PayerContract) InEffect(day time.Time) bool {
	if !c.Active || day.Before(c.EffectiveFrom) {
		return false
	}
	return c.EffectiveTo == nil || !day.After(*c.EffectiveTo)
}

type RuleKind string

const (
	// KindPair: CPT and SecondaryCPT on the same claim, Modifier goes on SecondaryCPT.
	KindPair RuleKind = "pair"
	// KindBilateral: CPT billed with two units or on two lines takes 50.
	KindBilateral RuleKind = "bilateral"
	// KindDistinct: CPT and SecondaryCPT on the same day for different
	// diagnoses, Modifier (59/X{EPSU}) goes on SecondaryCPT.
	KindDistinct RuleKind = "distinct"
	// KindMultipleProcedure: two or more lines matching CPT; every line but
	// the highest charge takes 51. Exempt lists add-on codes.
	KindMultipleProcedure RuleKind = "multiple_procedure"
	// KindEMWithProcedure: E/M line (CPT) billed with a procedure
	// (SecondaryCPT) takes 25 on the E/M line.
	KindEMWithProcedure RuleKind = "em_with_procedure"
	// KindExclusive: Modifiers must not appear together on one line. Keep
	// names the survivor when the conflict can be fixed automatically.
	KindExclusive RuleKind = "exclusive"
)

// ModifierRule is one row of the modifier rule table. CPT patterns accept a
// trailing * for prefix matches ("992*") and a lone * for any code.
type ModifierRule struct {
	ID           string   `json:"id"`
	Kind         RuleKind `json:"kind"`
	PayerID      string   `json:"payerId,omitempty"`
	CPT          string   `json:"cpt,omitempty"`
	SecondaryCPT string   `json:"secondaryCpt,omitempty"`
	Modifier     string   `json:"modifier,omitempty"`
	Modifiers    []string `json:"modifiers,omitempty"`
	Keep         string   `json:"keep,omitempty"`
	Exempt       []string `json:"exempt,omitempty"`
	Required     bool     `json:"required"`
	Confidence   float64  `json:"confidence"`
	Rationale    string   `json:"rationale"`
}

func (r ModifierRule) normalized() ModifierRule {
	r.Modifier = upperCode(r.Modifier)
	r.Keep = upperCode(r.Keep)
	mods := make([]string, len(r.Modifiers))
	for i, m := range r.Modifiers {
		mods[i] = upperCode(m)
	}
	r.Modifiers = mods
	r.Exempt = append([]string(nil), r.Exempt...)
	return r
}

func upperCode(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Applies reports whether the rule matches cpt on its primary pattern.
func (r ModifierRule) Applies(cpt string) bool {
	return MatchCPT(r.CPT, cpt) && !r.IsExempt(cpt)
}

func (r ModifierRule) IsExempt(cpt string) bool {
	for _, e := range r.Exempt {
		if MatchCPT(e, cpt) {
			return true
		}
	}
	return false
}

type ModifierInfo struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// MatchCPT matches a CPT against a rule pattern.
func MatchCPT(pattern, cpt string) bool {
	switch {
	case pattern == "" || cpt == "":
		return false
	case pattern == "*":
		return true
	case strings.HasSuffix(pattern, "*"):
		return strings.HasPrefix(cpt, strings.TrimSuffix(pattern, "*"))
	default:
		return pattern == cpt
	}
}

// RuleSet is an immutable snapshot of a tenant's catalogs.
type RuleSet struct {
	Diagnoses     map[string]DiagnosisCode    `json:"diagnoses"`
	FeeSchedule   map[string]FeeScheduleEntry `json:"feeSchedule"`
	Contracts     []PayerContract             `json:"contracts"`
	ModifierRules []ModifierRule              `json:"modifierRules"`
	Modifiers     map[string]ModifierInfo     `json:"modifiers"`
}

// NewRuleSet copies its inputs so later changes to the slices cannot leak in.
// Modifier codes on rules are uppercased to match claim lines.
func NewRuleSet(dx []DiagnosisCode, fees []FeeScheduleEntry, contracts []PayerContract, rules []ModifierRule, mods []ModifierInfo) *RuleSet {
	rs := &RuleSet{
		Diagnoses:     make(map[string]DiagnosisCode, len(dx)),
		FeeSchedule:   make(map[string]FeeScheduleEntry, len(fees)),
		Contracts:     append([]PayerContract(nil), contracts...),
		ModifierRules: append([]ModifierRule(nil), rules...),
		Modifiers:     make(map[string]ModifierInfo, len(mods)),
	}
	for _, d := range dx {
		rs.Diagnoses[strings.ToUpper(d.Code)] = d
	}
	for _, f := range fees {
		rs.FeeSchedule[f.CPT] = f
	}
	for _, m := range mods {
		rs.Modifiers[m.Code] = m
	}
	for i := range rs.ModifierRules {
		rs.ModifierRules[i] = rs.ModifierRules[i].normalized()
	}
	sort.SliceStable(rs.ModifierRules, func(i, j int) bool { return rs.ModifierRules[i].ID < rs.ModifierRules[j].ID })
	return rs
}

func (rs *RuleSet) Diagnosis(code string) (DiagnosisCode, bool) {
	d, ok := rs.Diagnoses[strings.ToUpper(code)]
	return d, ok
}

func (rs *RuleSet) Fee(cpt string) (FeeScheduleEntry, bool) {
	f, ok := rs.FeeSchedule[cpt]
	return f, ok
}

// ContractFor returns the contract in effect on day for the payer, matched by
// id first and by name when no contract carries the id. The latest effective
// date wins.
func (rs *RuleSet) ContractFor(payerID, payerName string, day time.Time) (PayerContract, bool) {
	if payerID != "" {
		if c, ok := rs.latestContract(day, func(c PayerContract) bool { return c.PayerID == payerID }); ok {
			return c, true
		}
	}
	name := strings.TrimSpace(payerName)
	if name == "" {
		return PayerContract{}, false
	}
	return rs.latestContract(day, func(c PayerContract) bool { return strings.EqualFold(c.PayerName, name) })
}

func (rs *RuleSet) latestContract(day time.Time, match func(PayerContract) bool) (PayerContract, bool) {
	var (
		best  PayerContract
		found bool
	)
	for _, c := range rs.Contracts {
		if !c.InEffect(day) || !match(c) {
			continue
		}
		if !found || c.EffectiveFrom.After(best.EffectiveFrom) {
			best, found = c, true
		}
	}
	return best, found
}

// PayerIDForName resolves a payer name to the id on any active contract.
func (rs *RuleSet) PayerIDForName(name string) (string, bool) {
	if strings.TrimSpace(name) == "" {
		return "", false
	}
	for _, c := range rs.Contracts {
		if c.Active && c.PayerID != "" && strings.EqualFold(c.PayerName, strings.TrimSpace(name)) {
			return c.PayerID, true
		}
	}
	return "", false
}

// TimelyFilingDays is the payer's filing window, or the default.
func (rs *RuleSet) TimelyFilingDays(payerID, payerName string, day time.Time) int {
	if c, ok := rs.ContractFor(payerID, payerName, day); ok && c.TimelyFilingDays != nil && *c.TimelyFilingDays > 0 {
		return *c.TimelyFilingDays
	}
	return DefaultTimelyFilingDays
}

// RulesFor returns the global rules plus the payer's own. A payer rule
// shadows a global rule with the same id.
func (rs *RuleSet) RulesFor(payerID string) []ModifierRule {
	shadowed := map[string]bool{}
	if payerID != "" {
		for _, r := range rs.ModifierRules {
			if r.PayerID == payerID {
				shadowed[r.ID] = true
			}
		}
	}
	out := make([]ModifierRule, 0, len(rs.ModifierRules))
	for _, r := range rs.ModifierRules {
		switch {
		case r.PayerID == "" && !shadowed[r.ID]:
			out = append(out, r)
		case r.PayerID != "" && r.PayerID == payerID:
			out = append(out, r)
		}
	}
	return out
}

// ModifierDescription falls back to the code itself.
func (rs *RuleSet) ModifierDescription(code string) string {
	if m, ok := rs.Modifiers[code]; ok {
		return m.Description
	}
	return code
}
