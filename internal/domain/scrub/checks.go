package scrub

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/revcycle/internal/domain/catalog"
	"github.com/ehr/revcycle/internal/domain/claim"
	"github.com/ehr/revcycle/pkg/money"
)

// Check codes.
const (
	CodeMissingPatient          = "MISSING_PATIENT"
	CodeMissingPayerID          = "MISSING_PAYER_ID"
	CodeMissingServiceDate      = "MISSING_SERVICE_DATE"
	CodeFutureServiceDate       = "FUTURE_SERVICE_DATE"
	CodeNoLineItems             = "NO_LINE_ITEMS"
	CodeInvalidCPTFormat        = "INVALID_CPT_FORMAT"
	CodeInvalidUnits            = "INVALID_UNITS"
	CodeInvalidCharge           = "INVALID_CHARGE"
	CodeTotalMismatch           = "TOTAL_MISMATCH"
	CodeCosmeticReasonRequired  = "COSMETIC_REASON_REQUIRED"
	CodeNoDiagnoses             = "NO_DIAGNOSES"
	CodeUnknownDiagnosis        = "UNKNOWN_DIAGNOSIS"
	CodeLineMissingDiagnosis    = "LINE_MISSING_DIAGNOSIS"
	CodeDxPointerUnresolved     = "DX_POINTER_UNRESOLVED"
	CodeDxPointerLimit          = "DX_POINTER_LIMIT"
	CodeDxPointerOrder          = "DX_POINTER_ORDER"
	CodeModifierLimit           = "MODIFIER_LIMIT"
	CodeExclusiveModifiers      = "MUTUALLY_EXCLUSIVE_MODIFIERS"
	CodeRequiredModifierMissing = "REQUIRED_MODIFIER_MISSING"
	CodeDuplicateLine           = "DUPLICATE_LINE"
	CodeChargeBelowFee          = "CHARGE_BELOW_FEE_SCHEDULE"
	CodeCosmeticNotFlagged      = "COSMETIC_CPT_NOT_FLAGGED"
	CodeTimelyFilingRisk        = "TIMELY_FILING_RISK"
	CodeNoFeeSchedule           = "NO_FEE_SCHEDULE"
	CodeModifierSuggestion      = "MODIFIER_SUGGESTION"
)

// TimelyFilingWarnDays is how close to the filing deadline a claim starts
// to warn.
const TimelyFilingWarnDays = 14

// CPT category I/II/III codes and HCPCS level II codes.
var cptFormat = regexp.MustCompile(`^([0-9]{4}[0-9FTU]|[A-V][0-9]{4})$`)

// input is one scrub evaluation: the claim snapshot, its catalogs and the
// clock, plus advisor output computed once.
type input struct {
	c           *claim.Claim
	rs          *catalog.RuleSet
	now         time.Time
	suggestions []claim.ModifierSuggestion
}

type check struct {
	code string
	run  func(in *input) []claim.Issue
}

// checks run in this order; the order fixes the order of issues in results.
var checks = []check{
	{CodeMissingPatient, checkPatient},
	{CodeMissingPayerID, checkPayerID},
	{CodeMissingServiceDate, checkServiceDate},
	{CodeFutureServiceDate, checkFutureServiceDate},
	{CodeNoLineItems, checkLineItems},
	{CodeInvalidCPTFormat, checkCPTFormat},
	{CodeInvalidUnits, checkUnits},
	{CodeInvalidCharge, checkCharge},
	{CodeTotalMismatch, checkTotal},
	{CodeCosmeticReasonRequired, checkCosmeticReason},
	{CodeNoDiagnoses, checkDiagnoses},
	{CodeUnknownDiagnosis, checkUnknownDiagnosis},
	{CodeLineMissingDiagnosis, checkLineDiagnosis},
	{CodeDxPointerUnresolved, checkDxResolved},
	{CodeDxPointerLimit, checkDxLimit},
	{CodeDxPointerOrder, checkDxOrder},
	{CodeModifierLimit, checkModifierLimit},
	{CodeExclusiveModifiers, checkExclusiveModifiers},
	{CodeRequiredModifierMissing, checkRequiredModifiers},
	{CodeDuplicateLine, checkDuplicateLines},
	{CodeChargeBelowFee, checkChargeBelowFee},
	{CodeCosmeticNotFlagged, checkCosmeticCPT},
	{CodeTimelyFilingRisk, checkTimelyFiling},
	{CodeNoFeeSchedule, checkFeeSchedule},
	{CodeModifierSuggestion, checkSuggestions},
}

// Codes lists every check code in evaluation order.
func Codes() []string {
	out := make([]string, len(checks))
	for i, ch := range checks {
		out[i] = ch.code
	}
	return out
}

func lineIssue(code string, sev claim.Severity, line int, msg string) claim.Issue {
	i := line
	return claim.Issue{Code: code, Severity: sev, Message: msg, LineIndex: &i}
}

func checkPatient(in *input) []claim.Issue {
	if in.c.PatientID == uuid.Nil {
		return []claim.Issue{{Code: CodeMissingPatient, Severity: claim.SeverityError, Field: "patientId", Message: "claim has no patient"}}
	}
	return nil
}

func checkPayerID(in *input) []claim.Issue {
	payerID, payerName := in.c.PayerKey()
	if strings.TrimSpace(payerID) != "" {
		return nil
	}
	iss := claim.Issue{Code: CodeMissingPayerID, Severity: claim.SeverityError, Field: "payerId", Message: "claim has no payer id"}
	if id, ok := in.rs.PayerIDForName(payerName); ok {
		iss.AutoFixable = true
		iss.Message = fmt.Sprintf("claim has no payer id; %s resolves to %s", payerName, id)
		iss.Data = map[string]interface{}{"payerId": id}
	}
	return []claim.Issue{iss}
}

func checkServiceDate(in *input) []claim.Issue {
	if in.c.ServiceDate == nil {
		return []claim.Issue{{Code: CodeMissingServiceDate, Severity: claim.SeverityError, Field: "serviceDate", Message: "claim has no service date"}}
	}
	return nil
}

func checkFutureServiceDate(in *input) []claim.Issue {
	if in.c.ServiceDate == nil {
		return nil
	}
	if day(*in.c.ServiceDate).After(day(in.now)) {
		return []claim.Issue{{
			Code: CodeFutureServiceDate, Severity: claim.SeverityError, Field: "serviceDate",
			Message: fmt.Sprintf("service date %s is in the future", in.c.ServiceDate.Format("2006-01-02")),
		}}
	}
	return nil
}

func checkLineItems(in *input) []claim.Issue {
	if len(in.c.LineItems) == 0 {
		return []claim.Issue{{Code: CodeNoLineItems, Severity: claim.SeverityError, Field: "lineItems", Message: "claim has no line items"}}
	}
	return nil
}

func checkCPTFormat(in *input) []claim.Issue {
	var out []claim.Issue
	for i, li := range in.c.LineItems {
		if !cptFormat.MatchString(li.CPT) {
			out = append(out, lineIssue(CodeInvalidCPTFormat, claim.SeverityError, i, fmt.Sprintf("line %d: %q is not a valid CPT/HCPCS code", i+1, li.CPT)))
		}
	}
	return out
}

func checkUnits(in *input) []claim.Issue {
	var out []claim.Issue
	for i, li := range in.c.LineItems {
		if li.Units <= 0 {
			out = append(out, lineIssue(CodeInvalidUnits, claim.SeverityError, i, fmt.Sprintf("line %d: units must be greater than 0", i+1)))
		}
	}
	return out
}

func checkCharge(in *input) []claim.Issue {
	var out []claim.Issue
	for i, li := range in.c.LineItems {
		if li.Charge <= 0 {
			out = append(out, lineIssue(CodeInvalidCharge, claim.SeverityError, i, fmt.Sprintf("line %d: charge must be greater than 0", i+1)))
		}
	}
	return out
}

func checkTotal(in *input) []claim.Issue {
	want := in.c.ComputeTotal()
	if in.c.TotalCharges.Cents() == want {
		return nil
	}
	return []claim.Issue{{
		Code: CodeTotalMismatch, Severity: claim.SeverityError, AutoFixable: true, Field: "totalCharges",
		Message: fmt.Sprintf("total charges %s do not match line items %s", in.c.TotalCharges, money.Cents(want)),
		Data:    map[string]interface{}{"expectedCents": want},
	}}
}

func checkCosmeticReason(in *input) []claim.Issue {
	if in.c.IsCosmetic && strings.TrimSpace(derefStr(in.c.CosmeticReason)) == "" {
		return []claim.Issue{{Code: CodeCosmeticReasonRequired, Severity: claim.SeverityError, Field: "cosmeticReason", Message: "cosmetic claims need a reason"}}
	}
	return nil
}

func checkDiagnoses(in *input) []claim.Issue {
	if len(in.c.DiagnosisCodes) == 0 {
		return []claim.Issue{{Code: CodeNoDiagnoses, Severity: claim.SeverityError, Field: "diagnosisCodes", Message: "claim has no diagnosis codes"}}
	}
	return nil
}

// checkUnknownDiagnosis only runs when the tenant has a diagnosis catalog.
func checkUnknownDiagnosis(in *input) []claim.Issue {
	if len(in.rs.Diagnoses) == 0 {
		return nil
	}
	var out []claim.Issue
	for _, code := range in.c.DiagnosisCodes {
		d, ok := in.rs.Diagnosis(code)
		switch {
		case !ok:
			out = append(out, claim.Issue{
				Code: CodeUnknownDiagnosis, Severity: claim.SeverityError, Field: "diagnosisCodes",
				Message: fmt.Sprintf("diagnosis %s is not in the code catalog", code),
				Data:    map[string]interface{}{"code": code},
			})
		case !d.Billable:
			out = append(out, claim.Issue{
				Code: CodeUnknownDiagnosis, Severity: claim.SeverityError, Field: "diagnosisCodes",
				Message: fmt.Sprintf("diagnosis %s is not billable; use a more specific code", code),
				Data:    map[string]interface{}{"code": code},
			})
		}
	}
	return out
}

func checkLineDiagnosis(in *input) []claim.Issue {
	var out []claim.Issue
	for i, li := range in.c.LineItems {
		if len(li.Dx) > 0 {
			continue
		}
		iss := lineIssue(CodeLineMissingDiagnosis, claim.SeverityError, i, fmt.Sprintf("line %d has no diagnosis pointer", i+1))
		if len(in.c.DiagnosisCodes) > 0 {
			iss.AutoFixable = true
			iss.Data = map[string]interface{}{"code": in.c.DiagnosisCodes[0]}
		}
		out = append(out, iss)
	}
	return out
}

func checkDxResolved(in *input) []claim.Issue {
	var out []claim.Issue
	for i, li := range in.c.LineItems {
		for _, code := range li.Dx {
			if dxIndex(in.c, code) >= 0 {
				continue
			}
			iss := lineIssue(CodeDxPointerUnresolved, claim.SeverityError, i, fmt.Sprintf("line %d points at %s which is not on the claim", i+1, code))
			iss.Data = map[string]interface{}{"code": code}
			if _, ok := in.rs.Diagnosis(code); ok {
				iss.AutoFixable = true
			}
			out = append(out, iss)
		}
	}
	return out
}

func checkDxLimit(in *input) []claim.Issue {
	var out []claim.Issue
	for i, li := range in.c.LineItems {
		if len(li.Dx) > catalog.MaxDiagnosisPointers {
			iss := lineIssue(CodeDxPointerLimit, claim.SeverityError, i,
				fmt.Sprintf("line %d has %d diagnosis pointers; at most %d are allowed", i+1, len(li.Dx), catalog.MaxDiagnosisPointers))
			iss.AutoFixable = true
			out = append(out, iss)
		}
	}
	return out
}

func checkDxOrder(in *input) []claim.Issue {
	var out []claim.Issue
	for i, li := range in.c.LineItems {
		last := -1
		for _, code := range li.Dx {
			idx := dxIndex(in.c, code)
			if idx < 0 {
				continue
			}
			if idx < last {
				iss := lineIssue(CodeDxPointerOrder, claim.SeverityWarning, i, fmt.Sprintf("line %d diagnosis pointers are not in claim order", i+1))
				iss.AutoFixable = true
				out = append(out, iss)
				break
			}
			last = idx
		}
	}
	return out
}

func checkModifierLimit(in *input) []claim.Issue {
	var out []claim.Issue
	for i, li := range in.c.LineItems {
		if len(li.Modifiers) > catalog.MaxModifiersPerLine {
			out = append(out, lineIssue(CodeModifierLimit, claim.SeverityError, i,
				fmt.Sprintf("line %d has %d modifiers; at most %d are allowed", i+1, len(li.Modifiers), catalog.MaxModifiersPerLine)))
		}
	}
	return out
}

func checkExclusiveModifiers(in *input) []claim.Issue {
	payerID, _ := in.c.PayerKey()
	rules := exclusiveRules(in.rs, payerID)
	var out []claim.Issue
	for i, li := range in.c.LineItems {
		for _, r := range rules {
			present := conflicting(r, li)
			if present == nil {
				continue
			}
			iss := lineIssue(CodeExclusiveModifiers, claim.SeverityError, i,
				fmt.Sprintf("line %d: modifiers %s cannot be used together", i+1, strings.Join(present, ", ")))
			iss.Data = map[string]interface{}{"ruleId": r.ID, "modifiers": present}
			if r.Keep != "" && li.HasModifier(r.Keep) {
				iss.AutoFixable = true
				iss.Data["keep"] = r.Keep
			}
			out = append(out, iss)
		}
	}
	return out
}

func checkRequiredModifiers(in *input) []claim.Issue {
	payerID, _ := in.c.PayerKey()
	rules := exclusiveRules(in.rs, payerID)
	var out []claim.Issue
	for _, s := range in.suggestions {
		if !s.Required {
			continue
		}
		li := in.c.LineItems[s.LineIndex]
		iss := lineIssue(CodeRequiredModifierMissing, claim.SeverityError, s.LineIndex,
			fmt.Sprintf("line %d: %s requires modifier %s (%s)", s.LineIndex+1, s.CPT, s.Modifier, s.Rationale))
		iss.Data = map[string]interface{}{"modifier": s.Modifier, "ruleId": s.RuleID}
		iss.AutoFixable = canInject(li, s.Modifier, rules)
		out = append(out, iss)
	}
	return out
}

func checkDuplicateLines(in *input) []claim.Issue {
	var out []claim.Issue
	seen := map[string]int{}
	for i, li := range in.c.LineItems {
		key := li.CPT + "|" + strings.Join(sortedCopy(li.Modifiers), ",")
		if first, ok := seen[key]; ok {
			iss := lineIssue(CodeDuplicateLine, claim.SeverityWarning, i, fmt.Sprintf("line %d duplicates line %d (%s)", i+1, first+1, li.CPT))
			iss.Data = map[string]interface{}{"duplicateOf": first}
			out = append(out, iss)
			continue
		}
		seen[key] = i
	}
	return out
}

func checkChargeBelowFee(in *input) []claim.Issue {
	var out []claim.Issue
	for i, li := range in.c.LineItems {
		fee, ok := in.rs.Fee(li.CPT)
		if !ok || li.Charge <= 0 || li.Charge.Cents() >= fee.AmountCents {
			continue
		}
		iss := lineIssue(CodeChargeBelowFee, claim.SeverityWarning, i,
			fmt.Sprintf("line %d: charge %s is below the fee schedule amount %s for %s", i+1, li.Charge, money.Cents(fee.AmountCents), li.CPT))
		iss.Data = map[string]interface{}{"feeScheduleCents": fee.AmountCents}
		out = append(out, iss)
	}
	return out
}

func checkCosmeticCPT(in *input) []claim.Issue {
	if in.c.IsCosmetic {
		return nil
	}
	var out []claim.Issue
	for i, li := range in.c.LineItems {
		if fee, ok := in.rs.Fee(li.CPT); ok && fee.Cosmetic {
			out = append(out, lineIssue(CodeCosmeticNotFlagged, claim.SeverityWarning, i,
				fmt.Sprintf("line %d: %s is usually cosmetic but the claim is not flagged cosmetic", i+1, li.CPT)))
		}
	}
	return out
}

func checkTimelyFiling(in *input) []claim.Issue {
	if in.c.ServiceDate == nil {
		return nil
	}
	payerID, payerName := in.c.PayerKey()
	service := day(*in.c.ServiceDate)
	limit := in.rs.TimelyFilingDays(payerID, payerName, service)
	deadline := service.AddDate(0, 0, limit)
	remaining := int(deadline.Sub(day(in.now)).Hours() / 24)
	if remaining > TimelyFilingWarnDays {
		return nil
	}
	msg := fmt.Sprintf("timely filing deadline %s is %d days away", deadline.Format("2006-01-02"), remaining)
	if remaining < 0 {
		msg = fmt.Sprintf("timely filing deadline %s passed %d days ago", deadline.Format("2006-01-02"), -remaining)
	}
	return []claim.Issue{{
		Code: CodeTimelyFilingRisk, Severity: claim.SeverityWarning, Field: "serviceDate", Message: msg,
		Data: map[string]interface{}{"deadline": deadline.Format("2006-01-02"), "daysRemaining": remaining, "limitDays": limit},
	}}
}

func checkFeeSchedule(in *input) []claim.Issue {
	var out []claim.Issue
	for i, li := range in.c.LineItems {
		if _, ok := in.rs.Fee(li.CPT); !ok && cptFormat.MatchString(li.CPT) {
			out = append(out, lineIssue(CodeNoFeeSchedule, claim.SeverityInfo, i, fmt.Sprintf("line %d: no fee schedule entry for %s", i+1, li.CPT)))
		}
	}
	return out
}

func checkSuggestions(in *input) []claim.Issue {
	var out []claim.Issue
	for _, s := range in.suggestions {
		if s.Required {
			continue
		}
		iss := lineIssue(CodeModifierSuggestion, claim.SeverityInfo, s.LineIndex,
			fmt.Sprintf("line %d: consider modifier %s on %s (%s)", s.LineIndex+1, s.Modifier, s.CPT, s.Rationale))
		iss.Data = map[string]interface{}{"modifier": s.Modifier, "ruleId": s.RuleID, "confidence": s.Confidence}
		out = append(out, iss)
	}
	return out
}

// -- helpers --

func exclusiveRules(rs *catalog.RuleSet, payerID string) []catalog.ModifierRule {
	var out []catalog.ModifierRule
	for _, r := range rs.RulesFor(payerID) {
		if r.Kind == catalog.KindExclusive {
			out = append(out, r)
		}
	}
	return out
}

// conflicting returns the rule's modifiers present on li when two or more
// are, otherwise nil.
func conflicting(r catalog.ModifierRule, li claim.LineItem) []string {
	if r.CPT != "" && !r.Applies(li.CPT) {
		return nil
	}
	var present []string
	for _, m := range r.Modifiers {
		if li.HasModifier(m) {
			present = append(present, m)
		}
	}
	if len(present) < 2 {
		return nil
	}
	return present
}

// canInject reports whether adding modifier keeps li within the modifier
// limit and free of exclusive pairs.
func canInject(li claim.LineItem, modifier string, rules []catalog.ModifierRule) bool {
	if len(li.Modifiers) >= catalog.MaxModifiersPerLine {
		return false
	}
	with := li
	with.Modifiers = append(append([]string(nil), li.Modifiers...), modifier)
	for _, r := range rules {
		if conflicting(r, with) != nil {
			return false
		}
	}
	return true
}

func dxIndex(c *claim.Claim, code string) int {
	for i, d := range c.DiagnosisCodes {
		if strings.EqualFold(d, code) {
			return i
		}
	}
	return -1
}

func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func sortedCopy(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}
