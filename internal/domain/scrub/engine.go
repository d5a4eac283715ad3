// Package scrub validates claims before submission and repairs the issues
// that have a mechanical fix.
package scrub

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ehr/revcycle/internal/domain/catalog"
	"github.com/ehr/revcycle/internal/domain/claim"
	"github.com/ehr/revcycle/pkg/money"
)

// maxFixPasses bounds AutoFix. Every pass must apply a fix it has not
// applied before, so real claims converge in two or three passes.
const maxFixPasses = 10

// ModifierAdvisor is the part of the modifier advisor the engine needs.
type ModifierAdvisor interface {
	Suggest(c *claim.Claim, rs *catalog.RuleSet) []claim.ModifierSuggestion
}

// Engine is stateless. Results depend only on the claim, the rule set and
// the clock passed in.
type Engine struct {
	advisor ModifierAdvisor
}

func NewEngine(advisor ModifierAdvisor) *Engine {
	return &Engine{advisor: advisor}
}

// Scrub runs every check against c without modifying it.
func (e *Engine) Scrub(c *claim.Claim, rs *catalog.RuleSet, now time.Time) claim.ScrubResult {
	issues := e.run(c, rs, now)
	return classify(issues)
}

// PassedChecks lists the check codes that raised nothing for c.
func (e *Engine) PassedChecks(c *claim.Claim, rs *catalog.RuleSet, now time.Time) []string {
	fired := map[string]bool{}
	for _, iss := range e.run(c, rs, now) {
		fired[iss.Code] = true
	}
	out := make([]string, 0, len(checks))
	for _, ch := range checks {
		if !fired[ch.code] {
			out = append(out, ch.code)
		}
	}
	return out
}

// AutoFix applies fixable issues to c, re-scrubbing after each pass, until
// no new fix applies. A fix is never applied twice; an issue that comes back
// after its fix is reported as not fixable.
func (e *Engine) AutoFix(c *claim.Claim, rs *catalog.RuleSet, now time.Time) (claim.ScrubResult, []claim.Issue) {
	applied := []claim.Issue{}
	done := map[string]bool{}
	for pass := 0; pass < maxFixPasses; pass++ {
		progressed := false
		for _, iss := range e.run(c, rs, now) {
			if !iss.AutoFixable || done[key(iss)] {
				continue
			}
			if apply(c, rs, iss) {
				done[key(iss)] = true
				applied = append(applied, iss)
				progressed = true
			}
		}
		if !progressed {
			break
		}
	}

	issues := e.run(c, rs, now)
	for i := range issues {
		if done[key(issues[i])] {
			issues[i].AutoFixable = false
		}
	}
	return classify(issues), applied
}

func (e *Engine) run(c *claim.Claim, rs *catalog.RuleSet, now time.Time) []claim.Issue {
	if rs == nil {
		rs = catalog.NewRuleSet(nil, nil, nil, nil, nil)
	}
	in := &input{c: c, rs: rs, now: now.UTC()}
	if e.advisor != nil {
		in.suggestions = e.advisor.Suggest(c, rs)
	}
	var issues []claim.Issue
	for _, ch := range checks {
		issues = append(issues, ch.run(in)...)
	}
	return issues
}

// classify splits issues by severity and derives the status: errors when an
// error cannot be fixed automatically, warnings when anything of error or
// warning severity remains, otherwise clean.
func classify(issues []claim.Issue) claim.ScrubResult {
	r := claim.ScrubResult{Errors: []claim.Issue{}, Warnings: []claim.Issue{}, Info: []claim.Issue{}}
	blocking := false
	for _, iss := range issues {
		switch iss.Severity {
		case claim.SeverityError:
			r.Errors = append(r.Errors, iss)
			if !iss.AutoFixable {
				blocking = true
			}
		case claim.SeverityWarning:
			r.Warnings = append(r.Warnings, iss)
		default:
			r.Info = append(r.Info, iss)
		}
	}
	switch {
	case blocking:
		r.Status = claim.ScrubErrors
	case len(r.Errors)+len(r.Warnings) > 0:
		r.Status = claim.ScrubWarnings
	default:
		r.Status = claim.ScrubClean
	}
	return r
}

func key(iss claim.Issue) string {
	line := -1
	if iss.LineIndex != nil {
		line = *iss.LineIndex
	}
	return fmt.Sprintf("%s|%d|%s|%s", iss.Code, line, iss.Field, iss.Message)
}

// apply performs the fix for iss on c and reports whether anything changed.
func apply(c *claim.Claim, rs *catalog.RuleSet, iss claim.Issue) bool {
	li := -1
	if iss.LineIndex != nil {
		li = *iss.LineIndex
		if li < 0 || li >= len(c.LineItems) {
			return false
		}
	}

	switch iss.Code {
	case CodeMissingPayerID:
		id, _ := iss.Data["payerId"].(string)
		if id == "" {
			return false
		}
		c.PayerID = &id
		return true

	case CodeTotalMismatch:
		c.TotalCharges = money.Cents(c.ComputeTotal())
		return true

	case CodeLineMissingDiagnosis:
		if len(c.DiagnosisCodes) == 0 {
			return false
		}
		c.LineItems[li].Dx = []string{c.DiagnosisCodes[0]}
		return true

	case CodeDxPointerUnresolved:
		code, _ := iss.Data["code"].(string)
		if _, ok := rs.Diagnosis(code); !ok {
			return false
		}
		if dxIndex(c, code) < 0 {
			c.DiagnosisCodes = append(c.DiagnosisCodes, code)
		}
		return true

	case CodeDxPointerLimit:
		if len(c.LineItems[li].Dx) <= catalog.MaxDiagnosisPointers {
			return false
		}
		c.LineItems[li].Dx = append([]string(nil), c.LineItems[li].Dx[:catalog.MaxDiagnosisPointers]...)
		return true

	case CodeDxPointerOrder:
		dx := append([]string(nil), c.LineItems[li].Dx...)
		sort.SliceStable(dx, func(i, j int) bool {
			return order(c, dx[i]) < order(c, dx[j])
		})
		c.LineItems[li].Dx = dx
		return true

	case CodeExclusiveModifiers:
		keep, _ := iss.Data["keep"].(string)
		present, _ := iss.Data["modifiers"].([]string)
		if keep == "" || len(present) == 0 {
			return false
		}
		var (
			kept    []string
			removed bool
		)
		for _, m := range c.LineItems[li].Modifiers {
			if !strings.EqualFold(m, keep) && containsFold(present, m) {
				removed = true
				continue
			}
			kept = append(kept, m)
		}
		if !removed {
			return false
		}
		c.LineItems[li].Modifiers = kept
		return true

	case CodeRequiredModifierMissing:
		m, _ := iss.Data["modifier"].(string)
		if m == "" || c.LineItems[li].HasModifier(m) {
			return false
		}
		c.LineItems[li].Modifiers = append(c.LineItems[li].Modifiers, m)
		return true
	}
	return false
}

// order places unresolved pointers after every claim diagnosis.
func order(c *claim.Claim, code string) int {
	if i := dxIndex(c, code); i >= 0 {
		return i
	}
	return len(c.DiagnosisCodes)
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
