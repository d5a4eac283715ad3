// Package modifier suggests CPT modifiers from the tenant's modifier rule
// table.
package modifier

import (
	"fmt"
	"sort"

	"github.com/ehr/revcycle/internal/domain/catalog"
	"github.com/ehr/revcycle/internal/domain/claim"
)

// Advisor is stateless; every call takes the rule set it evaluates.
type Advisor struct{}

func NewAdvisor() *Advisor { return &Advisor{} }

// Suggest returns modifier suggestions ranked by confidence, then line
// index. Modifiers already on a line are never suggested.
func (a *Advisor) Suggest(c *claim.Claim, rs *catalog.RuleSet) []claim.ModifierSuggestion {
	if c == nil || rs == nil || len(c.LineItems) == 0 {
		return []claim.ModifierSuggestion{}
	}
	payerID, _ := c.PayerKey()

	best := map[string]claim.ModifierSuggestion{}
	add := func(line int, r catalog.ModifierRule, modifier, rationale string) {
		li := c.LineItems[line]
		if modifier == "" || li.HasModifier(modifier) {
			return
		}
		if rationale == "" {
			rationale = r.Rationale
		}
		s := claim.ModifierSuggestion{
			LineIndex:  line,
			CPT:        li.CPT,
			Modifier:   modifier,
			Rationale:  rationale,
			Confidence: r.Confidence,
			RuleID:     r.ID,
			Required:   r.Required,
		}
		key := fmt.Sprintf("%d|%s", line, modifier)
		if prev, ok := best[key]; !ok || s.Confidence > prev.Confidence || (s.Confidence == prev.Confidence && s.Required && !prev.Required) {
			best[key] = s
		}
	}

	for _, r := range rs.RulesFor(payerID) {
		switch r.Kind {
		case catalog.KindPair:
			for _, b := range linesMatching(c, r.SecondaryCPT) {
				if hasOtherMatch(c, r.CPT, b) {
					add(b, r, r.Modifier, "")
				}
			}
		case catalog.KindBilateral:
			for i, li := range c.LineItems {
				if !r.Applies(li.CPT) {
					continue
				}
				if li.Units == 2 {
					add(i, r, r.Modifier, fmt.Sprintf("%s billed with 2 units; report once with modifier %s", li.CPT, r.Modifier))
				} else if first := firstLine(c, li.CPT); first == i && countLines(c, li.CPT) > 1 {
					add(i, r, r.Modifier, fmt.Sprintf("%s appears on more than one line; consolidate and report with modifier %s", li.CPT, r.Modifier))
				}
			}
		case catalog.KindDistinct:
			for _, b := range linesMatching(c, r.SecondaryCPT) {
				for _, p := range linesMatching(c, r.CPT) {
					if p != b && !sharesDx(c.LineItems[p], c.LineItems[b]) {
						add(b, r, r.Modifier, "")
						break
					}
				}
			}
		case catalog.KindMultipleProcedure:
			lines := make([]int, 0)
			for i, li := range c.LineItems {
				if r.Applies(li.CPT) {
					lines = append(lines, i)
				}
			}
			if len(lines) < 2 {
				continue
			}
			sort.SliceStable(lines, func(x, y int) bool {
				return c.LineItems[lines[x]].Total() > c.LineItems[lines[y]].Total()
			})
			for _, i := range lines[1:] {
				add(i, r, r.Modifier, fmt.Sprintf("secondary procedure %s is reduced under multiple procedure rules", c.LineItems[i].CPT))
			}
		case catalog.KindEMWithProcedure:
			for _, em := range linesMatching(c, r.CPT) {
				if hasOtherMatch(c, r.SecondaryCPT, em) {
					add(em, r, r.Modifier, "")
				}
			}
		}
	}

	out := make([]claim.ModifierSuggestion, 0, len(best))
	for _, s := range best {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		if out[i].LineIndex != out[j].LineIndex {
			return out[i].LineIndex < out[j].LineIndex
		}
		return out[i].Modifier < out[j].Modifier
	})
	return out
}

// CPTInfo is what the rule table says about one code.
type CPTInfo struct {
	CPT       string                 `json:"cpt"`
	Rules     []catalog.ModifierRule `json:"rules"`
	Modifiers []catalog.ModifierInfo `json:"modifiers"`
}

// Info lists the rules touching cpt, either as primary or secondary code,
// and the modifiers they can add.
func (a *Advisor) Info(cpt string, rs *catalog.RuleSet) CPTInfo {
	info := CPTInfo{CPT: cpt, Rules: []catalog.ModifierRule{}, Modifiers: []catalog.ModifierInfo{}}
	seen := map[string]bool{}
	for _, r := range rs.ModifierRules {
		if !r.Applies(cpt) && !catalog.MatchCPT(r.SecondaryCPT, cpt) {
			continue
		}
		info.Rules = append(info.Rules, r)
		for _, m := range append([]string{r.Modifier}, r.Modifiers...) {
			if m == "" || seen[m] {
				continue
			}
			seen[m] = true
			info.Modifiers = append(info.Modifiers, catalog.ModifierInfo{Code: m, Description: rs.ModifierDescription(m)})
		}
	}
	sort.Slice(info.Modifiers, func(i, j int) bool { return info.Modifiers[i].Code < info.Modifiers[j].Code })
	return info
}

func linesMatching(c *claim.Claim, pattern string) []int {
	var out []int
	for i, li := range c.LineItems {
		if catalog.MatchCPT(pattern, li.CPT) {
			out = append(out, i)
		}
	}
	return out
}

func hasOtherMatch(c *claim.Claim, pattern string, except int) bool {
	for _, i := range linesMatching(c, pattern) {
		if i != except && c.LineItems[i].CPT != c.LineItems[except].CPT {
			return true
		}
	}
	return false
}

func firstLine(c *claim.Claim, cpt string) int {
	for i, li := range c.LineItems {
		if li.CPT == cpt {
			return i
		}
	}
	return -1
}

func countLines(c *claim.Claim, cpt string) int {
	n := 0
	for _, li := range c.LineItems {
		if li.CPT == cpt {
			n++
		}
	}
	return n
}

func sharesDx(a, b claim.LineItem) bool {
	for _, x := range a.Dx {
		for _, y := range b.Dx {
			if x == y {
				return true
			}
		}
	}
	return false
}
