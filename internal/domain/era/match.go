package era

import (
	"sort"
	"strings"

	"github.com/ehr/revcycle/internal/domain/claim"
)

// PersonName is a remittance patient name split into parts. First may be
// empty when the payer sent a single token.
type PersonName struct {
	First string
	Last  string
}

// ParseName reads "Last, First" or "First Last". Middle names and initials
// after the first token of the given name are dropped.
func ParseName(s string) (PersonName, bool) {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return PersonName{}, false
	}
	if last, first, ok := strings.Cut(s, ","); ok {
		last = strings.TrimSpace(last)
		firstParts := strings.Fields(first)
		if last == "" {
			return PersonName{}, false
		}
		n := PersonName{Last: last}
		if len(firstParts) > 0 {
			n.First = firstParts[0]
		}
		return n, true
	}
	parts := strings.Fields(s)
	if len(parts) == 1 {
		return PersonName{Last: parts[0]}, true
	}
	return PersonName{First: parts[0], Last: parts[len(parts)-1]}, true
}

// Matches compares case-insensitively. Each part must be equal or one must
// be a prefix of the other; an empty first name matches any.
func (n PersonName) Matches(first, last string) bool {
	if !namePartMatches(n.Last, last) {
		return false
	}
	return n.First == "" || namePartMatches(n.First, first)
}

func namePartMatches(a, b string) bool {
	a, b = strings.ToLower(strings.TrimSpace(a)), strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return false
	}
	return strings.HasPrefix(a, b) || strings.HasPrefix(b, a)
}

// bestCandidate picks the newest claim whose patient matches name.
func bestCandidate(name PersonName, candidates []claim.PatientClaim) *claim.Claim {
	var hits []*claim.Claim
	for _, pc := range candidates {
		if pc.Claim != nil && pc.Claim.Status.OpenForPayment() && name.Matches(pc.FirstName, pc.LastName) {
			hits = append(hits, pc.Claim)
		}
	}
	if len(hits) == 0 {
		return nil
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].CreatedAt.After(hits[j].CreatedAt) })
	return hits[0]
}
