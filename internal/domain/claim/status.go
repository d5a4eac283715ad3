package claim

import (
	"github.com/ehr/revcycle/internal/platform/apperr"
)

// manualTransitions lists the targets a caller may request directly.
// paid is reached only by payment posting and appealed only through the
// appeal tracker.
var manualTransitions = map[Status][]Status{
	StatusDraft:     {StatusScrubbed},
	StatusScrubbed:  {StatusReady, StatusDraft, StatusScrubbed},
	StatusReady:     {StatusSubmitted, StatusDraft},
	StatusSubmitted: {StatusAccepted, StatusDenied},
	StatusAccepted:  {StatusDenied},
	StatusDenied:    {},
	StatusAppealed:  {StatusAccepted, StatusDenied},
	StatusPaid:      {},
}

var validStatuses = map[Status]bool{
	StatusDraft: true, StatusScrubbed: true, StatusReady: true, StatusSubmitted: true,
	StatusAccepted: true, StatusDenied: true, StatusAppealed: true, StatusPaid: true,
}

func (s Status) Valid() bool { return validStatuses[s] }

// Editable reports whether header fields and line items may change.
func (s Status) Editable() bool {
	return s == StatusDraft || s == StatusScrubbed || s == StatusReady
}

// OpenForPayment is the set of statuses the ERA fuzzy matcher considers.
func (s Status) OpenForPayment() bool {
	return s == StatusSubmitted || s == StatusAccepted || s == StatusAppealed
}

// CanTransition validates a manual transition. Guards that need the claim
// (scrub status) are checked by checkGuards.
func CanTransition(from, to Status) error {
	if !to.Valid() {
		return apperr.Invalid("status", "unknown status "+string(to))
	}
	switch to {
	case StatusPaid:
		return apperr.Conflict("paid is set automatically when payments cover total charges")
	case StatusAppealed:
		return apperr.Conflict("claims enter appealed only by submitting an appeal")
	}
	for _, allowed := range manualTransitions[from] {
		if allowed == to {
			return nil
		}
	}
	return apperr.Conflict("cannot move claim from %s to %s", from, to)
}

func checkGuards(c *Claim, to Status) error {
	if to == StatusSubmitted && c.ScrubStatus != nil && *c.ScrubStatus == ScrubErrors {
		return apperr.Conflict("claim %s has blocking scrub errors", c.ClaimNumber)
	}
	if to == StatusSubmitted && c.ScrubStatus == nil {
		return apperr.Conflict("claim %s has not been scrubbed", c.ClaimNumber)
	}
	return nil
}
