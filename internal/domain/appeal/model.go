package appeal

import (
	"time"

	"github.com/google/uuid"

	"github.com/ehr/revcycle/internal/domain/claim"
)

type Level string

const (
	LevelFirst    Level = "first"
	LevelSecond   Level = "second"
	LevelExternal Level = "external"
)

func (l Level) Valid() bool {
	return l == LevelFirst || l == LevelSecond || l == LevelExternal
}

// levelFor picks the level for the next round given how many appeals the
// claim already has.
func levelFor(prior int) Level {
	switch prior {
	case 0:
		return LevelFirst
	case 1:
		return LevelSecond
	default:
		return LevelExternal
	}
}

type Status string

const (
	StatusSubmitted Status = "submitted"
	StatusApproved  Status = "approved"
	StatusDenied    Status = "denied"
	StatusPartial   Status = "partial"
)

// DefaultDeadlineDays is the appeal window after the denial date.
const DefaultDeadlineDays = 60

type Appeal struct {
	ID                  uuid.UUID  `json:"id"`
	ClaimID             uuid.UUID  `json:"claimId"`
	Level               Level      `json:"appealLevel"`
	Status              Status     `json:"appealStatus"`
	TemplateUsed        *string    `json:"templateUsed,omitempty"`
	Letter              *string    `json:"letter,omitempty"`
	Deadline            time.Time  `json:"appealDeadline"`
	Notes               *string    `json:"notes,omitempty"`
	Outcome             *string    `json:"outcome,omitempty"`
	ApprovedAmountCents *int64     `json:"approvedAmountCents,omitempty"`
	DecisionDate        *time.Time `json:"decisionDate,omitempty"`
	SubmittedBy         string     `json:"submittedBy"`
	CreatedAt           time.Time  `json:"createdAt"`
}

type SubmitRequest struct {
	AppealLevel    *Level      `json:"appealLevel"`
	TemplateUsed   *string     `json:"templateUsed"`
	AppealDeadline *claim.Date `json:"appealDeadline"`
	Notes          *string     `json:"notes"`
}

type OutcomeRequest struct {
	Outcome             string      `json:"outcome"`
	ApprovedAmountCents *int64      `json:"approvedAmountCents"`
	DecisionDate        *claim.Date `json:"decisionDate"`
	Notes               *string     `json:"notes"`
}

type SubmitResult struct {
	Claim  *claim.Claim `json:"claim"`
	Appeal *Appeal      `json:"appeal"`
}

type OutcomeResult struct {
	Claim   *claim.Claim   `json:"claim"`
	Appeal  *Appeal        `json:"appeal"`
	Payment *claim.Payment `json:"payment,omitempty"`
}

// UpcomingDeadline is an open appeal joined with its claim number.
type UpcomingDeadline struct {
	AppealID      uuid.UUID `json:"appealId"`
	ClaimID       uuid.UUID `json:"claimId"`
	ClaimNumber   string    `json:"claimNumber"`
	Level         Level     `json:"appealLevel"`
	Deadline      time.Time `json:"appealDeadline"`
	DaysRemaining int       `json:"daysRemaining"`
}
