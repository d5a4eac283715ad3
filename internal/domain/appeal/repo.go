package appeal

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, a *Appeal) error
	// RecordOutcome writes the decision fields of a.
	RecordOutcome(ctx context.Context, a *Appeal) error
	// CloseOpen moves a claim's submitted appeals to status, decided on
	// decided.
	CloseOpen(ctx context.Context, claimID uuid.UUID, status Status, decided time.Time) error
	// ListByClaim returns a claim's appeals, newest first.
	ListByClaim(ctx context.Context, claimID uuid.UUID) ([]*Appeal, error)
	// ListOpenDeadlines returns submitted appeals due in [from, to], soonest
	// first.
	ListOpenDeadlines(ctx context.Context, from, to time.Time) ([]UpcomingDeadline, error)
}

// Closer lets the claim service close the open round when a remittance
// denies or pays off an appealed claim.
type Closer struct {
	Appeals Repository
}

func (c Closer) CloseOpenAppeal(ctx context.Context, claimID uuid.UUID, outcome string, decided time.Time) error {
	return c.Appeals.CloseOpen(ctx, claimID, Status(outcome), decided)
}
