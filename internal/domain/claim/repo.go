package claim

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, c *Claim) error
	GetByID(ctx context.Context, id uuid.UUID) (*Claim, error)
	GetByNumber(ctx context.Context, number string) (*Claim, error)
	// Update writes c when c.VersionID matches the stored row and bumps the
	// version. A stale version returns a state conflict.
	Update(ctx context.Context, c *Claim) error
	List(ctx context.Context, f Filter, limit, offset int) ([]*Claim, int, error)
	// ListOpenByServiceDate returns submitted, accepted and appealed claims
	// for the day with their patient's name, newest first.
	ListOpenByServiceDate(ctx context.Context, serviceDate time.Time) ([]PatientClaim, error)
	// ListForUnderpayment returns paid or accepted claims with charges and
	// postings.
	ListForUnderpayment(ctx context.Context) ([]*Claim, error)
}

// LedgerRepository holds the append-only money rows.
type LedgerRepository interface {
	AddPayment(ctx context.Context, p *Payment) error
	ListPayments(ctx context.Context, claimID uuid.UUID) ([]*Payment, error)
	SumPayments(ctx context.Context, claimID uuid.UUID) (int64, error)
	AddAdjustment(ctx context.Context, a *Adjustment) error
	ListAdjustments(ctx context.Context, claimID uuid.UUID) ([]*Adjustment, error)
}

type HistoryRepository interface {
	Append(ctx context.Context, h *StatusHistoryEntry) error
	List(ctx context.Context, claimID uuid.UUID) ([]*StatusHistoryEntry, error)
}

// PatientClaim is a claim joined with its patient's name for ERA matching.
type PatientClaim struct {
	Claim     *Claim
	FirstName string
	LastName  string
}
