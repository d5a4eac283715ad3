package underpayment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/revcycle/internal/domain/claim"
)

// ClaimSource lists the claims the report scans.
type ClaimSource interface {
	ListForUnderpayment(ctx context.Context) ([]*claim.Claim, error)
}

type FlagRepository interface {
	Create(ctx context.Context, f *Flag) error
	GetByID(ctx context.Context, id uuid.UUID) (*Flag, error)
	// List filters by status when status is non-empty.
	List(ctx context.Context, status FlagStatus, limit, offset int) ([]*Flag, int, error)
	// PendingForClaim returns the open flag for a claim, or nil.
	PendingForClaim(ctx context.Context, claimID uuid.UUID) (*Flag, error)
	Resolve(ctx context.Context, id uuid.UUID, status FlagStatus, notes *string, at time.Time) (*Flag, error)
}
