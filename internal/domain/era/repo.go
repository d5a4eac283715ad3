package era

import (
	"context"

	"github.com/google/uuid"
)

type BatchRepository interface {
	// Create stores b in processing state.
	Create(ctx context.Context, b *Batch) error
	// Complete writes the final counts and result and marks b completed.
	Complete(ctx context.Context, b *Batch) error
	Fail(ctx context.Context, id uuid.UUID, reason string) error
	GetByID(ctx context.Context, id uuid.UUID) (*Batch, error)
	List(ctx context.Context, limit, offset int) ([]*Batch, int, error)
}
