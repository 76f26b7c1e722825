package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/user/autolist-service/internal/entity"
)

// RunRepository defines the interface for recording collection runs.
type RunRepository interface {
	// Create stores a new run in its initial state.
	Create(ctx context.Context, run *entity.CollectionRun) error
	// Finalize writes the terminal status and counts. A run can be finalized only once.
	Finalize(ctx context.Context, run *entity.CollectionRun) error
	// FindByID retrieves a run, or ErrNotFound.
	FindByID(ctx context.Context, id uuid.UUID) (*entity.CollectionRun, error)
	// ListRecent returns the most recent runs, optionally filtered by keyword.
	ListRecent(ctx context.Context, keyword string, limit int) ([]*entity.CollectionRun, error)
}
