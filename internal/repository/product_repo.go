package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/user/autolist-service/internal/entity"
)

// ProductRepository defines the interface for persisting canonical products.
// It is the only writer of product state.
type ProductRepository interface {
	// Upsert inserts the product when its external ID is absent and refreshes the
	// mutable fields otherwise. FirstSeenAt is set once and never overwritten.
	// The operation is atomic per external ID.
	Upsert(ctx context.Context, product *entity.CanonicalProduct, runID uuid.UUID) (*entity.UpsertResult, error)
	// FindByExternalID retrieves a single product, or ErrNotFound.
	FindByExternalID(ctx context.Context, externalID string) (*entity.CanonicalProduct, error)
	// List returns products newest first, optionally filtered by keyword.
	List(ctx context.Context, keyword string, limit int) ([]*entity.CanonicalProduct, error)
}
