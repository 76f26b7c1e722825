package repository

import (
	"context"

	"github.com/user/autolist-service/internal/entity"
)

// ListingSource defines the contract for an external, paginated product listing source.
type ListingSource interface {
	// Name identifies the source; it is recorded on every raw listing.
	Name() string
	// FetchPage retrieves one page (1-based) of results for a keyword.
	// Errors should be classified with the sentinels in errors.go.
	FetchPage(ctx context.Context, keyword string, page int) (*entity.ListingPage, error)
}
