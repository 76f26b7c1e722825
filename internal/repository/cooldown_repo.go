package repository

import (
	"context"
	"time"
)

// CooldownRepository remembers keywords that were collected recently.
type CooldownRepository interface {
	// MarkCollected marks a keyword as collected for the given period.
	MarkCollected(ctx context.Context, keyword string, expiry time.Duration) error
	// IsRecentlyCollected checks whether the keyword is still cooling down.
	IsRecentlyCollected(ctx context.Context, keyword string) (bool, error)
	// Clear removes the mark, used for forced collections.
	Clear(ctx context.Context, keyword string) error
}
