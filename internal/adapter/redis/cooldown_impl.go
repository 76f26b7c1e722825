package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/user/autolist-service/pkg/utils"
)

const cooldownKeyPrefix = "autolist:cooldown:"

// CooldownRepoImpl provides a concrete implementation for the CooldownRepository interface using Redis.
type CooldownRepoImpl struct {
	client *redis.Client
}

// NewCooldownRepo creates a new instance of CooldownRepoImpl.
func NewCooldownRepo(client *redis.Client) *CooldownRepoImpl {
	return &CooldownRepoImpl{client: client}
}

// generateKey hashes the keyword so arbitrary user input is a safe key.
func (r *CooldownRepoImpl) generateKey(keyword string) string {
	return fmt.Sprintf("%s%s", cooldownKeyPrefix, utils.HashKey(keyword))
}

// MarkCollected sets a key that expires after the cooldown.
func (r *CooldownRepoImpl) MarkCollected(ctx context.Context, keyword string, expiry time.Duration) error {
	return r.client.Set(ctx, r.generateKey(keyword), time.Now().UTC().Format(time.RFC3339), expiry).Err()
}

// IsRecentlyCollected checks whether the cooldown key still exists.
func (r *CooldownRepoImpl) IsRecentlyCollected(ctx context.Context, keyword string) (bool, error) {
	val, err := r.client.Exists(ctx, r.generateKey(keyword)).Result()
	if err != nil {
		return false, err
	}
	return val == 1, nil
}

// Clear removes the cooldown key, used for forced collections.
func (r *CooldownRepoImpl) Clear(ctx context.Context, keyword string) error {
	return r.client.Del(ctx, r.generateKey(keyword)).Err()
}
