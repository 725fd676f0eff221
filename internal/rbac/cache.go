package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "permissions:"

// Cache stores resolved permission sets in Redis with a TTL measured from
// write time. It is a best-effort accelerator: every method reports backend
// failures as ErrCacheUnavailable and the caller decides whether to degrade.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the permission cache. A zero ttl falls back to one hour.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cache{client: client, ttl: ttl}
}

// TTL exposes the configured entry lifetime.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Key builds the cache key for a user and scope. The unscoped and scoped
// forms are distinct keys, so a lookup for one scope can never observe
// another scope's entry.
func (c *Cache) Key(userID uuid.UUID, scope string) string {
	if scope == "" {
		return cacheKeyPrefix + userID.String()
	}
	return cacheKeyPrefix + userID.String() + ":" + scope
}

// Get loads a cached permission set. A missing or expired entry returns
// (nil, nil); backend failures wrap ErrCacheUnavailable.
func (c *Cache) Get(ctx context.Context, userID uuid.UUID, scope string) (*PermissionSet, error) {
	if c == nil || c.client == nil {
		return nil, nil
	}
	payload, err := c.client.Get(ctx, c.Key(userID, scope)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get: %v", ErrCacheUnavailable, err)
	}
	var set PermissionSet
	if err := json.Unmarshal(payload, &set); err != nil {
		// A corrupt entry is treated as a miss; the resolver will overwrite it.
		return nil, nil
	}
	return &set, nil
}

// Put stores a resolved permission set under the configured TTL.
func (c *Cache) Put(ctx context.Context, userID uuid.UUID, scope string, set *PermissionSet) error {
	if c == nil || c.client == nil || set == nil {
		return nil
	}
	payload, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("rbac: marshal permission set: %w", err)
	}
	if err := c.client.Set(ctx, c.Key(userID, scope), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("%w: set: %v", ErrCacheUnavailable, err)
	}
	return nil
}

// Invalidate removes cached entries for a user. An empty scope clears every
// entry for that user across all scopes; a concrete scope clears only that
// scope's entry. User IDs are fixed-width UUIDs, so the prefix scan cannot
// match another user's keys.
func (c *Cache) Invalidate(ctx context.Context, userID uuid.UUID, scope string) error {
	if c == nil || c.client == nil {
		return nil
	}
	if scope != "" {
		if err := c.client.Del(ctx, c.Key(userID, scope)).Err(); err != nil {
			return fmt.Errorf("%w: del: %v", ErrCacheUnavailable, err)
		}
		return nil
	}

	pattern := cacheKeyPrefix + userID.String() + "*"
	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("%w: scan: %v", ErrCacheUnavailable, err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: del: %v", ErrCacheUnavailable, err)
	}
	return nil
}
