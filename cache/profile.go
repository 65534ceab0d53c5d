// Package cache keeps author display fields in Redis so message broadcasts do
// not hit the user store for every chat line.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"doc-collab/backend/database"
	"doc-collab/backend/models"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// Stats counts cache outcomes.
type Stats struct {
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
	Errors uint64 `json:"errors"`
}

// ProfileCache is a cache-aside database.UserLookup backed by Redis.
// Redis failures fall through to the wrapped lookup.
type ProfileCache struct {
	client  *redis.Client
	next    database.UserLookup
	prefix  string
	ttl     time.Duration
	sfGroup singleflight.Group

	hits   atomic.Uint64
	misses atomic.Uint64
	errors atomic.Uint64
}

// NewProfileCache wraps next with a Redis cache using keys "<prefix><userID>".
func NewProfileCache(client *redis.Client, next database.UserLookup, prefix string, ttl time.Duration) *ProfileCache {
	return &ProfileCache{client: client, next: next, prefix: prefix, ttl: ttl}
}

// GetUserByID returns the cached user or loads it from the wrapped lookup.
func (c *ProfileCache) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	key := c.prefix + id

	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var user models.User
		if jsonErr := json.Unmarshal(data, &user); jsonErr == nil {
			c.hits.Add(1)
			return &user, nil
		}
		c.errors.Add(1)
	case errors.Is(err, redis.Nil):
		c.misses.Add(1)
	default:
		c.errors.Add(1)
		log.Printf("[cache] Get %s failed: %v", key, err)
	}

	val, err, _ := c.sfGroup.Do(id, func() (any, error) {
		return c.next.GetUserByID(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	user, ok := val.(*models.User)
	if !ok || user == nil {
		return nil, database.ErrUserNotFound
	}

	if err := c.set(ctx, key, user); err != nil {
		c.errors.Add(1)
		log.Printf("[cache] Set %s failed: %v", key, err)
	}
	return user, nil
}

// Invalidate drops the cached profile of a user.
func (c *ProfileCache) Invalidate(ctx context.Context, id string) error {
	if err := c.client.Del(ctx, c.prefix+id).Err(); err != nil {
		return fmt.Errorf("cache delete error: %w", err)
	}
	return nil
}

// GetStats returns a snapshot of the counters.
func (c *ProfileCache) GetStats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load(), Errors: c.errors.Load()}
}

// Ping checks if the Redis connection is healthy.
func (c *ProfileCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *ProfileCache) set(ctx context.Context, key string, user *models.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}
