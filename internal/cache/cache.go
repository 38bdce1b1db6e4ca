// Package cache keeps checklist records in Redis. Records never change after creation, so entries
// are only written and expired, never invalidated.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"compliancekit/internal/domain"
)

const keyChecklist = "checklist:"

// ChecklistCache caches checklist records by id.
type ChecklistCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewChecklistCache returns a cache writing entries with the given ttl.
func NewChecklistCache(rdb *redis.Client, ttl time.Duration) *ChecklistCache {
	return &ChecklistCache{rdb: rdb, ttl: ttl}
}

// Connect parses a redis:// URL and verifies the server answers.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// GetChecklist returns the cached record or nil on a miss.
func (c *ChecklistCache) GetChecklist(ctx context.Context, id string) (*domain.ChecklistRecord, error) {
	b, err := c.rdb.Get(ctx, keyChecklist+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec domain.ChecklistRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// SetChecklist stores rec.
func (c *ChecklistCache) SetChecklist(ctx context.Context, rec domain.ChecklistRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, keyChecklist+rec.ID, b, c.ttl).Err()
}

func (c *ChecklistCache) Close() error {
	return c.rdb.Close()
}
