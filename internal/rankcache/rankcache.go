// Package rankcache keeps a Redis copy of ranking snapshots for the query path.
package rankcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nitesh/bizrank/pkg/models"
)

type Cache struct {
	rdb *redis.Client
	now func() time.Time
}

func New(rdb *redis.Client) *Cache {
	return &Cache{rdb: rdb, now: time.Now}
}

// Key is the Redis key of a (city, category, type) snapshot.
func Key(city, category string, t models.RankingType) string {
	return fmt.Sprintf("ranking:%s:%s:%s", city, category, t)
}

// Get returns the cached snapshot, or nil on a miss.
func (c *Cache) Get(ctx context.Context, city, category string, t models.RankingType) (*models.RankingCache, error) {
	b, err := c.rdb.Get(ctx, Key(city, category, t)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rc := &models.RankingCache{}
	if err := json.Unmarshal(b, rc); err != nil {
		return nil, fmt.Errorf("decode cached ranking: %w", err)
	}
	return rc, nil
}

// Set stores rc until its ExpiresAt. Already expired snapshots are not stored.
func (c *Cache) Set(ctx context.Context, rc *models.RankingCache) error {
	ttl := rc.ExpiresAt.Sub(c.now())
	if ttl <= 0 {
		return nil
	}
	b, err := json.Marshal(rc)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, Key(rc.City, rc.Category, rc.RankingType), b, ttl).Err()
}

func (c *Cache) Invalidate(ctx context.Context, city, category string, t models.RankingType) error {
	return c.rdb.Del(ctx, Key(city, category, t)).Err()
}
