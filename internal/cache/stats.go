package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/unclebandit/mailer-backend/internal/model"
)

// StatsCache holds the per-owner listing aggregates for a bounded time.
type StatsCache interface {
	Get(ctx context.Context, ownerID int) (*model.MailingStats, bool, error)
	Set(ctx context.Context, ownerID int, stats *model.MailingStats) error
	Invalidate(ctx context.Context, ownerID int) error
}

type RedisStatsCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStatsCache(client *redis.Client, ttl time.Duration) *RedisStatsCache {
	return &RedisStatsCache{client: client, ttl: ttl}
}

func statsKey(ownerID int) string {
	return fmt.Sprintf("mailing_stats:%d", ownerID)
}

func (c *RedisStatsCache) Get(ctx context.Context, ownerID int) (*model.MailingStats, bool, error) {
	data, err := c.client.Get(ctx, statsKey(ownerID)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var s model.MailingStats
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, false, err
	}
	return &s, true, nil
}

func (c *RedisStatsCache) Set(ctx context.Context, ownerID int, stats *model.MailingStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, statsKey(ownerID), data, c.ttl).Err()
}

func (c *RedisStatsCache) Invalidate(ctx context.Context, ownerID int) error {
	return c.client.Del(ctx, statsKey(ownerID)).Err()
}

var _ StatsCache = (*RedisStatsCache)(nil)
