package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/temcen/pirex-admin/pkg/models"
)

const attributionKeyPrefix = "attribution:"

// AttributionCache is a shared cache of derived attributions keyed by
// attribution.Key.
type AttributionCache interface {
	Get(ctx context.Context, key string) (models.ItemAttribution, bool, error)
	Set(ctx context.Context, key string, attr models.ItemAttribution) error
}

type RedisAttributionCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *logrus.Logger
}

func NewRedisAttributionCache(client *redis.Client, ttl time.Duration, logger *logrus.Logger) *RedisAttributionCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisAttributionCache{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

func (c *RedisAttributionCache) Get(ctx context.Context, key string) (models.ItemAttribution, bool, error) {
	var attr models.ItemAttribution

	data, err := c.client.Get(ctx, attributionKeyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return attr, false, nil
		}
		return attr, false, fmt.Errorf("failed to read cached attribution: %w", err)
	}

	if err := json.Unmarshal(data, &attr); err != nil {
		// A stale or corrupt entry is a miss; it will be overwritten.
		c.logger.WithError(err).WithField("key", key).Warn("Discarding undecodable cached attribution")
		return attr, false, nil
	}
	return attr, true, nil
}

func (c *RedisAttributionCache) Set(ctx context.Context, key string, attr models.ItemAttribution) error {
	data, err := json.Marshal(attr)
	if err != nil {
		return fmt.Errorf("failed to marshal attribution: %w", err)
	}
	if err := c.client.Set(ctx, attributionKeyPrefix+key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache attribution: %w", err)
	}
	return nil
}
