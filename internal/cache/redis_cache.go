package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"outletpos/backend/internal/closing"
)

const keyPrefix = "closing-report:"

type RedisReportCache struct {
	client *redis.Client
}

func NewRedisReportCache(addr string, password string, db int) *RedisReportCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisReportCache{client: client}
}

func (c *RedisReportCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisReportCache) Close() error {
	return c.client.Close()
}

func (c *RedisReportCache) Get(ctx context.Context, closingID string) (*closing.Report, bool, error) {
	val, err := c.client.Get(ctx, keyPrefix+closingID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var report closing.Report
	if err := json.Unmarshal(val, &report); err != nil {
		return nil, false, err
	}
	return &report, true, nil
}

func (c *RedisReportCache) Set(ctx context.Context, closingID string, report *closing.Report, ttl time.Duration) error {
	if report == nil {
		return nil
	}
	payload, err := json.Marshal(report)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, keyPrefix+closingID, payload, ttl).Err()
}
