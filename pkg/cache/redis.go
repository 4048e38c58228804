package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"commetrics-server/pkg/metrics"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Config holds the connection and expiry settings for the report cache
type Config struct {
	Address   string
	Password  string
	Database  int
	TTL       time.Duration
	KeyPrefix string
}

// RedisReportCache stores generated reports as JSON with a fixed TTL
type RedisReportCache struct {
	client    *redis.Client
	logger    *logrus.Logger
	ttl       time.Duration
	keyPrefix string
}

// NewRedisReportCache connects to Redis and verifies the connection
func NewRedisReportCache(ctx context.Context, config Config, logger *logrus.Logger) (*RedisReportCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         config.Address,
		Password:     config.Password,
		DB:           config.Database,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	cache := NewWithClient(client, config, logger)
	if err := cache.Ping(ctx); err != nil {
		client.Close()
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"address": config.Address,
		"db":      config.Database,
		"ttl":     config.TTL,
	}).Info("Connected to Redis report cache")

	return cache, nil
}

// NewWithClient wraps an existing client
func NewWithClient(client *redis.Client, config Config, logger *logrus.Logger) *RedisReportCache {
	ttl := config.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisReportCache{
		client:    client,
		logger:    logger,
		ttl:       ttl,
		keyPrefix: config.KeyPrefix,
	}
}

// Get loads the value stored under key into dest. A miss returns false with a
// nil error.
func (c *RedisReportCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.client.Get(ctx, c.keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.RecordCacheRequest("miss")
		return false, nil
	}
	if err != nil {
		metrics.RecordCacheRequest("error")
		return false, fmt.Errorf("failed to read cached report: %w", err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		metrics.RecordCacheRequest("error")
		// drop the entry so the next request regenerates it
		c.client.Del(ctx, c.keyPrefix+key)
		return false, fmt.Errorf("failed to decode cached report: %w", err)
	}

	metrics.RecordCacheRequest("hit")
	return true, nil
}

// Set stores value under key for the configured TTL
func (c *RedisReportCache) Set(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	if err := c.client.Set(ctx, c.keyPrefix+key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store report: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"key": key,
		"ttl": c.ttl,
	}).Debug("Cached report")
	return nil
}

// Ping checks the Redis connection
func (c *RedisReportCache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (c *RedisReportCache) Close() error {
	return c.client.Close()
}

// Key derives a stable cache key from the request parts
func Key(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:])
}
