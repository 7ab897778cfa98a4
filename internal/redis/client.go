// Package redis provides a Redis-backed cache for tenant rule sets. The
// cache is an optimization only; every method degrades to a miss or a no-op
// on failure so a Redis outage never blocks ingestion.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"event-router/internal/common/errors"
	"event-router/internal/common/logging"
	"event-router/internal/storage"
)

// Config holds Redis connection configuration
type Config struct {
	Address  string
	Password string
	DB       int
}

// Client wraps a Redis connection for rule caching
type Client struct {
	rdb    *redis.Client
	logger logging.Logger
}

// NewClient creates a Redis client and verifies connectivity
func NewClient(config Config, logger logging.Logger) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     config.Address,
		Password: config.Password,
		DB:       config.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, errors.ConnectionError("failed to connect to Redis", err)
	}

	return &Client{rdb: rdb, logger: logger}, nil
}

// Close closes the underlying connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func rulesKey(tenantID string) string {
	return fmt.Sprintf("rules:%s", tenantID)
}

// GetRules returns the cached rule set for a tenant. The second return value
// is false on a miss or any Redis error.
func (c *Client) GetRules(ctx context.Context, tenantID string) ([]*storage.RoutingRule, bool) {
	data, err := c.rdb.Get(ctx, rulesKey(tenantID)).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		c.logger.Warn("rule cache read failed",
			logging.String("tenant_id", tenantID),
			logging.NamedError("error", err))
		return nil, false
	}

	var rules []*storage.RoutingRule
	if err := json.Unmarshal(data, &rules); err != nil {
		c.logger.Warn("rule cache entry is corrupt, dropping it",
			logging.String("tenant_id", tenantID),
			logging.NamedError("error", err))
		c.rdb.Del(ctx, rulesKey(tenantID))
		return nil, false
	}

	return rules, true
}

// SetRules stores a tenant's rule set with the given TTL
func (c *Client) SetRules(ctx context.Context, tenantID string, rules []*storage.RoutingRule, ttl time.Duration) {
	data, err := json.Marshal(rules)
	if err != nil {
		c.logger.Warn("failed to encode rules for cache",
			logging.String("tenant_id", tenantID),
			logging.NamedError("error", err))
		return
	}

	if err := c.rdb.Set(ctx, rulesKey(tenantID), data, ttl).Err(); err != nil {
		c.logger.Warn("rule cache write failed",
			logging.String("tenant_id", tenantID),
			logging.NamedError("error", err))
	}
}

// Invalidate removes a tenant's cached rule set
func (c *Client) Invalidate(ctx context.Context, tenantID string) error {
	if err := c.rdb.Del(ctx, rulesKey(tenantID)).Err(); err != nil {
		return errors.ConnectionError("failed to invalidate rule cache", err)
	}
	return nil
}

// Health checks Redis connectivity
func (c *Client) Health(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
