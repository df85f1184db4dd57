// Package menucache keeps rendered menu trees in Redis.
//
// Entries are keyed by the menu tree version, which every menu mutation
// bumps inside its transaction. A new version means new keys, so entries
// are never invalidated in place; old ones simply expire.
package menucache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dalemusser/stratawiki/internal/domain/menutree"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const (
	defaultTimeout = 5 * time.Second
	// DefaultTTL bounds how long a stale version's entries linger.
	DefaultTTL = 10 * time.Minute
	keyPrefix  = "stratawiki:menu:tree"
)

// Config captures the settings for establishing a Redis connection.
type Config struct {
	Addr    string
	DB      int
	Timeout time.Duration
}

// Connect initialises a Redis client and validates connectivity with a ping.
// A default timeout is applied when none is provided.
func Connect(ctx context.Context, cfg Config) (*redis.Client, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	client := redis.NewClient(&redis.Options{
		Addr: cfg.Addr,
		DB:   cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return client, nil
}

// Cache stores menu trees by key. Failures are logged and reported as
// misses; the cache never fails a request.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// New wraps client. A non-positive ttl selects DefaultTTL.
func New(client *redis.Client, ttl time.Duration, logger *zap.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{client: client, ttl: ttl, logger: logger}
}

// Key builds the cache key for a tree listing.
// Key format: stratawiki:menu:tree:v<version>:<root|all>:<active|all>
func Key(version int64, root *primitive.ObjectID, includeInactive bool) string {
	scope := "all"
	if root != nil {
		scope = root.Hex()
	}
	filter := "active"
	if includeInactive {
		filter = "all"
	}
	return fmt.Sprintf("%s:v%d:%s:%s", keyPrefix, version, scope, filter)
}

// Get returns the cached trees for key.
func (c *Cache) Get(ctx context.Context, key string) ([]menutree.Tree, bool) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("menu cache read failed", zap.Error(err), zap.String("key", key))
		}
		return nil, false
	}
	var trees []menutree.Tree
	if err := json.Unmarshal(raw, &trees); err != nil {
		c.logger.Warn("menu cache entry corrupt", zap.Error(err), zap.String("key", key))
		return nil, false
	}
	return trees, true
}

// Set stores trees under key.
func (c *Cache) Set(ctx context.Context, key string, trees []menutree.Tree) {
	raw, err := json.Marshal(trees)
	if err != nil {
		c.logger.Warn("menu cache encode failed", zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("menu cache write failed", zap.Error(err), zap.String("key", key))
	}
}

// Ping checks the redis connection.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
