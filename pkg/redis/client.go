package redis

import (
	"context"
	"fmt"
	"time"

	"flightcore/internal/config"

	"github.com/go-redis/redis/v8"
)

// Client represents Redis client wrapper
type Client struct {
	*redis.Client
}

// NewClient creates a new Redis client
func NewClient(cfg *config.RedisConfig) *Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &Client{rdb}
}

// NewClientFromAddr creates a Redis client for an explicit address,
// used by tests running against an in-memory server.
func NewClientFromAddr(addr string) *Client {
	return &Client{redis.NewClient(&redis.Options{Addr: addr})}
}

// SetJSON sets a JSON value in Redis with TTL
func (c *Client) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return c.Client.Set(ctx, key, value, ttl).Err()
}

// Get gets a value from Redis
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	return c.Client.Get(ctx, key).Result()
}

// Exists checks if a key exists in Redis
func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	count, err := c.Client.Exists(ctx, key).Result()
	return count > 0, err
}

// Delete deletes a key from Redis
func (c *Client) Delete(ctx context.Context, key string) error {
	return c.Client.Del(ctx, key).Err()
}

// releaseScript deletes a lock key only when its stored owner token
// matches, fencing a release issued after the TTL let another owner in.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// AcquireLock attempts to take a distributed lock, storing token as the
// owner value. Returns false without error when the key is already held.
func (c *Client) AcquireLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	return c.Client.SetNX(ctx, key, token, ttl).Result()
}

// ReleaseLock releases a distributed lock if token still owns it.
// Returns false when the key was absent or owned by someone else.
func (c *Client) ReleaseLock(ctx context.Context, key, token string) (bool, error) {
	deleted, err := releaseScript.Run(ctx, c.Client, []string{key}, token).Int64()
	if err != nil {
		return false, err
	}
	return deleted > 0, nil
}

// IncrBy increments a key by the specified amount
func (c *Client) IncrBy(ctx context.Context, key string, value int64) (int64, error) {
	return c.Client.IncrBy(ctx, key, value).Result()
}

// GetInt gets an integer value from Redis
func (c *Client) GetInt(ctx context.Context, key string) (int64, error) {
	return c.Client.Get(ctx, key).Int64()
}

// MGet gets multiple values from Redis; missing keys come back as nil.
func (c *Client) MGet(ctx context.Context, keys ...string) ([]interface{}, error) {
	return c.Client.MGet(ctx, keys...).Result()
}

// Ping checks Redis connectivity
func (c *Client) Ping(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}
