package corecache

import (
	"context"
	"encoding/json"
	"time"

	"legalrag/internal/config"

	"github.com/redis/go-redis/v9"
)

// RedisClient is a thin JSON-marshaling convenience layer over go-redis,
// backing the process-wide result cache and query-expansion cache (spec
// §4.12 domain stack).
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient builds a client from a Redis service endpoint. A nil
// endpoint, or one with neither URL nor host, still returns a usable client
// pointed at an address that will simply fail to connect, so callers can
// treat caching as best-effort. The endpoint's Enabled flag is not read.
func NewRedisClient(ep *config.ServiceEndpoint) *RedisClient {
	if ep == nil {
		return &RedisClient{client: redis.NewClient(&redis.Options{Addr: "localhost:0"})}
	}

	addr := ep.ResolvedURL()
	if addr == "" {
		addr = "localhost:0"
	}

	return &RedisClient{
		client: redis.NewClient(&redis.Options{
			Addr:         addr,
			Password:     ep.APIKey,
			DialTimeout:  nonZeroOr(ep.Timeout, 5*time.Second),
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			PoolSize:     10,
			MinIdleConns: 2,
		}),
	}
}

func nonZeroOr(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}

// Set stores a value with JSON serialization.
func (r *RedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key, data, expiration).Err()
}

// Get retrieves and deserializes a value.
func (r *RedisClient) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := r.client.Get(ctx, key).Result()
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(data), dest)
}

// Delete removes a key.
func (r *RedisClient) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

// MGet retrieves multiple values at once.
func (r *RedisClient) MGet(ctx context.Context, keys ...string) ([]interface{}, error) {
	return r.client.MGet(ctx, keys...).Result()
}

// Pipeline returns a Redis pipeline for batched commands.
func (r *RedisClient) Pipeline() redis.Pipeliner {
	return r.client.Pipeline()
}

// Client returns the underlying go-redis client for advanced operations.
func (r *RedisClient) Client() *redis.Client {
	return r.client
}

// Ping checks Redis connectivity.
func (r *RedisClient) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (r *RedisClient) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}
