// Package redisclient wraps go-redis for the key-value concerns that
// sit outside the document store: ephemeral presence/typing state.
// Every mutation here is a single
// pipelined round trip so callers get the "atomic multi-operation"
// guarantee the presence model depends on.
package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/TambongStercy/SBC-MS-sub006/config"
	"github.com/redis/go-redis/v9"
)

type Client struct {
	c *redis.Client
}

// New creates a Redis client from the provided config. Returns an
// error if the Redis URL cannot be parsed.
func New(cfg *config.Config) (*Client, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	r := redis.NewClient(opt)
	return &Client{c: r}, nil
}

func (r *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return r.c.Ping(ctx).Err()
}

func (r *Client) Close() error { return r.c.Close() }

// SetWithExpiry sets key=value with TTL in one round trip.
func (r *Client) SetWithExpiry(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.c.Set(ctx, key, value, ttl).Err()
}

// SetManyWithExpiry sets several keys to the same TTL atomically via a
// pipeline, satisfying the "set+expire together" requirement for
// presence online/socket pairs.
func (r *Client) SetManyWithExpiry(ctx context.Context, kv map[string]string, ttl time.Duration) error {
	pipe := r.c.TxPipeline()
	for k, v := range kv {
		pipe.Set(ctx, k, v, ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Get returns the value and whether the key existed.
func (r *Client) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.c.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// MGet returns values for several keys in one round trip, preserving
// order; missing keys come back as ("", false).
func (r *Client) MGet(ctx context.Context, keys []string) ([]string, []bool, error) {
	if len(keys) == 0 {
		return nil, nil, nil
	}
	res, err := r.c.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, nil, err
	}
	vals := make([]string, len(res))
	ok := make([]bool, len(res))
	for i, v := range res {
		if v == nil {
			continue
		}
		if s, isStr := v.(string); isStr {
			vals[i] = s
			ok[i] = true
		}
	}
	return vals, ok, nil
}

// Del removes one or more keys atomically.
func (r *Client) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return r.c.Del(ctx, keys...).Err()
}

// Expire refreshes a key's TTL without touching its value.
func (r *Client) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return r.c.Expire(ctx, key, ttl).Err()
}

// ScanKeys returns every key matching pattern via cursor-based SCAN,
// used for conversation-scoped typing lookups (presence:typing:{conv}:*).
func (r *Client) ScanKeys(ctx context.Context, pattern string) ([]string, error) {
	var out []string
	var cursor uint64
	for {
		keys, next, err := r.c.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			return nil, err
		}
		out = append(out, keys...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return out, nil
}

// Incr atomically increments key, sets its TTL, and returns the new
// value. Nothing in this module calls it.
func (r *Client) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	pipe := r.c.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}
