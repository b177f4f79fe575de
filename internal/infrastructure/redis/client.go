package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/trialsignup/signup/internal/domain"
)

const verdictKeyPrefix = "verdict:"

// New connects to url and pings it. Returns nil, nil when url is empty.
func New(ctx context.Context, url string) (*redis.Client, error) {
	if url == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// kv is the subset of the go-redis client the cache uses.
type kv interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// VerdictCache shares remote verification verdicts across server instances.
type VerdictCache struct {
	client kv
	ttl    time.Duration
}

// NewVerdictCache builds a cache whose entries expire after ttl.
func NewVerdictCache(client kv, ttl time.Duration) *VerdictCache {
	return &VerdictCache{client: client, ttl: ttl}
}

// Get returns the cached verdict for field/value, if any.
func (c *VerdictCache) Get(ctx context.Context, field, value string) (*domain.ValidationResult, bool, error) {
	raw, err := c.client.Get(ctx, verdictKey(field, value)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var res domain.ValidationResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, false, fmt.Errorf("decode cached verdict: %w", err)
	}
	return &res, true, nil
}

// Set stores a verdict for field/value.
func (c *VerdictCache) Set(ctx context.Context, field, value string, res domain.ValidationResult) error {
	raw, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode verdict: %w", err)
	}
	return c.client.Set(ctx, verdictKey(field, value), raw, c.ttl).Err()
}

func verdictKey(field, value string) string {
	return verdictKeyPrefix + field + ":" + value
}
