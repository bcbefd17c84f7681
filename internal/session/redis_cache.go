// Package session caches resolved principals so each request does not
// round-trip to the identity provider.
package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"avr/api/internal/identity"
	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned when a token has no cached principal.
var ErrMiss = errors.New("principal not cached")

// PrincipalCache stores principals in Redis keyed by token hash. Tokens are
// never stored verbatim.
type PrincipalCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewPrincipalCache(redisURL string, ttl time.Duration) (*PrincipalCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewPrincipalCacheWithClient(client, ttl), nil
}

// NewPrincipalCacheWithClient creates a cache from an existing Redis client.
func NewPrincipalCacheWithClient(client *redis.Client, ttl time.Duration) *PrincipalCache {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &PrincipalCache{client: client, prefix: "principal:", ttl: ttl}
}

func (c *PrincipalCache) key(token string) string {
	sum := sha256.Sum256([]byte(token))
	return c.prefix + hex.EncodeToString(sum[:])
}

func (c *PrincipalCache) Get(ctx context.Context, token string) (identity.Principal, error) {
	data, err := c.client.Get(ctx, c.key(token)).Result()
	if err == redis.Nil {
		return identity.Principal{}, ErrMiss
	}
	if err != nil {
		return identity.Principal{}, fmt.Errorf("lookup principal: %w", err)
	}

	var principal identity.Principal
	if err := json.Unmarshal([]byte(data), &principal); err != nil {
		return identity.Principal{}, fmt.Errorf("unmarshal principal: %w", err)
	}
	return principal, nil
}

func (c *PrincipalCache) Put(ctx context.Context, token string, principal identity.Principal) error {
	data, err := json.Marshal(principal)
	if err != nil {
		return fmt.Errorf("marshal principal: %w", err)
	}
	if err := c.client.Set(ctx, c.key(token), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache principal: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (c *PrincipalCache) Close() error {
	return c.client.Close()
}

// Ping checks if Redis is reachable.
func (c *PrincipalCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
