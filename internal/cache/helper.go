package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrMiss is returned by GetJSON when the key is absent or caching is off.
var ErrMiss = errors.New("cache miss")

// GetJSON reads a key and unmarshals it into dest. Cache errors other than a
// miss are swallowed into ErrMiss so callers always fall through to the
// database.
func GetJSON(ctx context.Context, key string, dest any) error {
	if client == nil {
		return ErrMiss
	}
	raw, err := client.Get(ctx, key).Bytes()
	if err != nil {
		return ErrMiss
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		// Poisoned entry; drop it so the next write replaces it.
		client.Del(ctx, key)
		return ErrMiss
	}
	return nil
}

// SetJSON marshals value and stores it under key with the given TTL.
// Failures are ignored: the cache is an optimization, never a dependency.
func SetJSON(ctx context.Context, key string, value any, ttl time.Duration) {
	if client == nil {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	client.Set(ctx, key, raw, ttl)
}

// Aside implements the cache-aside pattern: return the cached value if
// present, otherwise run load and store its result under key.
func Aside(ctx context.Context, key string, dest any, ttl time.Duration, load func() error) error {
	if err := GetJSON(ctx, key, dest); err == nil {
		return nil
	}
	if err := load(); err != nil {
		return err
	}
	SetJSON(ctx, key, dest, ttl)
	return nil
}
