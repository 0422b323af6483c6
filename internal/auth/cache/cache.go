// Package cache holds short-lived, single-use state such as MFA setup
// tokens, challenges and attempt counters. Nothing in here is durable.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned for keys that are absent or expired. Callers
// cannot tell the two apart.
var ErrNotFound = errors.New("cache: not found")

// Store is a keyed store with per-key expiry.
type Store interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, keys ...string) error

	// Take returns the value and removes the key in one step. Of several
	// concurrent callers at most one receives the value.
	Take(ctx context.Context, key string) ([]byte, error)

	// SetNX writes only when the key is absent and reports whether it did.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Swap writes value and returns what was stored before. A missing
	// previous value yields ErrNotFound, the write still happens.
	Swap(ctx context.Context, key string, value []byte, ttl time.Duration) ([]byte, error)

	// Incr increments a counter. The ttl is applied when the counter is
	// created and is not extended by later increments.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}

// SetJSON stores v encoded as JSON.
func SetJSON(ctx context.Context, s Store, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Set(ctx, key, raw, ttl)
}

// GetJSON reads key and decodes it into v.
func GetJSON(ctx context.Context, s Store, key string, v any) error {
	raw, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	return decode(key, raw, v)
}

// TakeJSON consumes key and decodes it into v.
func TakeJSON(ctx context.Context, s Store, key string, v any) error {
	raw, err := s.Take(ctx, key)
	if err != nil {
		return err
	}
	return decode(key, raw, v)
}

func decode(key string, raw []byte, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}
