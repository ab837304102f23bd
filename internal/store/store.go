// Package store defines the key/value persistence every checkout component
// writes through, plus the keys they use.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	apperrors "github.com/acaidelivery/checkout/pkg/errors"
)

// Store is a durable key/value medium holding JSON snapshots.
// Get returns an error wrapping apperrors.ErrNotFound for a missing key.
// The last writer of a key wins.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, keys ...string) error
	DeletePrefix(ctx context.Context, prefix string) error
}

// ErrCorrupt marks a snapshot that exists but cannot be decoded.
var ErrCorrupt = errors.New("corrupt snapshot")

// Pinger is implemented by backends that can report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NotFound returns the error backends report for a missing key.
func NotFound(key string) error {
	return apperrors.NotFound("key", key)
}

// IsNotFound reports whether err is a missing-key error.
func IsNotFound(err error) bool {
	return errors.Is(err, apperrors.ErrNotFound)
}

// Load reads key and decodes it into dst. It reports false when the key
// does not exist.
func Load(ctx context.Context, s Store, key string, dst any) (bool, error) {
	raw, err := s.Get(ctx, key)
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("decode %s: %w: %w", key, ErrCorrupt, err)
	}
	return true, nil
}

// Save encodes v as JSON and writes it under key.
func Save(ctx context.Context, s Store, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.Set(ctx, key, raw); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}
