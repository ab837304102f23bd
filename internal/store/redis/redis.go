// Package redis is a store.Store backed by Redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/acaidelivery/checkout/internal/store"
	"github.com/acaidelivery/checkout/pkg/database"
)

const (
	keyPrefix = "checkout:"
	scanBatch = 200
)

// Store keeps snapshots as plain Redis strings without expiry.
type Store struct {
	client *redis.Client
	tracer database.QueryTracer
}

// New returns a Store using client.
func New(client *redis.Client, tracer database.QueryTracer) *Store {
	tracer.System = "redis"
	return &Store{client: client, tracer: tracer}
}

func (s *Store) Get(ctx context.Context, key string) (_ []byte, err error) {
	ctx, end := s.tracer.Trace(ctx, "get", key)
	defer func() { end(err) }()

	data, err := s.client.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, store.NotFound(key)
		}
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return data, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) (err error) {
	ctx, end := s.tracer.Trace(ctx, "set", key)
	defer func() { end(err) }()

	if err = s.client.Set(ctx, keyPrefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, keys ...string) (err error) {
	if len(keys) == 0 {
		return nil
	}
	ctx, end := s.tracer.Trace(ctx, "delete", strings.Join(keys, ","))
	defer func() { end(err) }()

	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = keyPrefix + k
	}
	if err = s.client.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// DeletePrefix removes every key starting with prefix using SCAN, so large
// keyspaces are never blocked by KEYS.
func (s *Store) DeletePrefix(ctx context.Context, prefix string) (err error) {
	ctx, end := s.tracer.Trace(ctx, "delete_prefix", prefix)
	defer func() { end(err) }()

	pattern := escapeGlob(keyPrefix+prefix) + "*"
	var cursor uint64
	for {
		var keys []string
		keys, cursor, err = s.client.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return fmt.Errorf("redis scan %s: %w", prefix, err)
		}
		if len(keys) > 0 {
			if err = s.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("redis del %s: %w", prefix, err)
			}
		}
		if cursor == 0 {
			return nil
		}
	}
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// escapeGlob quotes the characters SCAN MATCH treats as wildcards.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
