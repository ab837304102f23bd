// Package postgres is a store.Store backed by a PostgreSQL table.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/acaidelivery/checkout/internal/store"
	"github.com/acaidelivery/checkout/pkg/database"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrations returns the schema files for RunMigrations.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		panic(fmt.Sprintf("postgres migrations: %v", err))
	}
	return sub
}

// Migrate applies the kv_store schema.
func Migrate(ctx context.Context, db database.DBTX, logger *slog.Logger) error {
	return database.RunMigrations(ctx, db, Migrations(), logger)
}

const (
	getQuery = `SELECT value FROM kv_store WHERE key = $1`
	setQuery = `INSERT INTO kv_store (key, value, updated_at) VALUES ($1, $2, NOW())
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`
	deleteQuery       = `DELETE FROM kv_store WHERE key = ANY($1)`
	deletePrefixQuery = `DELETE FROM kv_store WHERE key LIKE $1 ESCAPE '\'`
)

// Store keeps one row per key in kv_store.
type Store struct {
	db     database.DBTX
	tracer database.QueryTracer
}

// New returns a Store using db.
func New(db database.DBTX, tracer database.QueryTracer) *Store {
	tracer.System = "postgresql"
	return &Store{db: db, tracer: tracer}
}

func (s *Store) Get(ctx context.Context, key string) (_ []byte, err error) {
	ctx, end := s.tracer.Trace(ctx, "get", key)
	defer func() { end(err) }()

	var value []byte
	if err = s.db.QueryRow(ctx, getQuery, key).Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.NotFound(key)
		}
		return nil, fmt.Errorf("select %s: %w", key, err)
	}
	return value, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) (err error) {
	ctx, end := s.tracer.Trace(ctx, "set", key)
	defer func() { end(err) }()

	if _, err = s.db.Exec(ctx, setQuery, key, value); err != nil {
		return fmt.Errorf("upsert %s: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, keys ...string) (err error) {
	if len(keys) == 0 {
		return nil
	}
	ctx, end := s.tracer.Trace(ctx, "delete", strings.Join(keys, ","))
	defer func() { end(err) }()

	if _, err = s.db.Exec(ctx, deleteQuery, keys); err != nil {
		return fmt.Errorf("delete keys: %w", err)
	}
	return nil
}

func (s *Store) DeletePrefix(ctx context.Context, prefix string) (err error) {
	ctx, end := s.tracer.Trace(ctx, "delete_prefix", prefix)
	defer func() { end(err) }()

	if _, err = s.db.Exec(ctx, deletePrefixQuery, likePrefix(prefix)); err != nil {
		return fmt.Errorf("delete prefix %s: %w", prefix, err)
	}
	return nil
}

// Ping checks that the table is reachable.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.db.Exec(ctx, "SELECT 1")
	return err
}

// likePrefix builds a LIKE pattern matching keys that start with prefix.
func likePrefix(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix) + "%"
}
