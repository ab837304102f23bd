package app

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acaidelivery/checkout/internal/config"
	"github.com/acaidelivery/checkout/internal/store/memory"
	storeredis "github.com/acaidelivery/checkout/internal/store/redis"
	"github.com/acaidelivery/checkout/pkg/database"
	"github.com/acaidelivery/checkout/pkg/health"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOpenStore_Memory(t *testing.T) {
	hh := health.NewHandler()
	kv, closeFn, err := openStore(context.Background(), &config.Config{StoreBackend: config.StoreMemory}, hh, testLogger())
	require.NoError(t, err)
	defer closeFn()

	assert.IsType(t, &memory.Store{}, kv)
	assert.Equal(t, health.StatusUp, hh.Check(context.Background()).Status)
}

func TestOpenStore_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &config.Config{StoreBackend: config.StoreRedis, Redis: database.DefaultRedisConfig()}
	cfg.Redis.Addr = mr.Addr()

	hh := health.NewHandler()
	kv, closeFn, err := openStore(context.Background(), cfg, hh, testLogger())
	require.NoError(t, err)
	defer closeFn()

	assert.IsType(t, &storeredis.Store{}, kv)
	require.NoError(t, kv.Set(context.Background(), "k", []byte("v")))
	assert.True(t, mr.Exists("checkout:k"))
	assert.Equal(t, health.StatusUp, hh.Check(context.Background()).Status)
}

func TestOpenStore_RedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := &config.Config{StoreBackend: config.StoreRedis, Redis: database.DefaultRedisConfig()}
	cfg.Redis.Addr = addr

	_, _, err := openStore(context.Background(), cfg, health.NewHandler(), testLogger())
	assert.ErrorContains(t, err, "connect to redis")
}
