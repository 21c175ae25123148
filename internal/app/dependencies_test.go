package app

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
	"github.com/vladislavdragonenkov/commerce/internal/health"
)

func TestInitRuntimeDependencies_Memory(t *testing.T) {
	cfg := DefaultConfig()
	deps, err := initRuntimeDependencies(context.Background(), cfg, log.WithField("test", "memory-storage"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = deps.Close() })

	assert.NotNil(t, deps.Orders)
	assert.NotNil(t, deps.Accounts)
	assert.NotNil(t, deps.Sequence)
	assert.NotNil(t, deps.Sessions)
	assert.NotNil(t, deps.Timeline)
	assert.NotNil(t, deps.Outbox)
	assert.NotNil(t, deps.Idempotency)
	assert.Empty(t, deps.probes, "memory storage has nothing to ping")

	v, err := deps.Catalog.GetVariation(context.Background(), "mug")
	require.NoError(t, err)
	assert.True(t, v.AvailableIn(cfg.DefaultStore))
}

func TestInitRuntimeDependencies_EmptyCatalog(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SeedDemoCatalog = false

	deps, err := initRuntimeDependencies(context.Background(), cfg, log.WithField("test", "empty-catalog"))
	require.NoError(t, err)

	_, err = deps.Catalog.GetVariation(context.Background(), "mug")
	assert.ErrorIs(t, err, domain.ErrVariationNotFound)
}

func TestInitRuntimeDependencies_RedisSessions(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := DefaultConfig()
	cfg.SessionDriver = SessionDriverRedis
	cfg.RedisAddr = mr.Addr()
	cfg.SessionTTL = time.Hour

	deps, err := initRuntimeDependencies(context.Background(), cfg, log.WithField("test", "redis-sessions"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = deps.Close() })

	now := time.Now().UTC()
	require.NoError(t, deps.Sessions.Save(context.Background(), domain.Session{
		Token:     "tok-1",
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}))
	assert.True(t, mr.Exists("commerce:session:tok-1"))

	h := health.NewHandler()
	deps.registerHealth(h)
	assert.Equal(t, health.StatusHealthy, h.Run(context.Background()).Status)

	mr.Close()
	assert.Equal(t, health.StatusUnhealthy, h.Run(context.Background()).Status)
}

func TestInitRuntimeDependencies_Errors(t *testing.T) {
	cases := map[string]func(*Config){
		"postgres without dsn": func(c *Config) { c.StorageDriver = StorageDriverPostgres },
		"unsupported storage":  func(c *Config) { c.StorageDriver = "sqlite" },
		"unsupported sessions": func(c *Config) { c.SessionDriver = "memcached" },
		"redis unreachable": func(c *Config) {
			c.SessionDriver = SessionDriverRedis
			c.RedisAddr = "127.0.0.1:1"
		},
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(&cfg)
			deps, err := initRuntimeDependencies(context.Background(), cfg, log.WithField("test", name))
			if err == nil {
				t.Fatal("expected error")
			}
			if deps != nil {
				t.Fatal("deps must be nil on error")
			}
		})
	}
}

func TestRuntimeDependencies_CloseOrder(t *testing.T) {
	var order []string
	deps := &runtimeDependencies{closers: []func() error{
		func() error { order = append(order, "postgres"); return nil },
		func() error { order = append(order, "redis"); return assert.AnError },
	}}

	err := deps.Close()
	require.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, []string{"redis", "postgres"}, order)
	assert.NoError(t, deps.Close(), "second close is a no-op")

	var nilDeps *runtimeDependencies
	assert.NoError(t, nilDeps.Close())
}
