package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
	"github.com/vladislavdragonenkov/commerce/internal/health"
	"github.com/vladislavdragonenkov/commerce/internal/storage/memory"
	"github.com/vladislavdragonenkov/commerce/internal/storage/postgres"
	redisstore "github.com/vladislavdragonenkov/commerce/internal/storage/redis"
)

// runtimeDependencies: хранилища, выбранные по конфигурации.
type runtimeDependencies struct {
	Orders      domain.OrderRepository
	Accounts    domain.AccountRepository
	Catalog     domain.Catalog
	Sequence    domain.OrderNumberSequence
	Sessions    domain.SessionRepository
	Timeline    domain.TimelineRepository
	Outbox      domain.OutboxRepository
	Idempotency domain.IdempotencyRepository

	// probes попадают в /healthz и /readyz.
	probes  map[string]health.PingFunc
	closers []func() error
}

// Close освобождает соединения в обратном порядке открытия.
func (d *runtimeDependencies) Close() error {
	if d == nil {
		return nil
	}
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}

func (d *runtimeDependencies) registerHealth(h *health.Handler) {
	for name, ping := range d.probes {
		h.Critical(name, ping)
	}
}

func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	deps := &runtimeDependencies{probes: make(map[string]health.PingFunc)}

	if err := initStorage(ctx, cfg, logger, deps); err != nil {
		_ = deps.Close()
		return nil, err
	}
	if err := initSessions(ctx, cfg, logger, deps); err != nil {
		_ = deps.Close()
		return nil, err
	}
	return deps, nil
}

func initStorage(ctx context.Context, cfg Config, logger *log.Entry, deps *runtimeDependencies) error {
	switch cfg.StorageDriver {
	case "", StorageDriverMemory:
		catalog := memory.NewCatalog()
		if cfg.SeedDemoCatalog {
			for _, v := range demoCatalog(cfg.DefaultStore) {
				catalog.Put(v)
			}
		}
		deps.Orders = memory.NewOrderRepository()
		deps.Accounts = memory.NewAccountRepository()
		deps.Catalog = catalog
		deps.Sequence = memory.NewOrderNumberSequence()
		deps.Timeline = memory.NewTimelineRepository()
		deps.Outbox = memory.NewOutboxRepository()
		deps.Idempotency = memory.NewIdempotencyRepository()
		logger.Info("using in-memory storage")
		return nil

	case StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return errors.New("postgres storage requires a DSN")
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN, postgres.DefaultPoolConfig())
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		deps.closers = append(deps.closers, store.Close)
		deps.probes["postgres"] = store.Ping

		if cfg.PostgresAutoMigrate {
			migrateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			err := store.MigrateUp(migrateCtx, 0)
			cancel()
			if err != nil {
				return fmt.Errorf("migrate postgres: %w", err)
			}
			logger.Info("postgres migrations applied")
		}

		deps.Orders = postgres.NewOrderRepository(store)
		deps.Accounts = postgres.NewAccountRepository(store)
		deps.Catalog = postgres.NewCatalog(store)
		deps.Sequence = postgres.NewOrderNumberSequence(store)
		deps.Timeline = postgres.NewTimelineRepository(store)
		deps.Outbox = postgres.NewOutboxRepository(store)
		deps.Idempotency = postgres.NewIdempotencyRepository(store)
		logger.Info("using postgres storage")
		return nil
	}
	return fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
}

func initSessions(ctx context.Context, cfg Config, logger *log.Entry, deps *runtimeDependencies) error {
	switch cfg.SessionDriver {
	case "", SessionDriverMemory:
		deps.Sessions = memory.NewSessionRepository()
		return nil

	case SessionDriverRedis:
		rdb := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		deps.closers = append(deps.closers, rdb.Close)

		sessions := redisstore.NewSessionRepository(rdb, cfg.SessionTTL)
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := sessions.Ping(pingCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
		}
		deps.Sessions = sessions
		deps.probes["redis"] = sessions.Ping
		logger.WithField("addr", cfg.RedisAddr).Info("using redis sessions")
		return nil
	}
	return fmt.Errorf("unknown session driver %q", cfg.SessionDriver)
}

// demoCatalog: товары для локального запуска на in-memory хранилище.
func demoCatalog(storeID string) []domain.Variation {
	return []domain.Variation{
		{ID: "tshirt-m", SKU: "TSHIRT-M", Title: "T-shirt (M)", Price: domain.MustPrice("19.99", "USD"), StoreIDs: []string{storeID}, Active: true},
		{ID: "tshirt-l", SKU: "TSHIRT-L", Title: "T-shirt (L)", Price: domain.MustPrice("19.99", "USD"), StoreIDs: []string{storeID}, Active: true},
		{ID: "mug", SKU: "MUG", Title: "Coffee mug", Price: domain.MustPrice("8.50", "USD"), StoreIDs: []string{storeID}, Active: true},
	}
}
