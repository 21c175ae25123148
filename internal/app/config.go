package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"

	SessionDriverMemory = "memory"
	SessionDriverRedis  = "redis"
)

// Config описывает настройки запуска сервиса.
type Config struct {
	HTTPAddr    string
	GRPCAddr    string
	MetricsAddr string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool

	SessionDriver string
	RedisAddr     string
	SessionTTL    time.Duration
	SecureCookie  bool

	KafkaBrokers []string
	KafkaTopic   string
	KafkaDLQ     string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration

	IdempotencyTTL              time.Duration
	IdempotencyCleanupInterval  time.Duration
	IdempotencyCleanupBatchSize int

	AllowGuestCheckout bool
	AllowRegistration  bool
	DefaultStore       string
	// SeedDemoCatalog наполняет in-memory каталог демонстрационными товарами.
	SeedDemoCatalog bool
	// TestPaymentGateway добавляет шлюз "test" рядом с ручной оплатой.
	TestPaymentGateway bool

	LogLevel  string
	LogFormat string
}

// DefaultConfig возвращает настройки для локального запуска без внешних зависимостей.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:    ":8080",
		GRPCAddr:    ":50051",
		MetricsAddr: ":9090",

		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,

		SessionDriver: SessionDriverMemory,
		RedisAddr:     "localhost:6379",
		SessionTTL:    14 * 24 * time.Hour,

		KafkaTopic: "commerce.order.events",
		KafkaDLQ:   "commerce.order.dlq",

		OutboxPollInterval: time.Second,
		OutboxBatchSize:    100,
		OutboxMaxAttempts:  3,
		OutboxRetryDelay:   50 * time.Millisecond,

		IdempotencyTTL:              24 * time.Hour,
		IdempotencyCleanupInterval:  time.Minute,
		IdempotencyCleanupBatchSize: 500,

		AllowGuestCheckout: true,
		AllowRegistration:  false,
		DefaultStore:       "default",
		SeedDemoCatalog:    true,

		LogLevel:  "info",
		LogFormat: "text",
	}
}

// LoadConfigFromEnv читает .env (если файл есть) и переменные окружения
// поверх DefaultConfig. Уже выставленные переменные окружения .env не перетирает.
func LoadConfigFromEnv(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	cfg := DefaultConfig()
	p := envParser{}

	cfg.HTTPAddr = p.str("COMMERCE_HTTP_ADDR", cfg.HTTPAddr)
	cfg.GRPCAddr = p.str("COMMERCE_GRPC_ADDR", cfg.GRPCAddr)
	cfg.MetricsAddr = p.str("COMMERCE_METRICS_ADDR", cfg.MetricsAddr)

	cfg.StorageDriver = strings.ToLower(p.str("COMMERCE_STORAGE_DRIVER", cfg.StorageDriver))
	cfg.PostgresDSN = p.str("COMMERCE_POSTGRES_DSN", cfg.PostgresDSN)
	cfg.PostgresAutoMigrate = p.boolean("COMMERCE_POSTGRES_AUTO_MIGRATE", cfg.PostgresAutoMigrate)

	cfg.SessionDriver = strings.ToLower(p.str("COMMERCE_SESSION_DRIVER", cfg.SessionDriver))
	cfg.RedisAddr = p.str("COMMERCE_REDIS_ADDR", cfg.RedisAddr)
	cfg.SessionTTL = p.duration("COMMERCE_SESSION_TTL", cfg.SessionTTL)
	cfg.SecureCookie = p.boolean("COMMERCE_SECURE_COOKIE", cfg.SecureCookie)

	cfg.KafkaBrokers = splitList(os.Getenv("KAFKA_BROKERS"))
	cfg.KafkaTopic = p.str("COMMERCE_KAFKA_TOPIC", cfg.KafkaTopic)
	cfg.KafkaDLQ = p.str("COMMERCE_KAFKA_DLQ_TOPIC", cfg.KafkaDLQ)

	cfg.OutboxPollInterval = p.duration("COMMERCE_OUTBOX_POLL_INTERVAL", cfg.OutboxPollInterval)
	cfg.OutboxBatchSize = p.integer("COMMERCE_OUTBOX_BATCH_SIZE", cfg.OutboxBatchSize)
	cfg.OutboxMaxAttempts = p.integer("COMMERCE_OUTBOX_MAX_ATTEMPTS", cfg.OutboxMaxAttempts)
	cfg.OutboxRetryDelay = p.duration("COMMERCE_OUTBOX_RETRY_DELAY", cfg.OutboxRetryDelay)

	cfg.IdempotencyTTL = p.duration("COMMERCE_IDEMPOTENCY_TTL", cfg.IdempotencyTTL)
	cfg.IdempotencyCleanupInterval = p.duration("COMMERCE_IDEMPOTENCY_CLEANUP_INTERVAL", cfg.IdempotencyCleanupInterval)
	cfg.IdempotencyCleanupBatchSize = p.integer("COMMERCE_IDEMPOTENCY_CLEANUP_BATCH_SIZE", cfg.IdempotencyCleanupBatchSize)

	cfg.AllowGuestCheckout = p.boolean("COMMERCE_ALLOW_GUEST_CHECKOUT", cfg.AllowGuestCheckout)
	cfg.AllowRegistration = p.boolean("COMMERCE_ALLOW_REGISTRATION", cfg.AllowRegistration)
	cfg.DefaultStore = p.str("COMMERCE_DEFAULT_STORE", cfg.DefaultStore)
	cfg.SeedDemoCatalog = p.boolean("COMMERCE_SEED_DEMO_CATALOG", cfg.SeedDemoCatalog)
	cfg.TestPaymentGateway = p.boolean("COMMERCE_TEST_PAYMENT_GATEWAY", cfg.TestPaymentGateway)

	cfg.LogLevel = p.str("COMMERCE_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = strings.ToLower(p.str("COMMERCE_LOG_FORMAT", cfg.LogFormat))

	if err := errors.Join(p.errs...); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// Validate проверяет согласованность настроек до старта зависимостей.
func (c Config) Validate() error {
	var errs []error

	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			errs = append(errs, errors.New("COMMERCE_POSTGRES_DSN is required for postgres storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.StorageDriver))
	}

	switch c.SessionDriver {
	case SessionDriverMemory:
	case SessionDriverRedis:
		if strings.TrimSpace(c.RedisAddr) == "" {
			errs = append(errs, errors.New("COMMERCE_REDIS_ADDR is required for redis sessions"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown session driver %q", c.SessionDriver))
	}

	if c.HTTPAddr == "" {
		errs = append(errs, errors.New("http address is required"))
	}
	if strings.TrimSpace(c.DefaultStore) == "" {
		errs = append(errs, errors.New("default store is required"))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("session ttl must be positive"))
	}
	if c.IdempotencyTTL <= 0 {
		errs = append(errs, errors.New("idempotency ttl must be positive"))
	}
	if c.OutboxPollInterval <= 0 || c.OutboxBatchSize <= 0 || c.OutboxMaxAttempts <= 0 {
		errs = append(errs, errors.New("outbox poll interval, batch size and attempts must be positive"))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("unknown log format %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

// envParser копит ошибки разбора, чтобы сообщить обо всех переменных сразу.
type envParser struct {
	errs []error
}

func (p *envParser) str(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func (p *envParser) boolean(key string, fallback bool) bool {
	raw := p.str(key, "")
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return v
}

func (p *envParser) integer(key string, fallback int) int {
	raw := p.str(key, "")
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return v
}

func (p *envParser) duration(key string, fallback time.Duration) time.Duration {
	raw := p.str(key, "")
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return v
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
