package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
	"github.com/vladislavdragonenkov/commerce/internal/health"
	"github.com/vladislavdragonenkov/commerce/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/commerce/internal/metrics"
	"github.com/vladislavdragonenkov/commerce/internal/service/idempotency"
	"github.com/vladislavdragonenkov/commerce/internal/service/outbox"
)

const (
	shutdownTimeout     = 5 * time.Second
	healthWatchInterval = 10 * time.Second
	// outboxBacklogLimit: при большем числе неотправленных событий сервис degraded.
	outboxBacklogLimit = 1000
)

// App: собранный сервис: хранилища, доменные сервисы, серверы и фоновые воркеры.
type App struct {
	cfg      Config
	logger   *log.Entry
	deps     *runtimeDependencies
	services *services
	health   *health.Handler
	producer *kafka.Producer
}

// New поднимает зависимости по cfg. Серверы не стартуют до Run.
func New(ctx context.Context, cfg Config, logger *log.Entry) (*App, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:      cfg,
		logger:   logger,
		deps:     deps,
		services: buildServices(cfg, deps, logger),
		health:   health.NewHandler(),
	}
	deps.registerHealth(a.health)
	a.health.Optional("outbox", outboxBacklogProbe(deps.Outbox, outboxBacklogLimit))

	// Без Kafka сервис работает, события ждут в outbox.
	if producer, err := initKafkaProducer(cfg.KafkaBrokers, logger); err == nil {
		a.producer = producer
	}
	return a, nil
}

// Handler: HTTP API корзины и оформления.
func (a *App) Handler() http.Handler {
	return a.services.HTTP
}

// Close освобождает Kafka и хранилища.
func (a *App) Close() error {
	closeKafka(a.producer, a.logger)
	a.producer = nil
	return a.deps.Close()
}

// Run запускает серверы и воркеры и ждёт отмены ctx или падения сервера.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var workers sync.WaitGroup
	a.startWorkers(ctx, &workers)

	grpcServer, grpcHealth := a.newGRPCServer()
	go a.watchHealth(ctx, grpcHealth)

	metricsSrv := startMetricsServer(ctx, a.cfg.MetricsAddr, a.logger, a.health)

	httpSrv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.services.HTTP,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		a.logger.Infof("HTTP API слушает %s", a.cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	if a.cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", a.cfg.GRPCAddr)
		if err != nil {
			shutdownHTTP(httpSrv, a.logger)
			shutdownHTTP(metricsSrv, a.logger)
			cancel()
			workers.Wait()
			return err
		}
		go func() {
			a.logger.Infof("gRPC admin сервер слушает %s", a.cfg.GRPCAddr)
			if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				errCh <- fmt.Errorf("grpc server: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("получен сигнал остановки, останавливаем серверы")
		runErr = ctx.Err()
	case runErr = <-errCh:
		a.logger.WithError(runErr).Error("server failed")
	}

	grpcHealth.Shutdown()
	stopGRPC(grpcServer, a.logger)
	shutdownHTTP(httpSrv, a.logger)
	shutdownHTTP(metricsSrv, a.logger)

	cancel()
	workers.Wait()
	return runErr
}

// Run: точка входа cmd: собирает App, запускает и закрывает его.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")
	a, err := New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.WithError(err).Warn("failed to close dependencies")
		}
	}()
	return a.Run(ctx)
}

func (a *App) startWorkers(ctx context.Context, wg *sync.WaitGroup) {
	cleanup := idempotency.NewCleanupWorker(a.deps.Idempotency,
		idempotency.WithInterval(a.cfg.IdempotencyCleanupInterval),
		idempotency.WithBatchSize(a.cfg.IdempotencyCleanupBatchSize),
		idempotency.WithMetrics(metrics.NewIdempotencyMetrics()),
		idempotency.WithLogger(a.logger.WithField("component", "idempotency-cleanup")),
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		cleanup.Run(ctx)
	}()

	if a.producer == nil {
		a.logger.Info("kafka is not configured, outbox events stay pending")
		return
	}
	worker := outbox.NewWorker(a.deps.Outbox, kafka.NewOutboxPublisher(a.producer, a.cfg.KafkaTopic),
		outbox.WithDLQPublisher(kafka.NewOutboxPublisher(a.producer, a.cfg.KafkaDLQ)),
		outbox.WithConfig(outbox.Config{
			PollInterval:   a.cfg.OutboxPollInterval,
			BatchSize:      a.cfg.OutboxBatchSize,
			MaxAttempts:    a.cfg.OutboxMaxAttempts,
			RetryBaseDelay: a.cfg.OutboxRetryDelay,
		}),
		outbox.WithMetrics(metrics.NewOutboxMetrics()),
		outbox.WithLogger(a.logger.WithField("component", "outbox")),
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Run(ctx)
	}()
}

// newGRPCServer: служебный gRPC: health, reflection и метрики вызовов.
func (a *App) newGRPCServer() (*grpc.Server, *grpchealth.Server) {
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := prometheus.Register(grpcMetrics); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*promgrpc.ServerMetrics); ok {
				grpcMetrics = existing
			}
		} else {
			a.logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	server := grpc.NewServer(
		grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(grpcMetrics.StreamServerInterceptor()),
	)
	healthServer := grpchealth.NewServer()
	healthpb.RegisterHealthServer(server, healthServer)
	reflection.Register(server)
	grpcMetrics.InitializeMetrics(server)

	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	return server, healthServer
}

// watchHealth переносит результат проверок зависимостей в gRPC health.
func (a *App) watchHealth(ctx context.Context, srv *grpchealth.Server) {
	ticker := time.NewTicker(healthWatchInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			status := healthpb.HealthCheckResponse_SERVING
			if a.health.Run(ctx).Status == health.StatusUnhealthy {
				status = healthpb.HealthCheckResponse_NOT_SERVING
			}
			srv.SetServingStatus("", status)
		}
	}
}

func outboxBacklogProbe(repo domain.OutboxRepository, limit int) health.PingFunc {
	return func(ctx context.Context) error {
		stats, err := repo.Stats(ctx)
		if err != nil {
			return err
		}
		if stats.PendingCount > limit {
			return fmt.Errorf("outbox backlog %d exceeds %d", stats.PendingCount, limit)
		}
		return nil
	}
}

// startMetricsServer: /metrics для Prometheus и пробы для оркестратора.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, checks *health.Handler) *http.Server {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", checks)
	mux.HandleFunc("/readyz", checks.Ready)
	mux.HandleFunc("/livez", health.Live)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/readyz, %s/livez", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

func stopGRPC(server *grpc.Server, logger *log.Entry) {
	stopped := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(shutdownTimeout):
		logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		server.Stop()
	}
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
