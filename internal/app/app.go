package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/acaidelivery/checkout/internal/checkout"
	"github.com/acaidelivery/checkout/internal/client/nominatim"
	"github.com/acaidelivery/checkout/internal/client/pixgateway"
	"github.com/acaidelivery/checkout/internal/client/viacep"
	"github.com/acaidelivery/checkout/internal/config"
	"github.com/acaidelivery/checkout/internal/event"
	handler "github.com/acaidelivery/checkout/internal/handler/http"
	"github.com/acaidelivery/checkout/internal/payment"
	"github.com/acaidelivery/checkout/internal/store"
	"github.com/acaidelivery/checkout/internal/store/memory"
	"github.com/acaidelivery/checkout/internal/store/postgres"
	storeredis "github.com/acaidelivery/checkout/internal/store/redis"
	"github.com/acaidelivery/checkout/pkg/database"
	"github.com/acaidelivery/checkout/pkg/health"
	"github.com/acaidelivery/checkout/pkg/httpclient"
	pkgkafka "github.com/acaidelivery/checkout/pkg/kafka"
	"github.com/acaidelivery/checkout/pkg/middleware"
	"github.com/acaidelivery/checkout/pkg/tracing"
)

const serviceName = "checkout"

// App wires together all dependencies and runs the checkout service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	registry       *checkout.Registry
	producer       *pkgkafka.Producer
	closeStore     func()
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize OpenTelemetry tracing.
	tracingCfg := cfg.Tracing
	tracingCfg.ServiceName = serviceName
	tracingCfg.Environment = cfg.Environment
	tracerShutdown, err := tracing.InitTracer(ctx, tracingCfg)
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	healthHandler := health.NewHandler()

	kv, closeStore, err := openStore(ctx, cfg, healthHandler, logger)
	if err != nil {
		_ = tracerShutdown(context.Background())
		return nil, err
	}

	// Kafka is optional; without it events are dropped.
	var (
		producer  *pkgkafka.Producer
		publisher pkgkafka.Publisher = pkgkafka.NoopPublisher{}
	)
	if cfg.KafkaEnabled {
		producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		publisher = producer
		healthHandler.RegisterNonCritical("kafka", producer.Ping)
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}
	eventProducer := event.NewProducer(publisher, logger)

	// Upstream clients, each behind its own circuit breaker.
	postal := viacep.New(upstream(cfg, "viacep", "", logger), cfg.ViaCEPBaseURL)
	geocoder := nominatim.New(
		httpclient.NewRateLimitedClient(upstream(cfg, "nominatim", cfg.NominatimUserAgent, logger), cfg.NominatimRPS, 1),
		cfg.NominatimBaseURL,
	)
	gateway := pixgateway.New(upstream(cfg, "pixgateway", "", logger), cfg.PixGatewayURL)
	logger.Info("circuit breakers initialized",
		slog.Uint64("max_requests", uint64(cfg.CBMaxRequests)),
		slog.Int("timeout_seconds", cfg.CBTimeout),
		slog.Uint64("min_requests", uint64(cfg.CBMinRequests)),
	)

	registry := checkout.NewRegistry(checkout.Dependencies{
		Store:           kv,
		Postal:          postal,
		Geocoder:        geocoder,
		Gateway:         gateway,
		Events:          eventProducer,
		ShippingLatency: cfg.ShippingLatency(),
		Payment: payment.Config{
			SessionTTL: cfg.SessionTTL(),
			Product:    cfg.PixProductLabel,
		},
		Logger: logger,
	}, checkout.Eviction{Idle: cfg.WorkspaceIdle(), Viewless: cfg.WorkspaceViewlessIdle()})

	cors := middleware.DefaultCORSConfig()
	cors.AllowedOrigins = cfg.CORSAllowedOrigins
	router := handler.NewRouter(registry, healthHandler, cors, logger)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		registry:       registry,
		producer:       producer,
		closeStore:     closeStore,
		httpServer:     httpServer,
		tracerShutdown: tracerShutdown,
	}, nil
}

// openStore connects the configured backend and registers its health check.
// The returned func releases the connection.
func openStore(ctx context.Context, cfg *config.Config, hh *health.Handler, logger *slog.Logger) (store.Store, func(), error) {
	tracer := database.QueryTracer{
		SlowThreshold: time.Duration(cfg.SlowStoreMs) * time.Millisecond,
		Logger:        logger,
	}

	switch cfg.StoreBackend {
	case config.StoreRedis:
		rdb, err := database.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to redis: %w", err)
		}
		logger.Info("connected to Redis",
			slog.String("addr", cfg.Redis.Addr),
			slog.Int("db", cfg.Redis.DB),
		)
		kv := storeredis.New(rdb, tracer)
		hh.RegisterCritical("redis", kv.Ping)
		return kv, func() {
			if err := rdb.Close(); err != nil {
				logger.Error("redis close error", slog.String("error", err.Error()))
			}
		}, nil

	case config.StorePostgres:
		pool, err := database.NewPostgresPool(ctx, &cfg.Postgres, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		logger.Info("connected to PostgreSQL",
			slog.String("host", cfg.Postgres.Host),
			slog.Int("port", cfg.Postgres.Port),
			slog.String("database", cfg.Postgres.DBName),
		)
		if err := postgres.Migrate(ctx, pool, logger); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("run migrations: %w", err)
		}
		logger.Info("database migrations completed")

		collector := database.NewPoolStatsCollector(pool, serviceName)
		if err := prometheus.Register(collector); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				pool.Close()
				return nil, nil, fmt.Errorf("register pool metrics: %w", err)
			}
		}

		kv := postgres.New(pool, tracer)
		hh.RegisterCritical("postgres", kv.Ping)
		return kv, func() {
			prometheus.Unregister(collector)
			pool.Close()
		}, nil

	default:
		logger.Warn("using in-memory store; state is lost on restart")
		kv := memory.New()
		hh.RegisterCritical("store", kv.Ping)
		return kv, func() {}, nil
	}
}

// upstream builds the HTTP client for one upstream service.
func upstream(cfg *config.Config, name, userAgent string, logger *slog.Logger) httpclient.Doer {
	base := httpclient.New(cfg.HTTPClient(userAgent))
	return httpclient.NewCircuitBreakerClient(base, cfg.CircuitBreaker(name), logger)
}

// Run starts the HTTP server and the workspace sweeper and blocks until the
// context is canceled or the server fails.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("starting HTTP server", slog.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if interval := a.cfg.WorkspaceSweepInterval(); interval > 0 {
		g.Go(func() error {
			a.registry.Run(gctx, interval)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		if ctx.Err() != nil {
			a.logger.Info("shutdown signal received")
		}
		return a.Shutdown()
	})

	return g.Wait()
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	// Graceful HTTP server shutdown with a 10-second deadline.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
	}

	// Stop countdowns and discard in-flight gateway answers.
	a.registry.Close()

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		}
	}

	a.closeStore()

	if err := a.tracerShutdown(shutdownCtx); err != nil {
		a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
	}

	a.logger.Info("application shutdown complete")
	return nil
}
