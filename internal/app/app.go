package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/utafrali/urlrewrite/internal/cache"
	"github.com/utafrali/urlrewrite/internal/config"
	"github.com/utafrali/urlrewrite/internal/domain"
	"github.com/utafrali/urlrewrite/internal/event"
	"github.com/utafrali/urlrewrite/internal/generator"
	"github.com/utafrali/urlrewrite/internal/metrics"
	"github.com/utafrali/urlrewrite/internal/repository/postgres"
	"github.com/utafrali/urlrewrite/internal/service"
	"github.com/utafrali/urlrewrite/migrations"
	"github.com/utafrali/urlrewrite/pkg/database"
	pkgkafka "github.com/utafrali/urlrewrite/pkg/kafka"
	"github.com/utafrali/urlrewrite/pkg/tracing"
)

// Version is reported to the tracer and on the command line.
const Version = "0.1.0"

// App wires together all dependencies of the urlrewrite tool.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	producer       *pkgkafka.Producer
	redis          *redis.Client
	metrics        *metrics.RunMetrics
	regenerator    *service.Regenerator
	tracerShutdown func(context.Context) error
}

// NewApp connects to PostgreSQL and the optional Kafka and Redis backends and
// builds the regeneration graph. Progress bars are drawn on progressOut.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, progressOut *os.File) (*App, error) {
	initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(initCtx, cfg.Tracing(Version))
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	a := &App{
		cfg:            cfg,
		logger:         logger,
		metrics:        metrics.New(),
		tracerShutdown: tracerShutdown,
	}

	// Initialize PostgreSQL connection pool.
	pgCfg := cfg.Postgres()
	a.pool, err = database.NewPostgresPool(initCtx, &pgCfg, logger)
	if err != nil {
		_ = a.Shutdown()
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)
	if err := database.RegisterPoolMetrics(a.metrics.Registry, a.pool, metrics.JobName); err != nil {
		_ = a.Shutdown()
		return nil, fmt.Errorf("register pool metrics: %w", err)
	}

	if cfg.SlowQueryThresholdMs > 0 {
		database.SetSlowQueryLogging(time.Duration(cfg.SlowQueryThresholdMs)*time.Millisecond, logger)
	}

	if cfg.RunMigrations {
		if _, err := a.Migrate(initCtx); err != nil {
			_ = a.Shutdown()
			return nil, err
		}
	}

	// Post-run hooks.
	var reindexer service.Reindexer = event.NoopReindexer{Logger: logger}
	if cfg.KafkaEnabled() {
		a.producer = pkgkafka.NewProducer(
			pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers),
			pkgkafka.NewProducerMetrics(a.metrics.Registry),
			logger,
		)
		reindexer = event.NewProducer(a.producer, logger)
		if err := a.producer.Ping(initCtx); err != nil {
			// Publishing retries at the end of the run; a failure there is
			// reported with the other diagnostics.
			logger.Warn("kafka brokers unreachable", slog.String("error", err.Error()))
		}
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}

	var invalidator service.CacheInvalidator = cache.Noop{}
	if cfg.CacheEnabled() {
		a.redis, err = database.NewRedisClient(initCtx, cfg.Redis())
		if err != nil {
			// The cache hooks never fail a run, so neither does a cache that
			// is down before it starts.
			logger.Warn("storefront cache unavailable, invalidation disabled",
				slog.String("addr", cfg.Redis().Addr()),
				slog.String("error", err.Error()),
			)
		} else {
			invalidator = cache.NewInvalidator(a.redis, cfg.CacheCleanPatterns, logger)
			logger.Info("connected to Redis", slog.String("addr", cfg.Redis().Addr()))
		}
	}

	// Build the dependency graph.
	categoryRepo := postgres.NewCategoryRepository(a.pool)
	productRepo := postgres.NewProductRepository(a.pool)
	storeRepo := postgres.NewStoreRepository(a.pool)
	rewriteRepo := postgres.NewRewriteRepository(a.pool)

	var progress service.Progress = service.NoProgress
	if progressOut != nil {
		progress = service.NewProgressBar(progressOut)
	}

	pathCache := generator.NewCache()
	products := service.NewProductRegenerator(productRepo, storeRepo, rewriteRepo,
		generator.NewProductGenerator(storeRepo), pathCache, progress, logger)
	categories := service.NewCategoryRegenerator(categoryRepo, storeRepo, rewriteRepo,
		generator.NewCategoryGenerator(categoryRepo, storeRepo), products, pathCache, progress, logger)

	a.regenerator = service.NewRegenerator(storeRepo, rewriteRepo, categories, products, logger,
		service.WithLocker(database.NewAdvisoryLock(a.pool, cfg.LockKey)),
		service.WithReindexer(reindexer),
		service.WithCacheInvalidator(invalidator),
	)
	return a, nil
}

// Migrate applies the embedded schema migrations.
func (a *App) Migrate(ctx context.Context) ([]string, error) {
	applied, err := database.RunMigrations(ctx, a.pool, migrations.FS, a.logger)
	if err != nil {
		return applied, fmt.Errorf("run migrations: %w", err)
	}
	a.logger.Info("database migrations completed", slog.Int("applied", len(applied)))
	return applied, nil
}

// Regenerate runs one regeneration and pushes its metrics when a Pushgateway
// is configured. A failed push is logged only.
func (a *App) Regenerate(ctx context.Context, opts domain.RegenerationOptions) (*domain.RunReport, error) {
	report, err := a.regenerator.Run(ctx, opts)
	a.metrics.Observe(report, err)

	if a.cfg.PushgatewayURL != "" {
		pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		host, _ := os.Hostname()
		if pushErr := a.metrics.Push(pushCtx, a.cfg.PushgatewayURL, host); pushErr != nil {
			a.logger.Warn("failed to push run metrics", slog.String("error", pushErr.Error()))
		}
	}
	return report, err
}

// Shutdown releases all components in reverse order of creation:
// 1. Redis client
// 2. Kafka producer
// 3. PostgreSQL pool
// 4. Tracer (flush pending spans)
func (a *App) Shutdown() error {
	var errs []error

	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.pool != nil {
		a.pool.Close()
	}

	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
