package config

import (
	"fmt"
	"time"

	pkgconfig "github.com/utafrali/urlrewrite/pkg/config"
	"github.com/utafrali/urlrewrite/pkg/database"
	"github.com/utafrali/urlrewrite/pkg/logger"
	"github.com/utafrali/urlrewrite/pkg/tracing"
)

// DotenvFile is read before the environment when present.
const DotenvFile = ".env"

// Config holds all configuration for the urlrewrite tool.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT" envDefault:"json"`

	// PostgreSQL
	PostgresHost          string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort          int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser          string `env:"POSTGRES_USER" envDefault:"ecommerce"`
	PostgresPass          string `env:"POSTGRES_PASSWORD" envDefault:"ecommerce_secret"`
	PostgresDB            string `env:"CATALOG_DB_NAME" envDefault:"catalog"`
	PostgresSSL           string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
	DBMaxConns            int32  `env:"DB_MAX_CONNS" envDefault:"4"`
	DBMinConns            int32  `env:"DB_MIN_CONNS" envDefault:"1"`
	DBMaxConnLifetimeMins int    `env:"DB_MAX_CONN_LIFETIME_MINS" envDefault:"60"`
	DBMaxConnIdleTimeMins int    `env:"DB_MAX_CONN_IDLE_TIME_MINS" envDefault:"30"`
	SlowQueryThresholdMs  int    `env:"SLOW_QUERY_THRESHOLD_MS" envDefault:"200"`
	RunMigrations         bool   `env:"URLREWRITE_AUTO_MIGRATE" envDefault:"false"`

	// Advisory lock serializing regeneration runs.
	LockKey int64 `env:"URLREWRITE_LOCK_KEY" envDefault:"7331001"`

	// Kafka. No brokers disables the reindex event.
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`

	// Redis storefront cache. An empty host disables cache invalidation.
	RedisHost          string   `env:"REDIS_HOST"`
	RedisPort          int      `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword      string   `env:"REDIS_PASSWORD"`
	RedisDB            int      `env:"REDIS_CACHE_DB" envDefault:"0"`
	CacheCleanPatterns []string `env:"CACHE_CLEAN_PATTERNS" envDefault:"page:*,block:*,url_rewrite:*" envSeparator:","`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// Prometheus Pushgateway. Empty disables the push.
	PushgatewayURL string `env:"PUSHGATEWAY_URL"`
}

// Load reads configuration from the environment and an optional .env file.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg, DotenvFile); err != nil {
		return nil, fmt.Errorf("load urlrewrite config: %w", err)
	}
	return cfg, nil
}

// Validate checks the values env parsing cannot.
func (c *Config) Validate() error {
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("invalid postgres port: %d", c.PostgresPort)
	}
	if c.DBMaxConns < 2 {
		return fmt.Errorf("DB_MAX_CONNS must be at least 2, got %d", c.DBMaxConns)
	}
	if c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS must be between 0 and %d, got %d", c.DBMaxConns, c.DBMinConns)
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0 and 1, got %v", c.OTELSampleRate)
	}
	if c.LogFormat != logger.FormatJSON && c.LogFormat != logger.FormatText {
		return fmt.Errorf("LOG_FORMAT must be %q or %q, got %q", logger.FormatJSON, logger.FormatText, c.LogFormat)
	}
	if c.RedisHost != "" && (c.RedisPort < 1 || c.RedisPort > 65535) {
		return fmt.Errorf("invalid redis port: %d", c.RedisPort)
	}
	return nil
}

// Postgres returns the pool configuration.
func (c *Config) Postgres() database.PostgresConfig {
	return database.PostgresConfig{
		Host:            c.PostgresHost,
		Port:            c.PostgresPort,
		User:            c.PostgresUser,
		Password:        c.PostgresPass,
		DBName:          c.PostgresDB,
		SSLMode:         c.PostgresSSL,
		MaxConns:        c.DBMaxConns,
		MinConns:        c.DBMinConns,
		MaxConnLifetime: time.Duration(c.DBMaxConnLifetimeMins) * time.Minute,
		MaxConnIdleTime: time.Duration(c.DBMaxConnIdleTimeMins) * time.Minute,
	}
}

// Redis returns the cache connection configuration.
func (c *Config) Redis() database.RedisConfig {
	cfg := database.DefaultRedisConfig()
	cfg.Host = c.RedisHost
	cfg.Port = c.RedisPort
	cfg.Password = c.RedisPassword
	cfg.DB = c.RedisDB
	return cfg
}

// Tracing returns the tracer configuration.
func (c *Config) Tracing(version string) tracing.Config {
	return tracing.Config{
		ServiceName:    "urlrewrite",
		ServiceVersion: version,
		Environment:    c.Environment,
		OTLPEndpoint:   c.OTELEndpoint,
		SampleRate:     c.OTELSampleRate,
		Enabled:        c.OTELEnabled,
	}
}

// CacheEnabled reports whether a Redis cache is configured.
func (c *Config) CacheEnabled() bool {
	return c.RedisHost != ""
}

// KafkaEnabled reports whether reindex events are published.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}
