package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tallyhq/tally/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Storage configuration (Postgres ledger + Redis realtime cache)
	Storage StorageConfig

	// Metering configuration
	Metering MeteringConfig

	// Budget alerting configuration
	Alerting AlertingConfig

	// Efficiency scoring weights
	Scoring ScoringConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// StorageConfig holds durable-store and cache configuration
type StorageConfig struct {
	PostgresURL      string
	PostgresMaxConns int
	PostgresTimeout  time.Duration

	RedisURL        string
	RedisPassword   string
	RedisDB         int
	RedisMaxRetries int
	RedisPoolSize   int
}

// MeteringConfig holds cost-meter tunables
type MeteringConfig struct {
	// PriceTablePath points at the static YAML price table loaded at start
	PriceTablePath string

	// BufferFlushSize is the buffer depth that trips an eager flush
	BufferFlushSize int

	// FlushInterval is the timer-driven safety-net flush period
	FlushInterval time.Duration

	// AggregateTTL is the realtime aggregate / alert-mark expiry
	AggregateTTL time.Duration
}

// AlertingConfig holds budget-alert delivery configuration
type AlertingConfig struct {
	// WebhookURL receives budget alerts as JSON POSTs; empty means
	// log-only delivery
	WebhookURL string

	// WebhookSecret signs webhook payloads (HMAC-SHA256)
	WebhookSecret string

	// WebhookTimeout bounds a single delivery attempt
	WebhookTimeout time.Duration

	// WebhookRetries is the number of re-delivery attempts
	WebhookRetries int
}

// ScoringConfig holds the efficiency score weights. Deployments weight
// spend and reuse differently, so these are tunable rather than fixed.
type ScoringConfig struct {
	// CostPenaltyPerCent subtracts this many score points per cent of
	// average operation cost
	CostPenaltyPerCent float64

	// HitRateBonus adds up to this many score points at a 100% dedup
	// hit rate
	HitRateBonus float64
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel observability.LogLevel

	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Storage:       loadStorageConfig(),
		Metering:      loadMeteringConfig(),
		Alerting:      loadAlertingConfig(),
		Scoring:       loadScoringConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("TALLY_HOST", "0.0.0.0"),
		Port:            getEnv("TALLY_PORT", "8080"),
		ReadTimeout:     getEnvDuration("TALLY_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("TALLY_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("TALLY_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("TALLY_SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

func loadStorageConfig() StorageConfig {
	return StorageConfig{
		PostgresURL:      getEnv("TALLY_POSTGRES_URL", "postgres://localhost/tally?sslmode=disable"),
		PostgresMaxConns: getEnvInt("TALLY_POSTGRES_MAX_CONNS", 20),
		PostgresTimeout:  getEnvDuration("TALLY_POSTGRES_TIMEOUT", 5*time.Second),
		RedisURL:         getEnv("TALLY_REDIS_URL", "redis://localhost:6379"),
		RedisPassword:    getEnv("TALLY_REDIS_PASSWORD", ""),
		RedisDB:          getEnvInt("TALLY_REDIS_DB", 0),
		RedisMaxRetries:  getEnvInt("TALLY_REDIS_MAX_RETRIES", 3),
		RedisPoolSize:    getEnvInt("TALLY_REDIS_POOL_SIZE", 10),
	}
}

func loadMeteringConfig() MeteringConfig {
	return MeteringConfig{
		PriceTablePath:  getEnv("TALLY_PRICE_TABLE", "prices.yaml"),
		BufferFlushSize: getEnvInt("TALLY_BUFFER_FLUSH_SIZE", 100),
		FlushInterval:   getEnvDuration("TALLY_FLUSH_INTERVAL", 60*time.Second),
		AggregateTTL:    getEnvDuration("TALLY_AGGREGATE_TTL", 24*time.Hour),
	}
}

func loadAlertingConfig() AlertingConfig {
	return AlertingConfig{
		WebhookURL:     getEnv("TALLY_ALERT_WEBHOOK_URL", ""),
		WebhookSecret:  getEnv("TALLY_ALERT_WEBHOOK_SECRET", ""),
		WebhookTimeout: getEnvDuration("TALLY_ALERT_WEBHOOK_TIMEOUT", 10*time.Second),
		WebhookRetries: getEnvInt("TALLY_ALERT_WEBHOOK_RETRIES", 3),
	}
}

func loadScoringConfig() ScoringConfig {
	return ScoringConfig{
		CostPenaltyPerCent: getEnvFloat("TALLY_SCORE_COST_PENALTY", 0.5),
		HitRateBonus:       getEnvFloat("TALLY_SCORE_HITRATE_BONUS", 20),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLogLevel(getEnv("TALLY_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("TALLY_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("TALLY_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("TALLY_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("TALLY_OTEL_SERVICE_NAME", "tally"),
		OTelServiceVersion: getEnv("TALLY_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("TALLY_OTEL_INSECURE", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	if c.Storage.PostgresURL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Storage.RedisURL == "" {
		return fmt.Errorf("redis URL is required")
	}

	if c.Metering.BufferFlushSize <= 0 {
		return fmt.Errorf("buffer flush size must be positive, got %d", c.Metering.BufferFlushSize)
	}
	if c.Metering.FlushInterval <= 0 {
		return fmt.Errorf("flush interval must be positive, got %v", c.Metering.FlushInterval)
	}
	if c.Metering.AggregateTTL <= 0 {
		return fmt.Errorf("aggregate TTL must be positive, got %v", c.Metering.AggregateTTL)
	}
	if c.Metering.PriceTablePath == "" {
		return fmt.Errorf("price table path is required")
	}

	if c.Alerting.WebhookURL != "" && c.Alerting.WebhookTimeout <= 0 {
		return fmt.Errorf("webhook timeout must be positive when webhook delivery is enabled")
	}

	if c.Scoring.CostPenaltyPerCent < 0 {
		return fmt.Errorf("score cost penalty must not be negative, got %v", c.Scoring.CostPenaltyPerCent)
	}
	if c.Scoring.HitRateBonus < 0 {
		return fmt.Errorf("score hit-rate bonus must not be negative, got %v", c.Scoring.HitRateBonus)
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
