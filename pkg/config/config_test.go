package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallyhq/tally/pkg/observability"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 100, cfg.Metering.BufferFlushSize)
	assert.Equal(t, 60*time.Second, cfg.Metering.FlushInterval)
	assert.Equal(t, 24*time.Hour, cfg.Metering.AggregateTTL)
	assert.Equal(t, 0.5, cfg.Scoring.CostPenaltyPerCent)
	assert.Equal(t, 20.0, cfg.Scoring.HitRateBonus)
	assert.Equal(t, observability.InfoLevel, cfg.Observability.LogLevel)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("TALLY_PORT", "9999")
	t.Setenv("TALLY_BUFFER_FLUSH_SIZE", "250")
	t.Setenv("TALLY_FLUSH_INTERVAL", "30s")
	t.Setenv("TALLY_LOG_LEVEL", "debug")
	t.Setenv("TALLY_OTEL_ENABLED", "true")
	t.Setenv("TALLY_SCORE_COST_PENALTY", "1.25")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "9999", cfg.Server.Port)
	assert.Equal(t, 250, cfg.Metering.BufferFlushSize)
	assert.Equal(t, 30*time.Second, cfg.Metering.FlushInterval)
	assert.Equal(t, observability.DebugLevel, cfg.Observability.LogLevel)
	assert.Equal(t, 1.25, cfg.Scoring.CostPenaltyPerCent)
	assert.True(t, cfg.Observability.OTelEnabled)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty port", func(c *Config) { c.Server.Port = "" }},
		{"empty postgres URL", func(c *Config) { c.Storage.PostgresURL = "" }},
		{"empty redis URL", func(c *Config) { c.Storage.RedisURL = "" }},
		{"zero flush size", func(c *Config) { c.Metering.BufferFlushSize = 0 }},
		{"negative flush interval", func(c *Config) { c.Metering.FlushInterval = -time.Second }},
		{"empty price table", func(c *Config) { c.Metering.PriceTablePath = "" }},
		{"negative score penalty", func(c *Config) { c.Scoring.CostPenaltyPerCent = -1 }},
		{"otel enabled without endpoint", func(c *Config) {
			c.Observability.OTelEnabled = true
			c.Observability.OTelEndpoint = ""
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadConfig()
			require.NoError(t, err)

			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TALLY_TEST_BOOL", "1")
	t.Setenv("TALLY_TEST_INT", "not-a-number")

	assert.True(t, getEnvBool("TALLY_TEST_BOOL", false))
	assert.Equal(t, 7, getEnvInt("TALLY_TEST_INT", 7))
	assert.Equal(t, time.Minute, getEnvDuration("TALLY_TEST_MISSING", time.Minute))
}
