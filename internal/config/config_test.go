package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "")
	t.Setenv("SETTLEMENT_TTL", "")
	t.Setenv("WEEK_STARTS_ON", "")
	t.Setenv("SWEEP_INTERVAL", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "")

	cfg := LoadConfig()

	assert.Equal(t, "development", cfg.Environment)
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())
	assert.Equal(t, 2*time.Hour, cfg.Settlement.TransactionTTL)
	assert.Equal(t, "0.10", cfg.Settlement.PlatformFeeRate)
	assert.Equal(t, "10.00", cfg.Settlement.PlatformFeeCap)
	assert.Equal(t, time.Sunday, cfg.Settlement.WeekStartsOn)
	assert.Equal(t, 5, cfg.Settlement.MaxCodeAttempts)
	assert.Zero(t, cfg.Settlement.SweepInterval)
	assert.Equal(t, []string{"https://*"}, cfg.Server.CORSOrigins)
	assert.Same(t, cfg, Get())
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("SERVER_HOST", "127.0.0.1")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("WEEK_STARTS_ON", "Monday")
	t.Setenv("SETTLEMENT_TIMEZONE", "Not/AZone")
	t.Setenv("REDIS_ENABLED", "false")
	t.Setenv("INTERNAL_API_TOKEN", " s3cret ")

	cfg := LoadConfig()

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "127.0.0.1:9090", cfg.GetServerAddress())
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, time.Monday, cfg.Settlement.WeekStartsOn)
	assert.Equal(t, time.UTC, cfg.Settlement.Location())
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, "s3cret", cfg.Server.InternalToken)
}
