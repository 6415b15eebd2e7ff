package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, key := range []string{"QUALTRACK_ADDR", "DATABASE_URL", "REDIS_URL", "KAFKA_BROKERS", "EXPIRY_WINDOW_DAYS", "CATALOG_CACHE_TTL"} {
		t.Setenv(key, "")
	}
	cfg := FromEnv()

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, 30, cfg.ExpiryWindowDays)
	assert.Equal(t, 5*time.Minute, cfg.CatalogCacheTTL)
	assert.True(t, cfg.IsDevelopment())
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("QUALTRACK_ADDR", ":9090")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("EXPIRY_WINDOW_DAYS", "60")
	t.Setenv("CATALOG_CACHE_TTL", "90s")
	t.Setenv("RATE_LIMIT_PER_SECOND", "2.5")
	t.Setenv("RATE_LIMIT_BURST", "not-a-number")
	t.Setenv("MINIO_USE_SSL", "true")

	cfg := FromEnv()

	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 60, cfg.ExpiryWindowDays)
	assert.Equal(t, 90*time.Second, cfg.CatalogCacheTTL)
	assert.Equal(t, 2.5, cfg.RateLimit.PerSecond)
	assert.Equal(t, 20, cfg.RateLimit.Burst)
	assert.True(t, cfg.MinIO.UseSSL)
}
