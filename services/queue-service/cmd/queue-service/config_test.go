package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("KAFKA_BROKERS", " a:9092, b:9092,")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.example.com")

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 10*time.Second, cfg.LockTTL)
	assert.Equal(t, 3, cfg.Redis.RetryAttempts)
	assert.False(t, cfg.OTel.Enabled)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.CORS.AllowedOrigins)
}

func TestLoadConfig_Rejects(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("JWKS_URL", "")
	_, err := loadConfig()
	assert.ErrorIs(t, err, errNoAuth)

	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("PORT", "99999")
	_, err = loadConfig()
	assert.Error(t, err)
}

func TestLoadConfig_NoBrokers(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("KAFKA_BROKERS", " , ")
	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Empty(t, cfg.KafkaBrokers)
}
