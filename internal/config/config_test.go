package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "dancemvp-booking", cfg.App.Name)
	assert.Equal(t, "development", cfg.App.Environment)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "dancemvp", cfg.Database.DBName)
	assert.False(t, cfg.Kafka.Enabled)
	assert.Equal(t, "booking-events", cfg.Kafka.Topic)
	assert.Equal(t, 30*time.Minute, cfg.Booking.SessionTTL)
	assert.Equal(t, time.Minute, cfg.Booking.ReaperScanInterval)
	assert.Equal(t, "USD", cfg.Booking.DefaultCurrency)
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "broker-1:9092,broker-2:9092")
	t.Setenv("BOOKING_SESSION_TTL", "15m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.True(t, cfg.Kafka.Enabled)
	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 15*time.Minute, cfg.Booking.SessionTTL)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load()
		require.NoError(t, err)
		return cfg
	}

	t.Run("bad port", func(t *testing.T) {
		cfg := base()
		cfg.Server.Port = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("missing jwt secret", func(t *testing.T) {
		cfg := base()
		cfg.JWT.Secret = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("non-positive session ttl", func(t *testing.T) {
		cfg := base()
		cfg.Booking.SessionTTL = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("production requires stripe keys and a real secret", func(t *testing.T) {
		cfg := base()
		cfg.App.Environment = "production"
		assert.Error(t, cfg.Validate())

		cfg.JWT.Secret = "a-real-secret"
		assert.Error(t, cfg.Validate())

		cfg.Stripe.SecretKey = "sk_test_123"
		cfg.Stripe.WebhookSecret = "whsec_123"
		assert.NoError(t, cfg.Validate())
	})
}

func TestDSNAndAddr(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Contains(t, cfg.Database.DSN(), "host=localhost")
	assert.Contains(t, cfg.Database.DSN(), "dbname=dancemvp")
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr())
}
