package infra

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := LoadConfig()
		require.NoError(t, err)
		assert.Equal(t, "postgres", cfg.StoreDriver)
		assert.Equal(t, 3200, cfg.APIPort)
		assert.Equal(t, "12h", cfg.JWTPartnerExpiry)
		assert.Equal(t, 10.0, cfg.PartnerRateLimit)
		assert.Equal(t, 16, cfg.PGMaxConns)
		assert.Equal(t, 2, cfg.PGMinConns)
		assert.False(t, cfg.KafkaEnabled)
	})

	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv("STORE_DRIVER", "memory")
		t.Setenv("API_PORT", "8080")
		t.Setenv("PARTNER_RATE_LIMIT", "2.5")
		t.Setenv("PG_MAX_CONNS", "4")

		cfg, err := LoadConfig()
		require.NoError(t, err)
		assert.Equal(t, "memory", cfg.StoreDriver)
		assert.Equal(t, 8080, cfg.APIPort)
		assert.Equal(t, 2.5, cfg.PartnerRateLimit)
		assert.Equal(t, 4, cfg.PGMaxConns)
	})
}

func TestConfigValidate(t *testing.T) {
	strong := "a-strong-secret-with-enough-entropy!"

	t.Run("default secret rejected", func(t *testing.T) {
		cfg := &Config{StoreDriver: "postgres", JWTSecret: "change-me-in-production"}
		require.Error(t, cfg.Validate())
	})

	t.Run("short secret rejected", func(t *testing.T) {
		cfg := &Config{StoreDriver: "postgres", JWTSecret: "short"}
		require.Error(t, cfg.Validate())
	})

	t.Run("insecure defaults allowed when opted in", func(t *testing.T) {
		cfg := &Config{StoreDriver: "memory", JWTSecret: "change-me-in-production", AllowInsecureDefaults: true}
		require.NoError(t, cfg.Validate())
	})

	t.Run("unknown store driver rejected", func(t *testing.T) {
		cfg := &Config{StoreDriver: "redis", JWTSecret: strong}
		require.Error(t, cfg.Validate())
	})

	t.Run("strong secret accepted", func(t *testing.T) {
		cfg := &Config{StoreDriver: "postgres", JWTSecret: strong}
		require.NoError(t, cfg.Validate())
	})
}

func TestConfigDSN(t *testing.T) {
	t.Run("explicit url wins", func(t *testing.T) {
		cfg := &Config{DatabaseURL: "postgres://u:p@db:5432/x"}
		assert.Equal(t, "postgres://u:p@db:5432/x", cfg.DSN())
	})

	t.Run("assembled from parts", func(t *testing.T) {
		cfg := &Config{PGHost: "db", PGPort: 5433, PGUser: "u", PGPassword: "p", PGDatabase: "loyalty"}
		assert.Equal(t, "postgres://u:p@db:5433/loyalty?sslmode=disable", cfg.DSN())
	})
}
