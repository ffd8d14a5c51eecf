package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDevelopmentDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "SusuBank", cfg.AppName)
	assert.Equal(t, ":9090", cfg.Address())
	assert.Equal(t, 15*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
	assert.NotEmpty(t, cfg.JWTSecret)
	assert.NotEqual(t, cfg.JWTSecret, cfg.RefreshSecret)
	assert.True(t, cfg.AutoMigrate)
}

func TestLoadProductionRequiresInfrastructure(t *testing.T) {
	t.Setenv("APP_ENV", "production")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
	assert.Contains(t, err.Error(), "REDIS_URL")
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestLoadProduction(t *testing.T) {
	t.Setenv("APP_ENV", "Production")
	t.Setenv("DATABASE_URL", "postgres://susu:susu@db:5432/susu?sslmode=disable")
	t.Setenv("REDIS_URL", "redis://cache:6379/0")
	t.Setenv("JWT_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("JWT_REFRESH_SECRET", "fedcba9876543210fedcba9876543210")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "production", cfg.AppEnv)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 30*time.Second, cfg.ShutdownPeriod)
	assert.False(t, cfg.IsDevelopment())
}

func TestLoadRejectsMalformedDurations(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("IDEMPOTENCY_TTL", "soon")

	_, err := Load()
	assert.Error(t, err)
}

func TestValidateAdminPair(t *testing.T) {
	cfg := Config{
		AppEnv:          envDevelopment,
		JWTSecret:       devJWTSecret,
		RefreshSecret:   devRefreshSecret,
		AccessTokenTTL:  time.Minute,
		RefreshTokenTTL: time.Hour,
		AdminEmail:      "admin@example.com",
	}
	assert.Error(t, cfg.Validate())

	cfg.AdminPassword = "bootstrap-pass"
	assert.NoError(t, cfg.Validate())
}
