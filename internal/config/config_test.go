package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsGenerateSecretInDevelopment(t *testing.T) {
	t.Setenv("CIVREG_ENV", "development")
	t.Setenv("CIVREG_JWT_SECRET", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, ":9090", cfg.GRPCAddr)
	assert.Equal(t, "CivicRegistryAPI", cfg.JWTIssuer)
	assert.Equal(t, "CivicRegistryClient", cfg.JWTAudience)
	assert.Equal(t, 1440*time.Minute, cfg.TokenTTL())
	assert.Equal(t, 7*24*time.Hour, cfg.RefreshWindow())
	assert.True(t, cfg.SecretGenerated)
	assert.Len(t, cfg.JWTSecret, 64)

	again, err := Load()
	require.NoError(t, err)
	assert.NotEqual(t, cfg.JWTSecret, again.JWTSecret)
}

func TestLoadRequiresSecretOutsideDevelopment(t *testing.T) {
	t.Setenv("CIVREG_ENV", "production")
	t.Setenv("CIVREG_JWT_SECRET", "")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("CIVREG_JWT_SECRET", "prod-secret")
	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.SecretGenerated)
	assert.Equal(t, "prod-secret", cfg.JWTSecret)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CIVREG_ENV", "staging")
	t.Setenv("CIVREG_JWT_SECRET", "s")
	t.Setenv("CIVREG_JWT_TTL_MINUTES", "30")
	t.Setenv("CIVREG_PG_DSN", "postgres://x")
	t.Setenv("CIVREG_REDIS_ADDR", "localhost:6379")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, cfg.TokenTTL())
	assert.Equal(t, "postgres://x", cfg.PGDSN)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.False(t, cfg.IsDevelopment())
}

func TestLoadRejectsBadTTL(t *testing.T) {
	t.Setenv("CIVREG_JWT_SECRET", "s")
	t.Setenv("CIVREG_JWT_TTL_MINUTES", "0")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("CIVREG_JWT_TTL_MINUTES", "60")
	t.Setenv("CIVREG_JWT_REFRESH_WINDOW_MINUTES", "-1")
	_, err = Load()
	assert.Error(t, err)
	t.Setenv("CIVREG_JWT_REFRESH_WINDOW_MINUTES", "0")

	t.Setenv("CIVREG_JWT_TTL_MINUTES", "abc")
	_, err = Load()
	assert.Error(t, err)
}
