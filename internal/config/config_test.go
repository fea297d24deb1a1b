package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")
	t.Setenv("MANAGER_PIN", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.AuthSecret)
	assert.Empty(t, cfg.ManagerPIN)
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DEFAULT_SHOP_ID", "cabang-2")
	t.Setenv("SHOP_TIMEZONE", "UTC")
	t.Setenv("STATS_CACHE_TTL_SECONDS", "5")
	t.Setenv("AUTH_SECRET", "  0123456789abcdef0123456789abcdef  ")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Address())
	assert.Equal(t, "cabang-2", cfg.ShopID)
	assert.Equal(t, 5*time.Second, cfg.StatsCacheTTL())
	assert.Equal(t, "0123456789abcdef0123456789abcdef", cfg.AuthSecret)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "0")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "main-shop", cfg.ShopID)
	assert.Equal(t, 480*time.Minute, cfg.AccessTokenTTL())
	assert.False(t, cfg.IsProduction())
}

func TestLocationRejectsUnknownZone(t *testing.T) {
	_, err := Config{ShopTimezone: "Mars/Olympus"}.Location()
	assert.Error(t, err)
}
