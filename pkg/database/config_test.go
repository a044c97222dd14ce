package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromEnv(t *testing.T) {
	t.Run("defaults with password", func(t *testing.T) {
		t.Setenv("DB_PASSWORD", "secret")
		cfg, err := LoadConfigFromEnv()
		require.NoError(t, err)
		assert.Equal(t, "localhost", cfg.Host)
		assert.Equal(t, 5432, cfg.Port)
		assert.Equal(t, int32(25), cfg.MaxConns)
		assert.Equal(t, int32(5), cfg.MinConns)
		assert.Equal(t, time.Hour, cfg.MaxConnLifetime)
	})

	t.Run("DATABASE_URL wins and waives DB_PASSWORD", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://u:p@db.internal:6432/telemetry")
		cfg, err := LoadConfigFromEnv()
		require.NoError(t, err)
		assert.Equal(t, "postgres://u:p@db.internal:6432/telemetry", cfg.ConnString())
	})

	t.Run("missing password is an error", func(t *testing.T) {
		_, err := LoadConfigFromEnv()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "DB_PASSWORD")
	})

	t.Run("collects every invalid variable", func(t *testing.T) {
		t.Setenv("DB_PASSWORD", "secret")
		t.Setenv("DB_PORT", "not-a-port")
		t.Setenv("DB_CONN_MAX_LIFETIME", "soon")
		_, err := LoadConfigFromEnv()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "DB_PORT")
		assert.Contains(t, err.Error(), "DB_CONN_MAX_LIFETIME")
	})

	t.Run("rejects min above max", func(t *testing.T) {
		t.Setenv("DB_PASSWORD", "secret")
		t.Setenv("DB_MAX_CONNS", "4")
		t.Setenv("DB_MIN_CONNS", "9")
		_, err := LoadConfigFromEnv()
		assert.Error(t, err)
	})
}

func TestPoolConfig(t *testing.T) {
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("DB_MAX_CONNS", "12")
	t.Setenv("DB_MIN_CONNS", "3")
	cfg, err := LoadConfigFromEnv()
	require.NoError(t, err)

	poolCfg, err := cfg.PoolConfig()
	require.NoError(t, err)
	assert.Equal(t, int32(12), poolCfg.MaxConns)
	assert.Equal(t, int32(3), poolCfg.MinConns)
	assert.Equal(t, "agentlytics", poolCfg.ConnConfig.Database)
}
