package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWorkerConfigFromEnv(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := LoadWorkerConfigFromEnv()
		require.NoError(t, err)
		assert.Equal(t, 2*time.Second, cfg.PollInterval)
		assert.Equal(t, 100, cfg.BatchSize)
		assert.True(t, cfg.UseBatchProcessor)
		assert.Equal(t, 1, cfg.WorkerCount)
	})

	t.Run("reads env overrides", func(t *testing.T) {
		t.Setenv("WORKER_POLL_INTERVAL_MS", "500")
		t.Setenv("WORKER_BATCH_SIZE", "25")
		t.Setenv("WORKER_USE_BATCH_PROCESSOR", "false")
		t.Setenv("WORKER_COUNT", "4")

		cfg, err := LoadWorkerConfigFromEnv()
		require.NoError(t, err)
		assert.Equal(t, 500*time.Millisecond, cfg.PollInterval)
		assert.Equal(t, 25, cfg.BatchSize)
		assert.False(t, cfg.UseBatchProcessor)
		assert.Equal(t, 4, cfg.WorkerCount)
	})

	t.Run("rejects invalid values", func(t *testing.T) {
		t.Setenv("WORKER_POLL_INTERVAL_MS", "zero")
		_, err := LoadWorkerConfigFromEnv()
		assert.Error(t, err)
	})

	t.Run("rejects non-positive batch size", func(t *testing.T) {
		t.Setenv("WORKER_BATCH_SIZE", "0")
		_, err := LoadWorkerConfigFromEnv()
		assert.Error(t, err)
	})
}

func TestLoad(t *testing.T) {
	t.Run("defaults to running both roles", func(t *testing.T) {
		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "8080", cfg.HTTPPort)
		assert.True(t, cfg.RunAPI)
		assert.True(t, cfg.RunWorker)
	})

	t.Run("roles can be split", func(t *testing.T) {
		t.Setenv("RUN_API", "false")
		t.Setenv("HTTP_PORT", "9999")
		cfg, err := Load()
		require.NoError(t, err)
		assert.False(t, cfg.RunAPI)
		assert.True(t, cfg.RunWorker)
		assert.Equal(t, "9999", cfg.HTTPPort)
	})
}
