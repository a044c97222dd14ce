// Package config loads service configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the top-level service configuration.
type Config struct {
	// HTTPPort is the listen port for the ingest/read API.
	HTTPPort string

	// RunAPI / RunWorker select the process roles. Both default to true so a
	// single replica runs the whole pipeline; production splits them.
	RunAPI    bool
	RunWorker bool

	Worker WorkerConfig
}

// WorkerConfig contains projection worker configuration.
type WorkerConfig struct {
	// PollInterval is how long a worker sleeps after an empty claim.
	PollInterval time.Duration

	// BatchSize bounds how many queue entries one claim returns.
	BatchSize int

	// UseBatchProcessor selects the group-locking dispatcher. When false the
	// per-event-transaction fallback runs instead (compatibility/debugging).
	UseBatchProcessor bool

	// WorkerCount is the number of worker goroutines per replica.
	WorkerCount int
}

// DefaultWorkerConfig returns the built-in worker defaults.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		PollInterval:      2 * time.Second,
		BatchSize:         100,
		UseBatchProcessor: true,
		WorkerCount:       1,
	}
}

// Load reads configuration from the environment, applying defaults and
// validating ranges.
func Load() (*Config, error) {
	worker, err := LoadWorkerConfigFromEnv()
	if err != nil {
		return nil, err
	}

	return &Config{
		HTTPPort:  getEnvOrDefault("HTTP_PORT", "8080"),
		RunAPI:    getEnvBool("RUN_API", true),
		RunWorker: getEnvBool("RUN_WORKER", true),
		Worker:    worker,
	}, nil
}

// LoadWorkerConfigFromEnv loads the worker knobs from the environment.
func LoadWorkerConfigFromEnv() (WorkerConfig, error) {
	cfg := DefaultWorkerConfig()

	if v := os.Getenv("WORKER_POLL_INTERVAL_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms <= 0 {
			return cfg, fmt.Errorf("invalid WORKER_POLL_INTERVAL_MS %q", v)
		}
		cfg.PollInterval = time.Duration(ms) * time.Millisecond
	}

	if v := os.Getenv("WORKER_BATCH_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return cfg, fmt.Errorf("invalid WORKER_BATCH_SIZE %q", v)
		}
		cfg.BatchSize = n
	}

	cfg.UseBatchProcessor = getEnvBool("WORKER_USE_BATCH_PROCESSOR", true)

	if v := os.Getenv("WORKER_COUNT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return cfg, fmt.Errorf("invalid WORKER_COUNT %q", v)
		}
		cfg.WorkerCount = n
	}

	return cfg, nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}
