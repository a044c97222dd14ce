package database

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Config carries the connection settings the service tunes on its pgx pool.
// Either URL is set (and wins outright), or the discrete fields are composed
// into a keyword/value connection string.
type Config struct {
	// URL is a full connection string (DATABASE_URL). When set, the discrete
	// host/user fields below are ignored.
	URL string

	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	// Pool sizing, applied onto pgxpool.Config.
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// LoadConfigFromEnv assembles the configuration from DATABASE_URL / DB_*
// variables over production defaults, and reports every problem at once.
func LoadConfigFromEnv() (Config, error) {
	cfg := Config{
		URL:             os.Getenv("DATABASE_URL"),
		Host:            envOr("DB_HOST", "localhost"),
		Port:            5432,
		User:            envOr("DB_USER", "agentlytics"),
		Password:        os.Getenv("DB_PASSWORD"),
		Database:        envOr("DB_NAME", "agentlytics"),
		SSLMode:         envOr("DB_SSLMODE", "disable"),
		MaxConns:        25,
		MinConns:        5,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 15 * time.Minute,
	}

	var errs []error
	readInt := func(key string, dst *int32) {
		v := os.Getenv(key)
		if v == "" {
			return
		}
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = int32(n)
	}
	readDuration := func(key string, dst *time.Duration) {
		v := os.Getenv(key)
		if v == "" {
			return
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = d
	}

	if v := os.Getenv("DB_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("DB_PORT: %w", err))
		} else {
			cfg.Port = p
		}
	}
	readInt("DB_MAX_CONNS", &cfg.MaxConns)
	readInt("DB_MIN_CONNS", &cfg.MinConns)
	readDuration("DB_CONN_MAX_LIFETIME", &cfg.MaxConnLifetime)
	readDuration("DB_CONN_MAX_IDLE_TIME", &cfg.MaxConnIdleTime)

	if cfg.URL == "" && cfg.Password == "" {
		errs = append(errs, errors.New("DB_PASSWORD is required when DATABASE_URL is not set"))
	}
	if cfg.MaxConns < 1 {
		errs = append(errs, fmt.Errorf("DB_MAX_CONNS must be at least 1, got %d", cfg.MaxConns))
	}
	if cfg.MinConns < 0 || cfg.MinConns > cfg.MaxConns {
		errs = append(errs, fmt.Errorf("DB_MIN_CONNS must be between 0 and DB_MAX_CONNS, got %d", cfg.MinConns))
	}
	if len(errs) > 0 {
		return Config{}, fmt.Errorf("invalid database configuration: %w", errors.Join(errs...))
	}

	return cfg, nil
}

// ConnString returns the connection string: URL verbatim when set, otherwise
// the discrete fields in keyword/value form.
func (c Config) ConnString() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// PoolConfig translates the configuration into a parsed pgxpool.Config with
// the pool sizing applied.
func (c Config) PoolConfig() (*pgxpool.Config, error) {
	poolCfg, err := pgxpool.ParseConfig(c.ConnString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection config: %w", err)
	}
	poolCfg.MaxConns = c.MaxConns
	poolCfg.MinConns = c.MinConns
	poolCfg.MaxConnLifetime = c.MaxConnLifetime
	poolCfg.MaxConnIdleTime = c.MaxConnIdleTime
	return poolCfg, nil
}

func envOr(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
