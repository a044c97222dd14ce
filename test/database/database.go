// Package database provides shared PostgreSQL test infrastructure: one
// testcontainer per test run, one schema per test for isolation.
package database

import (
	"context"
	"crypto/rand"
	stdsql "database/sql"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	appdb "github.com/eremenai/agentlytics/pkg/database"
)

// shared holds the one database every test in this process points at.
// CI supplies it via CI_DATABASE_URL; local runs start a container once.
var shared struct {
	sync.Once
	dsn string
	err error
}

// NewTestPool creates an isolated schema, runs the embedded migrations in it,
// and returns a pgx pool whose connections all use that schema.
func NewTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	dsn := sharedDSN(t)
	schema := schemaNameFor(t)

	// Create the schema over a throwaway connection.
	setup, err := stdsql.Open("pgx", dsn)
	require.NoError(t, err)
	_, err = setup.ExecContext(ctx, "CREATE SCHEMA "+schema)
	require.NoError(t, err)
	require.NoError(t, setup.Close())

	// Pin search_path so the migration run and every pooled connection land
	// in the test schema.
	schemaDSN := withSearchPath(t, dsn, schema)

	migrationDB, err := stdsql.Open("pgx", schemaDSN)
	require.NoError(t, err)
	require.NoError(t, appdb.Migrate(migrationDB, "test"))
	require.NoError(t, migrationDB.Close())

	pool, err := pgxpool.New(ctx, schemaDSN)
	require.NoError(t, err)

	t.Cleanup(func() {
		pool.Close()
		cleanup, err := stdsql.Open("pgx", dsn)
		if err != nil {
			t.Logf("Warning: failed to open cleanup connection: %v", err)
			return
		}
		defer func() { _ = cleanup.Close() }()
		if _, err := cleanup.ExecContext(context.Background(),
			"DROP SCHEMA IF EXISTS "+schema+" CASCADE"); err != nil {
			t.Logf("Warning: failed to drop schema %s: %v", schema, err)
		}
	})

	return pool
}

// sharedDSN returns the process-wide database, starting the container on
// first use.
func sharedDSN(t *testing.T) string {
	if ciURL := os.Getenv("CI_DATABASE_URL"); ciURL != "" {
		t.Log("Using external PostgreSQL from CI_DATABASE_URL")
		return ciURL
	}

	shared.Do(func() {
		ctx := context.Background()
		t.Log("Starting shared PostgreSQL testcontainer for all tests")

		container, err := postgres.Run(ctx,
			"postgres:17-alpine",
			postgres.WithDatabase("test"),
			postgres.WithUsername("test"),
			postgres.WithPassword("test"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second)),
		)
		if err != nil {
			shared.err = fmt.Errorf("failed to start postgres container: %w", err)
			return
		}
		shared.dsn, shared.err = container.ConnectionString(ctx, "sslmode=disable")
	})

	require.NoError(t, shared.err, "shared test database unavailable")
	return shared.dsn
}

// schemaNameFor derives a unique schema identifier from the test name: a
// lowercased alnum slug capped well under PostgreSQL's 63-char identifier
// limit, plus a random suffix so reruns and same-prefix tests never collide.
func schemaNameFor(t *testing.T) string {
	var b strings.Builder
	b.WriteString("t_")
	for _, r := range strings.ToLower(t.Name()) {
		if b.Len() >= 32 {
			break
		}
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}

	suffix := make([]byte, 5)
	if _, err := rand.Read(suffix); err != nil {
		t.Fatalf("failed to generate schema suffix: %v", err)
	}
	fmt.Fprintf(&b, "_%x", suffix)
	return b.String()
}

// withSearchPath pins search_path in the connection string. pgx routes the
// unknown parameter into the session's runtime parameters, for URL and
// keyword/value forms alike.
func withSearchPath(t *testing.T, dsn, schema string) string {
	if !strings.Contains(dsn, "://") {
		return dsn + " search_path=" + schema
	}

	u, err := url.Parse(dsn)
	require.NoError(t, err, "unparseable database URL")
	q := u.Query()
	q.Set("search_path", schema)
	u.RawQuery = q.Encode()
	return u.String()
}
