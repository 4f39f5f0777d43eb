package testsupport

import (
	"testing"

	"github.com/jmoiron/sqlx"

	"pairwatch/internal/adapters/postgres"
)

// TestPostgres wraps a live Postgres connection for repository integration
// tests. The history repository owns its transactions, so tests work on the
// raw handle and clean up their own rows.
type TestPostgres struct {
	client *postgres.Client
}

// NewTestPostgres connects using environment configuration, skipping the
// test when the environment is not set up.
func NewTestPostgres(t *testing.T) *TestPostgres {
	t.Helper()

	client, err := postgres.NewClient(LoadPostgresConfigFromEnv(t))
	if err != nil {
		t.Fatalf("failed to connect to postgres: %v", err)
	}

	helper := &TestPostgres{client: client}
	t.Cleanup(helper.Close)
	return helper
}

// DB returns the underlying database handle
func (h *TestPostgres) DB() *sqlx.DB {
	return h.client.DB()
}

// Close closes the connection. Safe to call more than once.
func (h *TestPostgres) Close() {
	_ = h.client.Close()
}
