package testsupport

import (
	"context"
	"fmt"
	"testing"
	"time"

	"pairwatch/internal/adapters/clickhouse"
)

// TestClickHouse wraps a live ClickHouse connection for repository
// integration tests. The ticks table is shared, so tests scope their rows
// by symbol and register cleanup instead of dropping tables.
type TestClickHouse struct {
	client *clickhouse.Client
}

// NewTestClickHouse connects using environment configuration, skipping the
// test when the environment is not set up.
func NewTestClickHouse(t *testing.T) *TestClickHouse {
	t.Helper()

	client, err := clickhouse.NewClient(LoadClickHouseConfigFromEnv(t))
	if err != nil {
		t.Fatalf("failed to connect to clickhouse: %v", err)
	}

	helper := &TestClickHouse{client: client}
	t.Cleanup(func() { _ = client.Close() })
	return helper
}

// Client exposes the raw ClickHouse client for queries
func (h *TestClickHouse) Client() *clickhouse.Client {
	return h.client
}

// RegisterTableCleanup deletes the rows matching condition after the test,
// leaving the shared table in place.
func (h *TestClickHouse) RegisterTableCleanup(t *testing.T, table, condition string) {
	t.Helper()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		query := fmt.Sprintf("DELETE FROM %s WHERE %s", table, condition)
		_ = h.client.Exec(ctx, query)
	})
}
