package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"pairwatch/internal/adapters/config"
	"pairwatch/pkg/errors"
)

// Client owns the native-protocol connection to the ClickHouse tick archive.
type Client struct {
	conn driver.Conn
}

// NewClient connects to ClickHouse and verifies the connection before
// returning. Inserts go through synchronous batches so the tick recorder
// only advances its watermark past confirmed rows.
func NewClient(cfg config.ClickHouseConfig) (*Client, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, errors.Wrap(err, "open clickhouse")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "ping clickhouse")
	}

	return &Client{conn: conn}, nil
}

// Conn returns the underlying connection for repositories
func (c *Client) Conn() driver.Conn {
	return c.conn
}

// Close closes the connection
func (c *Client) Close() error {
	return c.conn.Close()
}

// Health checks ClickHouse connectivity
func (c *Client) Health(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

// Exec runs a statement without returning rows. Used for schema and
// test-table management.
func (c *Client) Exec(ctx context.Context, query string, args ...interface{}) error {
	return c.conn.Exec(ctx, query, args...)
}
