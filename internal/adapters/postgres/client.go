package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver

	"pairwatch/internal/adapters/config"
	"pairwatch/pkg/errors"
)

// Client owns the connection pool for the Postgres history archive.
type Client struct {
	db *sqlx.DB
}

// NewClient connects to Postgres and verifies the connection before
// returning. The archive has a single background writer plus health and
// metrics probes, so the pool stays small.
func NewClient(cfg config.PostgresConfig) (*Client, error) {
	db, err := sqlx.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}

	db.SetMaxOpenConns(cfg.MaxConns)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "ping postgres")
	}

	return &Client{db: db}, nil
}

// DB returns the underlying sqlx.DB for repositories
func (c *Client) DB() *sqlx.DB {
	return c.db
}

// Close closes the connection pool
func (c *Client) Close() error {
	return c.db.Close()
}

// Health checks database connectivity
func (c *Client) Health(ctx context.Context) error {
	return c.db.PingContext(ctx)
}
