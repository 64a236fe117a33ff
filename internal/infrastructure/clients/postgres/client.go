package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/asaCurry/prescriber-point-sub001/pkg/config"
	"github.com/asaCurry/prescriber-point-sub001/pkg/retry"
)

const (
	connMaxLifetime = 5 * time.Minute
	connMaxIdleTime = 2 * time.Minute
	pingTimeout     = 5 * time.Second
)

// Client owns the drug catalog connection pool and its goqu query builder.
type Client struct {
	db   *sql.DB
	goqu *goqu.Database
}

// NewClient opens the pool and waits for PostgreSQL to accept connections.
// Start-up ordering in compose is not guaranteed, so pings are retried.
func NewClient(cfg *config.DatabaseConfig) (*Client, error) {
	db, err := sql.Open("postgres", cfg.DatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)
	db.SetConnMaxIdleTime(connMaxIdleTime)

	ping := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
		defer cancel()
		return db.PingContext(ctx)
	}
	onRetry := func(attempt int, err error, next time.Duration) {
		log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", next).Str("host", cfg.Host).Msg("postgres not ready")
	}
	if err := retry.DoWithLog(context.Background(), retry.DefaultConfig(), "postgres", ping, onRetry); err != nil {
		_ = db.Close()
		return nil, err
	}

	log.Info().Str("host", cfg.Host).Str("database", cfg.Database).Msg("connected to postgres")
	return NewClientFromDB(db), nil
}

// NewClientFromDB wraps an existing pool, typically a sqlmock in tests.
func NewClientFromDB(db *sql.DB) *Client {
	return &Client{db: db, goqu: goqu.New("postgres", db)}
}

func (c *Client) DB() *sql.DB { return c.db }

// Goqu returns the postgres-dialect builder bound to the pool.
func (c *Client) Goqu() *goqu.Database { return c.goqu }

func (c *Client) Close() error { return c.db.Close() }

func (c *Client) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return c.db.BeginTx(ctx, nil)
}

func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}
