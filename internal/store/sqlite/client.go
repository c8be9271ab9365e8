package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"loreweave/internal/schema"
	"loreweave/internal/store"

	_ "modernc.org/sqlite"
)

var _ store.Store = (*Client)(nil)

type Client struct {
	db       *sql.DB
	registry *schema.Registry
}

func New(ctx context.Context, dsn string, registry *schema.Registry) (*Client, error) {
	driverDSN, err := ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing sqlite DSN: %w", err)
	}

	db, err := sql.Open("sqlite", driverDSN)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA busy_timeout = 30000;",
		"PRAGMA journal_mode = WAL;",
		"PRAGMA foreign_keys = ON;",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", pragma, err)
		}
	}

	return &Client{db: db, registry: registry}, nil
}

func (c *Client) Close(ctx context.Context) error {
	return c.db.Close()
}

// DB exposes the underlying handle so sibling stores (the draft table) can
// share one database file.
func (c *Client) DB() *sql.DB {
	return c.db
}
