package postgres

import (
	"context"
	"fmt"
)

func (c *Client) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS entries (
			id          TEXT PRIMARY KEY,
			slug        TEXT NOT NULL UNIQUE,
			type        TEXT NOT NULL,
			name        TEXT NOT NULL,
			category    TEXT NOT NULL,
			status      TEXT NOT NULL,
			parent_slug TEXT,
			summary     TEXT NOT NULL DEFAULT '',
			content     TEXT NOT NULL DEFAULT '',
			metadata    JSONB NOT NULL DEFAULT '{}'::jsonb,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
			search_vector TSVECTOR
		)`,
		`CREATE TABLE IF NOT EXISTS refs (
			id           TEXT PRIMARY KEY,
			source_slug  TEXT NOT NULL,
			target_slug  TEXT NOT NULL,
			target_type  TEXT NOT NULL,
			relationship TEXT NOT NULL DEFAULT 'related_to',
			CONSTRAINT uq_ref UNIQUE (source_slug, target_slug, target_type, relationship)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_type ON entries (type)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_parent ON entries (parent_slug)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_search ON entries USING GIN (search_vector)`,
		`CREATE INDEX IF NOT EXISTS idx_refs_source ON refs (source_slug)`,
		`CREATE INDEX IF NOT EXISTS idx_refs_target ON refs (target_slug)`,
	}

	for _, stmt := range statements {
		if _, err := c.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("executing DDL: %w", err)
		}
	}

	return nil
}
