package sqlite

import (
	"context"
	"fmt"
	"strings"
)

func (c *Client) EnsureSchema(ctx context.Context) error {
	ddl := `
	CREATE TABLE IF NOT EXISTS entries (
		id          TEXT PRIMARY KEY,
		slug        TEXT NOT NULL,
		type        TEXT NOT NULL,
		name        TEXT NOT NULL,
		category    TEXT NOT NULL,
		status      TEXT NOT NULL,
		parent_slug TEXT,
		summary     TEXT NOT NULL DEFAULT '',
		content     TEXT NOT NULL DEFAULT '',
		metadata    TEXT NOT NULL DEFAULT '{}',
		created_at  TEXT NOT NULL DEFAULT (datetime('now')),
		updated_at  TEXT NOT NULL DEFAULT (datetime('now')),
		CONSTRAINT uq_entry_slug UNIQUE (slug)
	);

	CREATE TABLE IF NOT EXISTS refs (
		id           TEXT PRIMARY KEY,
		source_slug  TEXT NOT NULL,
		target_slug  TEXT NOT NULL,
		target_type  TEXT NOT NULL,
		relationship TEXT NOT NULL DEFAULT 'related_to',
		CONSTRAINT uq_ref UNIQUE (source_slug, target_slug, target_type, relationship)
	);

	CREATE INDEX IF NOT EXISTS idx_entries_type ON entries (type);
	CREATE INDEX IF NOT EXISTS idx_entries_parent ON entries (parent_slug);
	CREATE INDEX IF NOT EXISTS idx_refs_source ON refs (source_slug);
	CREATE INDEX IF NOT EXISTS idx_refs_target ON refs (target_slug);

	CREATE VIRTUAL TABLE IF NOT EXISTS entries_fts USING fts5(
		slug,
		name,
		summary,
		content,
		content=entries,
		content_rowid=rowid
	);

	CREATE TRIGGER IF NOT EXISTS entries_ai AFTER INSERT ON entries BEGIN
		INSERT INTO entries_fts(rowid, slug, name, summary, content)
		VALUES (new.rowid, new.slug, new.name, new.summary, new.content);
	END;

	CREATE TRIGGER IF NOT EXISTS entries_ad AFTER DELETE ON entries BEGIN
		INSERT INTO entries_fts(entries_fts, rowid, slug, name, summary, content)
		VALUES ('delete', old.rowid, old.slug, old.name, old.summary, old.content);
	END;

	CREATE TRIGGER IF NOT EXISTS entries_au AFTER UPDATE ON entries BEGIN
		INSERT INTO entries_fts(entries_fts, rowid, slug, name, summary, content)
		VALUES ('delete', old.rowid, old.slug, old.name, old.summary, old.content);
		INSERT INTO entries_fts(rowid, slug, name, summary, content)
		VALUES (new.rowid, new.slug, new.name, new.summary, new.content);
	END;
	`

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range splitStatements(ddl) {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("executing DDL: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing schema transaction: %w", err)
	}

	return nil
}

// splitStatements breaks the DDL blob on semicolons while keeping trigger
// bodies (BEGIN ... END;) intact.
func splitStatements(ddl string) []string {
	var statements []string
	var current strings.Builder
	inTrigger := false

	for _, line := range strings.Split(ddl, "\n") {
		stripped := strings.TrimSpace(line)
		if strings.HasPrefix(stripped, "--") {
			continue
		}

		upper := strings.ToUpper(stripped)
		if strings.HasPrefix(upper, "CREATE TRIGGER") {
			inTrigger = true
		}

		current.WriteString(line)
		current.WriteString("\n")

		if inTrigger {
			if strings.HasSuffix(strings.TrimSpace(upper), "END;") {
				statements = append(statements, current.String())
				current.Reset()
				inTrigger = false
			}
			continue
		}

		if strings.HasSuffix(stripped, ";") {
			statements = append(statements, current.String())
			current.Reset()
		}
	}

	if strings.TrimSpace(current.String()) != "" {
		statements = append(statements, current.String())
	}

	return statements
}
