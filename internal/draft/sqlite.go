package draft

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"loreweave/internal/lore"
)

// SQLiteStore persists drafts in the same database as the entries, so a
// restart does not lose an in-progress entry.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// EnsureSchema creates the drafts table when missing.
func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS drafts (
		conversation_id TEXT PRIMARY KEY,
		package TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("creating drafts table: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context, conversationID string) (*Draft, error) {
	var packageJSON, updatedAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT package, updated_at FROM drafts WHERE conversation_id = ?`,
		conversationID).Scan(&packageJSON, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading draft: %w", err)
	}

	var pkg lore.ContextPackage
	if err := json.Unmarshal([]byte(packageJSON), &pkg); err != nil {
		return nil, fmt.Errorf("decoding draft package: %w", err)
	}

	d := &Draft{ConversationID: conversationID, Package: &pkg}
	if ts, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		d.UpdatedAt = ts
	}
	return d, nil
}

func (s *SQLiteStore) Save(ctx context.Context, d *Draft) error {
	packageJSON, err := json.Marshal(d.Package)
	if err != nil {
		return fmt.Errorf("encoding draft package: %w", err)
	}

	updatedAt := d.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `
	INSERT INTO drafts (conversation_id, package, updated_at)
	VALUES (?, ?, ?)
	ON CONFLICT (conversation_id) DO UPDATE SET
		package = excluded.package,
		updated_at = excluded.updated_at`,
		d.ConversationID, string(packageJSON), updatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("saving draft: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Clear(ctx context.Context, conversationID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM drafts WHERE conversation_id = ?`, conversationID); err != nil {
		return fmt.Errorf("clearing draft: %w", err)
	}
	return nil
}
