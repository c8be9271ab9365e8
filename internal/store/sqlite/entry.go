package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"loreweave/internal/store"
)

const entryColumns = `id, slug, type, name, category, status, parent_slug, summary, content, metadata, created_at, updated_at`

func (c *Client) GetEntry(ctx context.Context, slug string) (*store.Entry, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM entries WHERE slug = ?`, slug)

	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", store.ErrNotFound, slug)
	}
	if err != nil {
		return nil, fmt.Errorf("getting entry: %w", err)
	}
	return entry, nil
}

func (c *Client) SlugExists(ctx context.Context, slug string) (bool, error) {
	var one int
	err := c.db.QueryRowContext(ctx,
		`SELECT 1 FROM entries WHERE slug = ? LIMIT 1`, slug).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking slug: %w", err)
	}
	return true, nil
}

func (c *Client) ListEntries(ctx context.Context, entryType, parentSlug string) ([]store.EntrySummary, error) {
	query := `
	SELECT slug, name, type, category, status, summary, updated_at
	FROM entries
	WHERE (? = '' OR type = ?)
	  AND (? = '' OR parent_slug = ?)
	ORDER BY updated_at DESC, name ASC
	`

	rows, err := c.db.QueryContext(ctx, query, entryType, entryType, parentSlug, parentSlug)
	if err != nil {
		return nil, fmt.Errorf("listing entries: %w", err)
	}
	defer rows.Close()

	results := []store.EntrySummary{}
	for rows.Next() {
		var s store.EntrySummary
		if err := rows.Scan(&s.Slug, &s.Name, &s.Type, &s.Category, &s.Status, &s.Summary, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning entry summary: %w", err)
		}
		results = append(results, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entry summaries: %w", err)
	}

	return results, nil
}

func (c *Client) ListByParent(ctx context.Context, parentSlug, excludeSlug string, limit int) ([]store.Candidate, error) {
	if limit <= 0 {
		limit = 30
	}

	query := `
	SELECT slug, name, type, category, status, summary
	FROM entries
	WHERE parent_slug = ? AND slug != ?
	LIMIT ?
	`

	rows, err := c.db.QueryContext(ctx, query, parentSlug, excludeSlug, limit)
	if err != nil {
		return nil, fmt.Errorf("listing by parent: %w", err)
	}
	defer rows.Close()

	results := []store.Candidate{}
	for rows.Next() {
		var cand store.Candidate
		if err := rows.Scan(&cand.Slug, &cand.Name, &cand.Type, &cand.Category, &cand.Status, &cand.Summary); err != nil {
			return nil, fmt.Errorf("scanning sibling: %w", err)
		}
		results = append(results, cand)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating siblings: %w", err)
	}

	return results, nil
}

func (c *Client) CreateEntry(ctx context.Context, input store.CreateEntryInput) (json.RawMessage, error) {
	if violations := c.registry.ValidateTaxonomy(input.Type, input.Category, input.Status); len(violations) > 0 {
		return nil, fmt.Errorf("invalid entry: %s", strings.Join(violations, "; "))
	}

	if input.ParentSlug != "" {
		exists, err := c.SlugExists(ctx, input.ParentSlug)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, fmt.Errorf("parent_slug does not exist: %s", input.ParentSlug)
		}
	}

	slug, err := store.UniqueSlug(ctx, c, input.Name)
	if err != nil {
		return nil, err
	}

	metadata, err := c.registry.DefaultMetadata(input.Type)
	if err != nil {
		return nil, err
	}
	for key, value := range input.Metadata {
		metadata[key] = value
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("marshaling metadata: %w", err)
	}

	warnings, err := c.referenceWarnings(ctx, input.References)
	if err != nil {
		return nil, err
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	entryID := uuid.NewString()
	var parent any
	if input.ParentSlug != "" {
		parent = input.ParentSlug
	}

	_, err = tx.ExecContext(ctx, `
	INSERT INTO entries (id, slug, type, name, category, status, parent_slug, summary, content, metadata)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entryID, slug, input.Type, input.Name, input.Category, input.Status,
		parent, input.Summary, input.Content, string(metadataJSON))
	if err != nil {
		return nil, fmt.Errorf("inserting entry: %w", err)
	}

	for _, ref := range input.References {
		targetSlug := strings.TrimSpace(ref.TargetSlug)
		targetType := strings.TrimSpace(ref.TargetType)
		if targetSlug == "" || targetType == "" {
			continue
		}
		relationship := strings.TrimSpace(ref.Relationship)
		if relationship == "" {
			relationship = "related_to"
		}
		_, err = tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO refs (id, source_slug, target_slug, target_type, relationship)
		VALUES (?, ?, ?, ?, ?)`,
			uuid.NewString(), slug, targetSlug, targetType, relationship)
		if err != nil {
			return nil, fmt.Errorf("inserting reference: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing entry: %w", err)
	}

	entry, err := c.GetEntry(ctx, slug)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(store.CreateEntryResponse{Entry: entry, Warnings: warnings})
	if err != nil {
		return nil, fmt.Errorf("marshaling creation response: %w", err)
	}
	return raw, nil
}

func (c *Client) referenceWarnings(ctx context.Context, references []store.Reference) ([]string, error) {
	warnings := []string{}
	for _, ref := range references {
		targetSlug := strings.TrimSpace(ref.TargetSlug)
		if targetSlug == "" {
			warnings = append(warnings, "Reference missing target_slug")
			continue
		}
		exists, err := c.SlugExists(ctx, targetSlug)
		if err != nil {
			return nil, err
		}
		if !exists {
			warnings = append(warnings, fmt.Sprintf("Reference target does not exist: %s", targetSlug))
		}
	}
	return warnings, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*store.Entry, error) {
	var e store.Entry
	var parent sql.NullString
	var metadataRaw string

	err := row.Scan(&e.ID, &e.Slug, &e.Type, &e.Name, &e.Category, &e.Status,
		&parent, &e.Summary, &e.Content, &metadataRaw, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}

	e.ParentSlug = parent.String
	if metadataRaw != "" {
		if err := json.Unmarshal([]byte(metadataRaw), &e.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshaling metadata: %w", err)
		}
	}
	if e.Metadata == nil {
		e.Metadata = map[string]any{}
	}

	return &e, nil
}
