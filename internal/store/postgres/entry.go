package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"loreweave/internal/store"
)

func (c *Client) GetEntry(ctx context.Context, slug string) (*store.Entry, error) {
	query := `
	SELECT id, slug, type, name, category, status, parent_slug, summary, content, metadata,
		   to_char(created_at, 'YYYY-MM-DD HH24:MI:SS'),
		   to_char(updated_at, 'YYYY-MM-DD HH24:MI:SS')
	FROM entries
	WHERE slug = $1
	`

	var e store.Entry
	var parent sql.NullString
	var metadataRaw []byte
	err := c.pool.QueryRow(ctx, query, slug).Scan(
		&e.ID, &e.Slug, &e.Type, &e.Name, &e.Category, &e.Status,
		&parent, &e.Summary, &e.Content, &metadataRaw, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", store.ErrNotFound, slug)
	}
	if err != nil {
		return nil, fmt.Errorf("getting entry: %w", err)
	}

	e.ParentSlug = parent.String
	if len(metadataRaw) > 0 {
		if err := json.Unmarshal(metadataRaw, &e.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshaling metadata: %w", err)
		}
	}
	if e.Metadata == nil {
		e.Metadata = map[string]any{}
	}

	return &e, nil
}

func (c *Client) SlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := c.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM entries WHERE slug = $1)`, slug).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking slug: %w", err)
	}
	return exists, nil
}

func (c *Client) ListEntries(ctx context.Context, entryType, parentSlug string) ([]store.EntrySummary, error) {
	query := `
	SELECT slug, name, type, category, status, summary,
		   to_char(updated_at, 'YYYY-MM-DD HH24:MI:SS')
	FROM entries
	WHERE ($1 = '' OR type = $1)
	  AND ($2 = '' OR parent_slug = $2)
	ORDER BY updated_at DESC, name ASC
	`

	rows, err := c.pool.Query(ctx, query, entryType, parentSlug)
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
	WHERE parent_slug = $1 AND slug != $2
	LIMIT $3
	`

	rows, err := c.pool.Query(ctx, query, parentSlug, excludeSlug, limit)
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

	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var parent any
	if input.ParentSlug != "" {
		parent = input.ParentSlug
	}

	_, err = tx.Exec(ctx, `
	INSERT INTO entries (id, slug, type, name, category, status, parent_slug, summary, content, metadata, search_vector)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
		setweight(to_tsvector('simple', coalesce($4, '')), 'A') ||
		setweight(to_tsvector('english', coalesce($8, '')), 'B') ||
		setweight(to_tsvector('english', coalesce($9, '')), 'C')
	)`,
		uuid.NewString(), slug, input.Type, input.Name, input.Category, input.Status,
		parent, input.Summary, input.Content, metadataJSON)
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
		_, err = tx.Exec(ctx, `
		INSERT INTO refs (id, source_slug, target_slug, target_type, relationship)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT ON CONSTRAINT uq_ref DO NOTHING`,
			uuid.NewString(), slug, targetSlug, targetType, relationship)
		if err != nil {
			return nil, fmt.Errorf("inserting reference: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
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
