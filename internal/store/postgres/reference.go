package postgres

import (
	"context"
	"fmt"

	"loreweave/internal/store"
)

func (c *Client) ListOutgoingReferences(ctx context.Context, slug string) ([]store.Reference, error) {
	return c.listReferences(ctx, `
	SELECT source_slug, target_slug, target_type, relationship
	FROM refs
	WHERE source_slug = $1
	ORDER BY target_slug ASC`, slug)
}

func (c *Client) ListIncomingReferences(ctx context.Context, slug string) ([]store.Reference, error) {
	return c.listReferences(ctx, `
	SELECT source_slug, target_slug, target_type, relationship
	FROM refs
	WHERE target_slug = $1
	ORDER BY source_slug ASC`, slug)
}

func (c *Client) listReferences(ctx context.Context, query, slug string) ([]store.Reference, error) {
	rows, err := c.pool.Query(ctx, query, slug)
	if err != nil {
		return nil, fmt.Errorf("listing references: %w", err)
	}
	defer rows.Close()

	results := []store.Reference{}
	for rows.Next() {
		var r store.Reference
		if err := rows.Scan(&r.SourceSlug, &r.TargetSlug, &r.TargetType, &r.Relationship); err != nil {
			return nil, fmt.Errorf("scanning reference: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating references: %w", err)
	}

	return results, nil
}

func (c *Client) ValidateReferences(ctx context.Context, slug string) (*store.ReferenceReport, error) {
	refQuery := `
	SELECT r.source_slug, r.target_slug, r.target_type, r.relationship,
		   s.slug IS NOT NULL AS source_exists,
		   t.slug IS NOT NULL AS target_exists
	FROM refs r
	LEFT JOIN entries s ON s.slug = r.source_slug
	LEFT JOIN entries t ON t.slug = r.target_slug
	WHERE ($1 = '' OR r.source_slug = $1 OR r.target_slug = $1)
	ORDER BY r.source_slug, r.target_slug
	`

	rows, err := c.pool.Query(ctx, refQuery, slug)
	if err != nil {
		return nil, fmt.Errorf("validating references: %w", err)
	}
	defer rows.Close()

	report := &store.ReferenceReport{
		Valid:    []store.Reference{},
		Broken:   []store.Reference{},
		Orphaned: []store.Candidate{},
	}

	for rows.Next() {
		var r store.Reference
		var sourceExists, targetExists bool
		if err := rows.Scan(&r.SourceSlug, &r.TargetSlug, &r.TargetType, &r.Relationship, &sourceExists, &targetExists); err != nil {
			return nil, fmt.Errorf("scanning reference row: %w", err)
		}
		if sourceExists && targetExists {
			report.Valid = append(report.Valid, r)
		} else {
			report.Broken = append(report.Broken, r)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating reference rows: %w", err)
	}

	orphanQuery := `
	SELECT e.slug, e.name, e.type, e.category, e.status, e.summary
	FROM entries e
	LEFT JOIN refs r ON r.target_slug = e.slug
	WHERE ($1 = '' OR e.slug = $1)
	GROUP BY e.slug, e.name, e.type, e.category, e.status, e.summary
	HAVING COUNT(r.id) = 0
	ORDER BY e.name
	`

	orphanRows, err := c.pool.Query(ctx, orphanQuery, slug)
	if err != nil {
		return nil, fmt.Errorf("finding orphaned entries: %w", err)
	}
	defer orphanRows.Close()

	for orphanRows.Next() {
		var cand store.Candidate
		if err := orphanRows.Scan(&cand.Slug, &cand.Name, &cand.Type, &cand.Category, &cand.Status, &cand.Summary); err != nil {
			return nil, fmt.Errorf("scanning orphaned entry: %w", err)
		}
		report.Orphaned = append(report.Orphaned, cand)
	}
	if err := orphanRows.Err(); err != nil {
		return nil, fmt.Errorf("iterating orphaned entries: %w", err)
	}

	return report, nil
}
