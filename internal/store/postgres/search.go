package postgres

import (
	"context"
	"fmt"
	"strings"

	"loreweave/internal/store"
)

func (c *Client) SearchFulltext(ctx context.Context, query, entryType string, limit int) ([]store.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return []store.SearchResult{}, nil
	}
	if limit <= 0 {
		limit = 10
	}

	// ts_rank grows with match quality; negating it gives the store contract's
	// "lower raw rank = better match" ordering.
	sqlQuery := `
	SELECT slug, name, type, category, status, summary,
		   -ts_rank(search_vector, websearch_to_tsquery('english', $1)) AS rank_score
	FROM entries
	WHERE search_vector @@ websearch_to_tsquery('english', $1)
	  AND ($2 = '' OR type = $2)
	ORDER BY rank_score ASC, name ASC
	LIMIT $3
	`

	rows, err := c.pool.Query(ctx, sqlQuery, query, entryType, limit)
	if err != nil {
		return nil, fmt.Errorf("searching entries: %w", err)
	}
	defer rows.Close()

	results := []store.SearchResult{}
	for rows.Next() {
		var r store.SearchResult
		if err := rows.Scan(&r.Slug, &r.Name, &r.Type, &r.Category, &r.Status, &r.Summary, &r.RankScore); err != nil {
			return nil, fmt.Errorf("scanning search result: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating search results: %w", err)
	}

	return results, nil
}
