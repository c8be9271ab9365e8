package sqlite

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

	ftsQuery := convertToFTS5(query)
	if ftsQuery == "" {
		return []store.SearchResult{}, nil
	}

	sqlQuery := `
	SELECT e.slug, e.name, e.type, e.category, e.status, e.summary,
		   bm25(entries_fts) AS rank_score
	FROM entries_fts
	JOIN entries e ON e.rowid = entries_fts.rowid
	WHERE entries_fts MATCH ?
	  AND (? = '' OR e.type = ?)
	ORDER BY rank_score ASC, e.name ASC
	LIMIT ?
	`

	rows, err := c.db.QueryContext(ctx, sqlQuery, ftsQuery, entryType, entryType, limit)
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

// convertToFTS5 turns a freeform query into a safe FTS5 expression. Quoted
// spans become phrase queries, AND/OR/NOT pass through as operators, and
// every other token is quoted so punctuation cannot break the MATCH syntax.
// Bare tokens are joined with AND.
func convertToFTS5(query string) string {
	var result strings.Builder
	var current strings.Builder
	var inQuote bool

	writeJoined := func(token string) {
		if result.Len() > 0 {
			last := lastWord(result.String())
			if last != "AND" && last != "OR" && last != "NOT" && last != "" {
				result.WriteString(" AND ")
			} else {
				result.WriteString(" ")
			}
		}
		result.WriteString(token)
	}

	flushToken := func() {
		token := current.String()
		current.Reset()
		if token == "" {
			return
		}

		upper := strings.ToUpper(token)
		switch upper {
		case "AND", "OR", "NOT":
			if result.Len() > 0 {
				result.WriteString(" ")
			}
			result.WriteString(upper)
			return
		}

		writeJoined(`"` + strings.ReplaceAll(token, `"`, "") + `"`)
	}

	for i := 0; i < len(query); i++ {
		ch := query[i]
		switch {
		case ch == '"':
			if inQuote {
				inQuote = false
				token := current.String()
				current.Reset()
				if token != "" {
					writeJoined(`"` + token + `"`)
				}
			} else {
				flushToken()
				inQuote = true
			}
		case inQuote:
			current.WriteByte(ch)
		case ch == ' ' || ch == '\t' || ch == '\n':
			flushToken()
		default:
			current.WriteByte(ch)
		}
	}

	flushToken()

	out := strings.TrimSpace(result.String())
	switch strings.ToUpper(out) {
	case "AND", "OR", "NOT":
		return ""
	}
	return out
}

func lastWord(s string) string {
	words := strings.Fields(s)
	if len(words) == 0 {
		return ""
	}
	return words[len(words)-1]
}
