package store

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrNotFound is returned when a slug lookup matches no entry.
var ErrNotFound = errors.New("entry not found")

// Store is the entry storage collaborator: relational persistence of lore
// entries and their directed reference edges, plus full-text search and the
// adjacency primitives the relatedness engine is built on.
type Store interface {
	Close(ctx context.Context) error
	EnsureSchema(ctx context.Context) error

	// GetEntry returns the entry with the given slug, or ErrNotFound.
	GetEntry(ctx context.Context, slug string) (*Entry, error)

	// SearchFulltext runs a ranked full-text query over slug, name, summary
	// and content. Results are ordered best match first; RankScore is the
	// backend's raw rank where lower means a better match.
	SearchFulltext(ctx context.Context, query, entryType string, limit int) ([]SearchResult, error)

	ListOutgoingReferences(ctx context.Context, slug string) ([]Reference, error)
	ListIncomingReferences(ctx context.Context, slug string) ([]Reference, error)
	ListByParent(ctx context.Context, parentSlug, excludeSlug string, limit int) ([]Candidate, error)
	ListEntries(ctx context.Context, entryType, parentSlug string) ([]EntrySummary, error)

	SlugExists(ctx context.Context, slug string) (bool, error)

	// CreateEntry persists a new entry and its references, returning the raw
	// creation response: {"entry": {...}, "warnings": [...]}. The response is
	// deliberately untyped here; the approval gate validates its shape before
	// trusting it.
	CreateEntry(ctx context.Context, input CreateEntryInput) (json.RawMessage, error)

	// ValidateReferences reports valid, broken and orphaned references,
	// optionally restricted to a single slug.
	ValidateReferences(ctx context.Context, slug string) (*ReferenceReport, error)
}

// Entry is one persisted lore record.
type Entry struct {
	ID         string         `json:"id"`
	Slug       string         `json:"slug"`
	Type       string         `json:"type"`
	Name       string         `json:"name"`
	Category   string         `json:"category"`
	Status     string         `json:"status"`
	ParentSlug string         `json:"parent_slug,omitempty"`
	Summary    string         `json:"summary"`
	Content    string         `json:"content"`
	Metadata   map[string]any `json:"metadata"`
	CreatedAt  string         `json:"created_at,omitempty"`
	UpdatedAt  string         `json:"updated_at,omitempty"`
}

// Candidate is the slim entry view returned by adjacency and search queries.
type Candidate struct {
	Slug     string `json:"slug"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Category string `json:"category"`
	Status   string `json:"status"`
	Summary  string `json:"summary"`
}

// SearchResult is a candidate with the backend's raw rank score attached.
type SearchResult struct {
	Candidate
	RankScore float64 `json:"rank_score"`
}

// EntrySummary is the listing view of an entry.
type EntrySummary struct {
	Candidate
	UpdatedAt string `json:"updated_at"`
}

// Reference is one directed edge between entries.
type Reference struct {
	SourceSlug   string `json:"source_slug,omitempty"`
	TargetSlug   string `json:"target_slug"`
	TargetType   string `json:"target_type"`
	Relationship string `json:"relationship"`
}

// CreateEntryInput is a fully validated entry creation request.
type CreateEntryInput struct {
	Type       string         `json:"type"`
	Name       string         `json:"name"`
	Category   string         `json:"category"`
	Status     string         `json:"status"`
	Summary    string         `json:"summary"`
	Content    string         `json:"content"`
	Metadata   map[string]any `json:"metadata"`
	References []Reference    `json:"references"`
	ParentSlug string         `json:"parent_slug,omitempty"`
}

// CreateEntryResponse is the wire shape of a successful creation response.
// Backends marshal it into the raw payload returned by CreateEntry.
type CreateEntryResponse struct {
	Entry    *Entry   `json:"entry"`
	Warnings []string `json:"warnings"`
}

// ReferenceReport is the outcome of a reference integrity check.
type ReferenceReport struct {
	Valid    []Reference `json:"valid"`
	Broken   []Reference `json:"broken"`
	Orphaned []Candidate `json:"orphaned"`
}
