package relate

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"loreweave/internal/store"
)

// Signal scores. A slug nominated by several signals keeps the highest.
const (
	scoreDirectReference = 1.0
	scoreReferencedBy    = 0.95
	scoreSharedParent    = 0.72
	scoreSharedReference = 0.63

	siblingCandidateCap = 30
	sharedRefCap        = 30

	maxSearchLimit  = 50
	maxRelatedLimit = 25
)

// Querier is the slice of the entry store the engine needs.
type Querier interface {
	GetEntry(ctx context.Context, slug string) (*store.Entry, error)
	SearchFulltext(ctx context.Context, query, entryType string, limit int) ([]store.SearchResult, error)
	ListOutgoingReferences(ctx context.Context, slug string) ([]store.Reference, error)
	ListIncomingReferences(ctx context.Context, slug string) ([]store.Reference, error)
	ListByParent(ctx context.Context, parentSlug, excludeSlug string, limit int) ([]store.Candidate, error)
}

// Engine ranks entries related to a query string or to an existing entry by
// merging independent signals into one deduplicated, score-ordered list.
type Engine struct {
	db  Querier
	log *zap.Logger
}

func NewEngine(db Querier, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{db: db, log: log}
}

// Search runs a ranked full-text query and converts the backend's raw rank
// into a relevance in (0,1], best match first.
func (e *Engine) Search(ctx context.Context, query, entryType string, limit int) ([]RelatedEntry, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []RelatedEntry{}, nil
	}
	limit = clamp(limit, 1, maxSearchLimit)

	rows, err := e.db.SearchFulltext(ctx, query, entryType, limit)
	if err != nil {
		return nil, fmt.Errorf("full-text search: %w", err)
	}

	results := make([]RelatedEntry, 0, len(rows))
	for _, row := range rows {
		results = append(results, RelatedEntry{
			Slug:     row.Slug,
			Name:     row.Name,
			Type:     row.Type,
			Category: row.Category,
			Status:   row.Status,
			Summary:  row.Summary,
			Score:    relevance(row.RankScore),
		})
	}
	return results, nil
}

// FindRelated merges the reference, sibling, co-reference and text-similarity
// signals for the given entry. It fails only when the base slug is unknown;
// an individual signal failure is logged and its contribution dropped.
func (e *Engine) FindRelated(ctx context.Context, slug string, limit int) ([]RelatedEntry, error) {
	base, err := e.db.GetEntry(ctx, slug)
	if err != nil {
		return nil, err
	}
	limit = clamp(limit, 1, maxRelatedLimit)

	acc := NewAccumulator()

	outgoing := e.referenceSignal(ctx, acc, slug)
	e.incomingSignal(ctx, acc, slug)
	e.siblingSignal(ctx, acc, base)
	e.sharedReferenceSignal(ctx, acc, slug, outgoing)
	e.contentSimilaritySignal(ctx, acc, base)

	acc.Exclude(slug)

	entries := acc.Entries()
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// referenceSignal scores direct outgoing references and returns their target
// slugs for the shared-reference signal.
func (e *Engine) referenceSignal(ctx context.Context, acc *Accumulator, slug string) []string {
	refs, err := e.db.ListOutgoingReferences(ctx, slug)
	if err != nil {
		e.log.Warn("direct reference signal failed", zap.String("slug", slug), zap.Error(err))
		return nil
	}

	targets := make([]string, 0, len(refs))
	for _, ref := range refs {
		targets = append(targets, ref.TargetSlug)
		if cand, ok := e.lookup(ctx, ref.TargetSlug); ok {
			acc.Add(cand, scoreDirectReference, "direct_reference")
		}
	}
	return targets
}

func (e *Engine) incomingSignal(ctx context.Context, acc *Accumulator, slug string) {
	refs, err := e.db.ListIncomingReferences(ctx, slug)
	if err != nil {
		e.log.Warn("incoming reference signal failed", zap.String("slug", slug), zap.Error(err))
		return
	}
	for _, ref := range refs {
		if cand, ok := e.lookup(ctx, ref.SourceSlug); ok {
			acc.Add(cand, scoreReferencedBy, "referenced_by")
		}
	}
}

func (e *Engine) siblingSignal(ctx context.Context, acc *Accumulator, base *store.Entry) {
	if base.ParentSlug == "" {
		return
	}
	siblings, err := e.db.ListByParent(ctx, base.ParentSlug, base.Slug, siblingCandidateCap)
	if err != nil {
		e.log.Warn("shared parent signal failed", zap.String("slug", base.Slug), zap.Error(err))
		return
	}
	for _, cand := range siblings {
		acc.Add(cand, scoreSharedParent, "shared_parent")
	}
}

// sharedReferenceSignal nominates entries that reference at least one of the
// base entry's own reference targets.
func (e *Engine) sharedReferenceSignal(ctx context.Context, acc *Accumulator, slug string, targets []string) {
	seen := map[string]struct{}{}
	count := 0
	for _, target := range targets {
		refs, err := e.db.ListIncomingReferences(ctx, target)
		if err != nil {
			e.log.Warn("shared reference signal failed",
				zap.String("slug", slug), zap.String("target", target), zap.Error(err))
			continue
		}
		for _, ref := range refs {
			if ref.SourceSlug == slug {
				continue
			}
			if _, ok := seen[ref.SourceSlug]; ok {
				continue
			}
			seen[ref.SourceSlug] = struct{}{}
			if count >= sharedRefCap {
				return
			}
			count++
			if cand, ok := e.lookup(ctx, ref.SourceSlug); ok {
				acc.Add(cand, scoreSharedReference, "shared_reference")
			}
		}
	}
}

func (e *Engine) contentSimilaritySignal(ctx context.Context, acc *Accumulator, base *store.Entry) {
	terms := Tokenize(base.Name + " " + base.Summary)
	if len(terms) == 0 {
		return
	}
	query := strings.Join(terms, " OR ")

	matches, err := e.Search(ctx, query, "", 20)
	if err != nil {
		e.log.Warn("content similarity signal failed", zap.String("slug", base.Slug), zap.Error(err))
		return
	}
	for _, match := range matches {
		if match.Slug == base.Slug {
			continue
		}
		score := match.Score * 0.55
		if score < 0.35 {
			score = 0.35
		}
		match.Score = score
		match.Reasons = []string{"content_similarity"}
		acc.AddEntry(match)
	}
}

func (e *Engine) lookup(ctx context.Context, slug string) (store.Candidate, bool) {
	entry, err := e.db.GetEntry(ctx, slug)
	if err != nil {
		e.log.Debug("related candidate lookup failed", zap.String("slug", slug), zap.Error(err))
		return store.Candidate{}, false
	}
	return store.Candidate{
		Slug:     entry.Slug,
		Name:     entry.Name,
		Type:     entry.Type,
		Category: entry.Category,
		Status:   entry.Status,
		Summary:  entry.Summary,
	}, true
}

var stopWords = map[string]struct{}{
	"with": {}, "from": {}, "that": {}, "this": {}, "have": {}, "will": {}, "into": {},
}

// Tokenize lowercases the text, extracts alphanumeric runs of length >= 3,
// drops stop words and returns the first 8 distinct tokens.
func Tokenize(text string) []string {
	var tokens []string
	seen := map[string]struct{}{}
	var current strings.Builder

	flush := func() {
		token := current.String()
		current.Reset()
		if len(token) < 3 {
			return
		}
		if _, stop := stopWords[token]; stop {
			return
		}
		if _, dup := seen[token]; dup {
			return
		}
		seen[token] = struct{}{}
		if len(tokens) < 8 {
			tokens = append(tokens, token)
		}
	}

	for _, r := range strings.ToLower(text) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			current.WriteRune(r)
			continue
		}
		flush()
	}
	flush()

	return tokens
}

// relevance maps a raw rank score (lower = better) into (0,1].
func relevance(rankScore float64) float64 {
	if rankScore < 0 {
		rankScore = 0
	}
	return roundScore(1.0 / (1.0 + rankScore))
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
