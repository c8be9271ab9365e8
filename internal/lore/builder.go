package lore

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"loreweave/internal/extract"
	"loreweave/internal/relate"
	"loreweave/internal/schema"
)

const (
	relatedCap       = 10
	suggestedFromTop = 5
	suggestedCap     = 8
	questionCap      = 8

	searchPerTermLimit = 5
	relatedExpandLimit = 8

	searchScoreFloor  = 0.2
	relatedScoreFloor = 0.4
)

// Builder assembles context packages from extraction, search and relatedness.
type Builder struct {
	registry  *schema.Registry
	extractor *extract.Extractor
	engine    *relate.Engine
	log       *zap.Logger
}

func NewBuilder(registry *schema.Registry, extractor *extract.Extractor, engine *relate.Engine, log *zap.Logger) *Builder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Builder{registry: registry, extractor: extractor, engine: engine, log: log}
}

// Build assembles the context package for one message. An existing slug, when
// given, pulls that entry's graph neighborhood into the related set. Build
// fails only when the entry type is unknown; search and relatedness failures
// degrade to a package with fewer related entries.
func (b *Builder) Build(ctx context.Context, message, entryType, existingSlug string) (*ContextPackage, error) {
	sch, err := b.registry.Get(entryType)
	if err != nil {
		return nil, fmt.Errorf("building context package: %w", err)
	}

	filled := b.extractor.Extract(ctx, message, entryType)
	missing := MissingRequired(sch, filled)

	terms := ExtractSearchTerms(message)
	acc := relate.NewAccumulator()

	b.searchSignals(ctx, acc, terms)
	if existingSlug != "" {
		b.expandExisting(ctx, acc, existingSlug)
	}

	related := acc.Entries()
	if len(related) > relatedCap {
		related = related[:relatedCap]
	}

	questions := b.extractor.FollowUps(ctx, message, sch, missing, filled)
	if len(questions) > questionCap {
		questions = questions[:questionCap]
	}

	return &ContextPackage{
		EntryType:           entryType,
		Schema:              sch,
		FilledFields:        filled,
		MissingRequired:     missing,
		RelatedEntries:      related,
		SuggestedReferences: suggestReferences(related),
		FollowUpQuestions:   questions,
		SearchTerms:         terms,
	}, nil
}

// searchSignals runs one ranked search per message term and accumulates the
// hits under a per-term reason tag.
func (b *Builder) searchSignals(ctx context.Context, acc *relate.Accumulator, terms []string) {
	for _, term := range terms {
		hits, err := b.engine.Search(ctx, term, "", searchPerTermLimit)
		if err != nil {
			b.log.Warn("term search failed", zap.String("term", term), zap.Error(err))
			continue
		}
		for _, hit := range hits {
			if hit.Score < searchScoreFloor {
				hit.Score = searchScoreFloor
			}
			hit.Reasons = []string{"search_match:" + term}
			acc.AddEntry(hit)
		}
	}
}

// expandExisting widens the net around the entry being updated so the package
// surfaces its graph neighborhood, not just text matches.
func (b *Builder) expandExisting(ctx context.Context, acc *relate.Accumulator, slug string) {
	neighbors, err := b.engine.FindRelated(ctx, slug, relatedExpandLimit)
	if err != nil {
		b.log.Warn("related expansion failed", zap.String("slug", slug), zap.Error(err))
		return
	}
	for _, neighbor := range neighbors {
		if neighbor.Score < relatedScoreFloor {
			neighbor.Score = relatedScoreFloor
		}
		neighbor.Reasons = []string{"related_to_existing_entry"}
		acc.AddEntry(neighbor)
	}
}

// suggestReferences proposes links to the strongest related entries.
func suggestReferences(related []relate.RelatedEntry) []SuggestedReference {
	top := related
	if len(top) > suggestedFromTop {
		top = top[:suggestedFromTop]
	}

	suggestions := make([]SuggestedReference, 0, len(top))
	for _, entry := range top {
		reason := strings.Join(entry.Reasons, ", ")
		if reason == "" {
			reason = "context_match"
		}
		suggestions = append(suggestions, SuggestedReference{
			Slug:   entry.Slug,
			Name:   entry.Name,
			Type:   entry.Type,
			Reason: reason,
		})
		if len(suggestions) >= suggestedCap {
			break
		}
	}
	return suggestions
}
