// Package draft carries an in-progress entry across conversation turns. Each
// turn's context package is merged into the stored draft, so details given
// over several messages accumulate into one creation candidate.
package draft

import (
	"time"

	"loreweave/internal/lore"
	"loreweave/internal/relate"
)

const (
	relatedCap   = 10
	referenceCap = 8
	questionCap  = 10
	termCap      = 8
)

// Draft is the persisted in-progress entry for one conversation.
type Draft struct {
	ConversationID string               `json:"conversation_id"`
	Package        *lore.ContextPackage `json:"package"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

// Merge combines an earlier package with the current turn's. Either side may
// be nil, in which case the other is returned unchanged. The current turn
// wins field conflicts; list values accumulate under their caps; the missing
// field list is recomputed from the merged fields.
func Merge(prev, cur *lore.ContextPackage) *lore.ContextPackage {
	if prev == nil {
		return cur
	}
	if cur == nil {
		return prev
	}

	merged := &lore.ContextPackage{
		EntryType: cur.EntryType,
		Schema:    cur.Schema,
	}
	if merged.EntryType == "" {
		merged.EntryType = prev.EntryType
	}
	if merged.Schema == nil {
		merged.Schema = prev.Schema
	}

	merged.FilledFields = mergeFields(prev.FilledFields, cur.FilledFields)
	merged.MissingRequired = lore.MissingRequired(merged.Schema, merged.FilledFields)
	merged.RelatedEntries = mergeRelated(prev.RelatedEntries, cur.RelatedEntries)
	merged.SuggestedReferences = mergeReferences(prev.SuggestedReferences, cur.SuggestedReferences)
	merged.FollowUpQuestions = unionStrings(prev.FollowUpQuestions, cur.FollowUpQuestions, questionCap)
	merged.SearchTerms = unionStrings(prev.SearchTerms, cur.SearchTerms, termCap)

	return merged
}

// mergeFields is a shallow overlay of cur onto prev, except metadata maps on
// both sides, which union key-wise with cur winning per key.
func mergeFields(prev, cur map[string]any) map[string]any {
	merged := make(map[string]any, len(prev)+len(cur))
	for key, value := range prev {
		merged[key] = value
	}
	for key, value := range cur {
		if key == "metadata" {
			if existing, ok := merged["metadata"].(map[string]any); ok {
				if incoming, ok := value.(map[string]any); ok {
					merged["metadata"] = mergeMetadata(existing, incoming)
					continue
				}
			}
		}
		merged[key] = value
	}
	return merged
}

func mergeMetadata(prev, cur map[string]any) map[string]any {
	merged := make(map[string]any, len(prev)+len(cur))
	for key, value := range prev {
		merged[key] = value
	}
	for key, value := range cur {
		merged[key] = value
	}
	return merged
}

// mergeRelated unions by slug, keeping the highest score and every reason.
func mergeRelated(prev, cur []relate.RelatedEntry) []relate.RelatedEntry {
	acc := relate.NewAccumulator()
	for _, entry := range prev {
		acc.AddEntry(entry)
	}
	for _, entry := range cur {
		acc.AddEntry(entry)
	}

	merged := acc.Entries()
	if len(merged) > relatedCap {
		merged = merged[:relatedCap]
	}
	return merged
}

// mergeReferences unions by (slug, type), earlier suggestions first.
func mergeReferences(prev, cur []lore.SuggestedReference) []lore.SuggestedReference {
	type key struct{ slug, entryType string }
	seen := map[key]struct{}{}

	merged := make([]lore.SuggestedReference, 0, len(prev)+len(cur))
	for _, ref := range append(append([]lore.SuggestedReference{}, prev...), cur...) {
		k := key{ref.Slug, ref.Type}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		merged = append(merged, ref)
		if len(merged) >= referenceCap {
			break
		}
	}
	return merged
}

func unionStrings(prev, cur []string, limit int) []string {
	seen := map[string]struct{}{}
	merged := make([]string, 0, len(prev)+len(cur))
	for _, s := range append(append([]string{}, prev...), cur...) {
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		merged = append(merged, s)
		if len(merged) >= limit {
			break
		}
	}
	return merged
}
