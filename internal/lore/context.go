// Package lore assembles the context package for a worldbuilding turn: the
// fields a message supports, what is still missing, which existing entries
// are relevant, and what to ask next.
package lore

import (
	"strings"

	"loreweave/internal/relate"
	"loreweave/internal/schema"
)

// SuggestedReference nominates an existing entry the new one should link to.
type SuggestedReference struct {
	Slug   string `json:"slug"`
	Name   string `json:"name"`
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// ContextPackage is the assembled context for one message. It carries its own
// schema copy so later merging can recompute missing fields without a
// registry lookup.
type ContextPackage struct {
	EntryType           string                `json:"entry_type"`
	Schema              *schema.Schema        `json:"schema"`
	FilledFields        map[string]any        `json:"filled_fields"`
	MissingRequired     []string              `json:"missing_required"`
	RelatedEntries      []relate.RelatedEntry `json:"related_entries"`
	SuggestedReferences []SuggestedReference  `json:"suggested_references"`
	FollowUpQuestions   []string              `json:"follow_up_questions"`
	SearchTerms         []string              `json:"search_terms"`
}

// MissingRequired lists the schema's required fields that are absent or blank
// in the filled fields.
func MissingRequired(sch *schema.Schema, filled map[string]any) []string {
	missing := []string{}
	if sch == nil {
		return missing
	}
	for _, field := range sch.RequiredFields {
		value, ok := filled[field]
		if !ok {
			missing = append(missing, field)
			continue
		}
		if s, isString := value.(string); isString && strings.TrimSpace(s) == "" {
			missing = append(missing, field)
		}
	}
	return missing
}
