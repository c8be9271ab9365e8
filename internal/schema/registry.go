package schema

import (
	"fmt"
	"strings"
)

// ErrUnsupportedType is returned when a schema lookup names a type the
// registry does not know about.
var ErrUnsupportedType = fmt.Errorf("unsupported entry type")

// Schema describes the shape of one entry type: which fields are required,
// which categories and statuses are valid, and the metadata template an entry
// of that type starts from.
type Schema struct {
	Type            string         `json:"type"`
	RequiredFields  []string       `json:"required_fields"`
	OptionalFields  []string       `json:"optional_fields"`
	Categories      []string       `json:"categories"`
	Statuses        []string       `json:"statuses"`
	Metadata        map[string]any `json:"metadata"`
	ContentSections []string       `json:"content_sections"`
}

// HasCategory reports whether value is a valid category for this schema.
func (s *Schema) HasCategory(value string) bool {
	for _, c := range s.Categories {
		if c == value {
			return true
		}
	}
	return false
}

// HasStatus reports whether value is a valid status for this schema.
func (s *Schema) HasStatus(value string) bool {
	for _, c := range s.Statuses {
		if c == value {
			return true
		}
	}
	return false
}

type typeDef struct {
	categories []string
	statuses   []string
	metadata   map[string]any
}

// Registry holds the per-type taxonomy. It is immutable once constructed and
// safe for concurrent use.
type Registry struct {
	types map[string]typeDef
	order []string
}

// Builtin returns a registry with the five built-in entry types.
func Builtin() *Registry {
	return &Registry{
		order: []string{"location", "faction", "npc", "event", "culture"},
		types: map[string]typeDef{
			"location": {
				categories: []string{"planet", "moon", "station", "settlement", "region"},
				statuses:   []string{"active", "abandoned", "contested", "restricted"},
				metadata: map[string]any{
					"parent_body":    "",
					"controlled_by":  "",
					"orbital_period": "",
					"atmosphere":     "",
					"population":     "",
				},
			},
			"faction": {
				categories: []string{"corporation", "clan", "government", "insurgency", "religious", "military", "other"},
				statuses:   []string{"active", "dissolved", "underground", "rising", "declining"},
				metadata: map[string]any{
					"allegiance":              "",
					"leader_slug":             "",
					"base_of_operations_slug": "",
					"strength":                "",
					"resources":               []string{},
				},
			},
			"npc": {
				categories: []string{"leader", "diplomat", "soldier", "civilian", "criminal", "scholar", "other"},
				statuses:   []string{"alive", "dead", "missing", "unknown"},
				metadata: map[string]any{
					"faction_slug":  "",
					"location_slug": "",
					"disposition":   "",
					"role":          "",
					"appearance":    "",
					"secrets":       []string{},
				},
			},
			"event": {
				categories: []string{"battle", "political", "disaster", "discovery", "cultural", "personal"},
				statuses:   []string{"historical", "ongoing", "imminent", "secret"},
				metadata: map[string]any{
					"date_in_universe": "",
					"location_slug":    "",
					"key_actors":       []string{},
					"consequences":     []string{},
				},
			},
			"culture": {
				categories: []string{"ethnic", "regional", "religious", "professional", "other"},
				statuses:   []string{"active", "declining", "extinct", "evolving"},
				metadata: map[string]any{
					"associated_faction_slug":  "",
					"associated_location_slug": "",
					"values":                   []string{},
					"practices":                []string{},
				},
			},
		},
	}
}

// Types returns the registered entry type names in registration order.
func (r *Registry) Types() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Get returns a fresh Schema for the given entry type. The metadata template
// is copied so callers can mutate it without affecting later lookups.
func (r *Registry) Get(entryType string) (*Schema, error) {
	def, ok := r.types[entryType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, entryType)
	}

	return &Schema{
		Type:            entryType,
		RequiredFields:  []string{"type", "name", "category", "status", "content"},
		OptionalFields:  []string{"parent_slug", "summary", "metadata", "references"},
		Categories:      append([]string(nil), def.categories...),
		Statuses:        append([]string(nil), def.statuses...),
		Metadata:        copyMetadata(def.metadata),
		ContentSections: []string{"Summary", "Details", "Hooks"},
	}, nil
}

// DefaultMetadata returns a fresh copy of the metadata template for a type.
func (r *Registry) DefaultMetadata(entryType string) (map[string]any, error) {
	def, ok := r.types[entryType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, entryType)
	}
	return copyMetadata(def.metadata), nil
}

// ValidateTaxonomy checks category and status against the type's vocabulary.
// An empty result means the taxonomy is valid.
func (r *Registry) ValidateTaxonomy(entryType, category, status string) []string {
	def, ok := r.types[entryType]
	if !ok {
		return []string{fmt.Sprintf("Unsupported entry type: %s", entryType)}
	}

	var violations []string
	if !contains(def.categories, category) {
		violations = append(violations, fmt.Sprintf("Invalid category %q for type %q", category, entryType))
	}
	if !contains(def.statuses, status) {
		violations = append(violations, fmt.Sprintf("Invalid status %q for type %q", status, entryType))
	}
	return violations
}

// MatchType returns the first registered type name that appears as a whole
// word in the given text, or "" when none does.
func (r *Registry) MatchType(text string) string {
	padded := " " + strings.ToLower(text) + " "
	for _, name := range r.order {
		if containsWord(padded, name) {
			return name
		}
	}
	return ""
}

func containsWord(padded, word string) bool {
	idx := 0
	for {
		i := strings.Index(padded[idx:], word)
		if i < 0 {
			return false
		}
		i += idx
		before := padded[i-1]
		after := padded[i+len(word)]
		if !isWordByte(before) && !isWordByte(after) {
			return true
		}
		idx = i + 1
	}
}

func isWordByte(b byte) bool {
	return b == '_' ||
		(b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

func contains(values []string, v string) bool {
	for _, value := range values {
		if value == v {
			return true
		}
	}
	return false
}

// list-valued defaults must not be shared between entries
func copyMetadata(template map[string]any) map[string]any {
	out := make(map[string]any, len(template))
	for key, value := range template {
		switch v := value.(type) {
		case []string:
			out[key] = append([]string(nil), v...)
		case []any:
			out[key] = append([]any(nil), v...)
		default:
			out[key] = v
		}
	}
	return out
}
