package lore

import (
	"strings"
	"testing"
)

func TestExtractSearchTerms(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "double quoted phrase",
			input:    `Add a faction called "Ember Court" based in Highmoor`,
			expected: []string{"Ember Court", "Add", "Highmoor"},
		},
		{
			name:     "single quoted phrase in a contraction sentence",
			input:    "I'd like to add an NPC named 'Cintra Gables'",
			expected: []string{"Cintra Gables", "I'd", "NPC"},
		},
		{
			name:     "capitalized run capped at three words",
			input:    "visit Grand Ember Court Keep someday",
			expected: []string{"Grand Ember Court", "Keep"},
		},
		{
			name:     "prepositional mention drops the article",
			input:    "a smuggler working for the ember syndicate",
			expected: []string{"ember syndicate"},
		},
		{
			name:     "case-insensitive dedup keeps first casing",
			input:    `"Highmoor" lies near Highmoor`,
			expected: []string{"Highmoor"},
		},
		{
			name:     "no terms",
			input:    "hmm, ok",
			expected: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractSearchTerms(tt.input)
			if len(got) != len(tt.expected) {
				t.Fatalf("terms = %v, want %v", got, tt.expected)
			}
			for i := range tt.expected {
				if got[i] != tt.expected[i] {
					t.Fatalf("terms = %v, want %v", got, tt.expected)
				}
			}
		})
	}
}

func TestExtractSearchTermsCap(t *testing.T) {
	parts := []string{"Alpha", "Beta", "Gamma", "Delta", "Epsilon", "Zeta", "Theta", "Iota", "Kappa", "Lambda"}
	terms := ExtractSearchTerms(strings.Join(parts, ", "))
	if len(terms) != searchTermCap {
		t.Fatalf("terms = %v, want %d", terms, searchTermCap)
	}
}
