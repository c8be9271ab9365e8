package lore

import (
	"regexp"
	"strings"
)

const searchTermCap = 8

var (
	doubleQuotedTermRe = regexp.MustCompile(`"([^"]{2,80})"`)
	// The opening quote must not follow a word character, so apostrophes in
	// contractions never start a span.
	singleQuotedTermRe = regexp.MustCompile(`(?:^|[^\w])'([^']{2,80})'`)
	capitalizedRunRe   = regexp.MustCompile(`\b[A-Z][A-Za-z0-9'-]+(?:\s+[A-Z][A-Za-z0-9'-]+){0,2}\b`)
	prepositionTermRe  = regexp.MustCompile(`\b(?:in|at|from|near|for|with)\s+(?:[Tt]he\s+)?([A-Za-z][A-Za-z0-9' -]{1,60})`)
)

// ExtractSearchTerms pulls search-worthy phrases out of a message: quoted
// spans, runs of up to three capitalized words, and the objects of place and
// affiliation prepositions. Terms are deduplicated case-insensitively in
// extraction order, capped at 8.
func ExtractSearchTerms(message string) []string {
	var terms []string

	for _, m := range doubleQuotedTermRe.FindAllStringSubmatch(message, -1) {
		terms = append(terms, strings.TrimSpace(m[1]))
	}
	for _, m := range singleQuotedTermRe.FindAllStringSubmatch(message, -1) {
		terms = append(terms, strings.TrimSpace(m[1]))
	}
	for _, m := range capitalizedRunRe.FindAllString(message, -1) {
		terms = append(terms, strings.TrimSpace(m))
	}
	for _, m := range prepositionTermRe.FindAllStringSubmatch(message, -1) {
		terms = append(terms, strings.Trim(m[1], " .,!?:;"))
	}

	seen := map[string]struct{}{}
	out := make([]string, 0, searchTermCap)
	for _, term := range terms {
		if term == "" {
			continue
		}
		key := strings.ToLower(term)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, term)
		if len(out) == searchTermCap {
			break
		}
	}
	return out
}
