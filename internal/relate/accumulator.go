package relate

import (
	"math"
	"sort"
	"strings"

	"loreweave/internal/store"
)

// RelatedEntry is one record nominated by at least one relatedness signal.
// Score is the maximum score across contributing signals; Reasons collects
// every distinct signal tag that nominated the entry.
type RelatedEntry struct {
	Slug     string   `json:"slug"`
	Name     string   `json:"name"`
	Type     string   `json:"type"`
	Category string   `json:"category"`
	Status   string   `json:"status"`
	Summary  string   `json:"summary"`
	Score    float64  `json:"score"`
	Reasons  []string `json:"reasons"`
}

// Accumulator merges signal candidates by slug: the maximum score wins and
// reason tags accumulate.
type Accumulator struct {
	entries map[string]*RelatedEntry
	order   []string
}

func NewAccumulator() *Accumulator {
	return &Accumulator{entries: map[string]*RelatedEntry{}}
}

// Add merges one candidate under the given score and reason tag.
func (a *Accumulator) Add(cand store.Candidate, score float64, reason string) {
	a.AddEntry(RelatedEntry{
		Slug:     cand.Slug,
		Name:     cand.Name,
		Type:     cand.Type,
		Category: cand.Category,
		Status:   cand.Status,
		Summary:  cand.Summary,
		Score:    score,
		Reasons:  []string{reason},
	})
}

// AddEntry merges an already-scored entry, keeping the max score and the
// union of reasons for a slug seen through multiple signals.
func (a *Accumulator) AddEntry(entry RelatedEntry) {
	entry.Score = roundScore(entry.Score)

	current, ok := a.entries[entry.Slug]
	if !ok {
		reasons := append([]string(nil), entry.Reasons...)
		entry.Reasons = reasons
		a.entries[entry.Slug] = &entry
		a.order = append(a.order, entry.Slug)
		return
	}

	if entry.Score > current.Score {
		current.Score = entry.Score
	}
	for _, reason := range entry.Reasons {
		if !containsString(current.Reasons, reason) {
			current.Reasons = append(current.Reasons, reason)
		}
	}
}

// Exclude drops the entry with the given slug, if present.
func (a *Accumulator) Exclude(slug string) {
	delete(a.entries, slug)
}

// Entries returns the merged entries sorted by descending score, ties broken
// by lowercase name.
func (a *Accumulator) Entries() []RelatedEntry {
	out := make([]RelatedEntry, 0, len(a.entries))
	for _, slug := range a.order {
		if entry, ok := a.entries[slug]; ok {
			out = append(out, *entry)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})

	return out
}

func roundScore(score float64) float64 {
	return math.Round(score*10000) / 10000
}

func containsString(values []string, v string) bool {
	for _, value := range values {
		if value == v {
			return true
		}
	}
	return false
}
