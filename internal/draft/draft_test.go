package draft

import (
	"fmt"
	"reflect"
	"testing"

	"loreweave/internal/lore"
	"loreweave/internal/relate"
	"loreweave/internal/schema"
)

func npcSchema(t *testing.T) *schema.Schema {
	t.Helper()
	sch, err := schema.Builtin().Get("npc")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	return sch
}

func pkg(t *testing.T, fields map[string]any) *lore.ContextPackage {
	t.Helper()
	sch := npcSchema(t)
	return &lore.ContextPackage{
		EntryType:       "npc",
		Schema:          sch,
		FilledFields:    fields,
		MissingRequired: lore.MissingRequired(sch, fields),
	}
}

func TestMergeNilIdentity(t *testing.T) {
	p := pkg(t, map[string]any{"type": "npc"})

	if got := Merge(nil, p); got != p {
		t.Fatal("Merge(nil, p) should return p")
	}
	if got := Merge(p, nil); got != p {
		t.Fatal("Merge(p, nil) should return p")
	}
	if got := Merge(nil, nil); got != nil {
		t.Fatal("Merge(nil, nil) should be nil")
	}
}

func TestMergeAccumulatesFieldsAcrossTurns(t *testing.T) {
	first := pkg(t, map[string]any{
		"type":    "npc",
		"name":    "Kara",
		"content": "Kara runs the docks.",
		"metadata": map[string]any{
			"role": "smuggler",
		},
	})
	second := pkg(t, map[string]any{
		"type":     "npc",
		"category": "criminal",
		"status":   "alive",
		"content":  "Kara runs the docks and owes the Ember Court.",
		"metadata": map[string]any{
			"faction_slug": "ember-court",
		},
	})

	merged := Merge(first, second)

	if merged.FilledFields["name"] != "Kara" {
		t.Fatalf("name lost in merge: %v", merged.FilledFields)
	}
	if merged.FilledFields["category"] != "criminal" {
		t.Fatalf("category = %v", merged.FilledFields["category"])
	}
	if merged.FilledFields["content"] != "Kara runs the docks and owes the Ember Court." {
		t.Fatalf("later content should win: %v", merged.FilledFields["content"])
	}

	metadata, _ := merged.FilledFields["metadata"].(map[string]any)
	if metadata["role"] != "smuggler" || metadata["faction_slug"] != "ember-court" {
		t.Fatalf("metadata union broken: %v", metadata)
	}

	if len(merged.MissingRequired) != 0 {
		t.Fatalf("missing = %v, want none after both turns", merged.MissingRequired)
	}
}

func TestMergeRecomputesMissingRequired(t *testing.T) {
	first := pkg(t, map[string]any{"type": "npc", "name": "Kara"})
	second := pkg(t, map[string]any{"type": "npc", "status": "alive"})

	merged := Merge(first, second)

	for _, field := range merged.MissingRequired {
		if field == "name" || field == "status" {
			t.Fatalf("field %q wrongly missing after merge", field)
		}
	}
	found := false
	for _, field := range merged.MissingRequired {
		if field == "category" {
			found = true
		}
	}
	if !found {
		t.Fatalf("category should still be missing: %v", merged.MissingRequired)
	}
}

func TestMergeRelatedKeepsHighestScoreAndCaps(t *testing.T) {
	var prevRelated, curRelated []relate.RelatedEntry
	for i := 0; i < 8; i++ {
		prevRelated = append(prevRelated, relate.RelatedEntry{
			Slug: fmt.Sprintf("prev-%d", i), Name: fmt.Sprintf("P%d", i),
			Score: 0.5, Reasons: []string{"search_match:old"},
		})
	}
	curRelated = append(curRelated,
		relate.RelatedEntry{Slug: "prev-0", Name: "P0", Score: 0.9, Reasons: []string{"direct_reference"}},
		relate.RelatedEntry{Slug: "new-1", Name: "N1", Score: 0.8, Reasons: []string{"referenced_by"}},
		relate.RelatedEntry{Slug: "new-2", Name: "N2", Score: 0.7, Reasons: []string{"shared_parent"}},
		relate.RelatedEntry{Slug: "new-3", Name: "N3", Score: 0.6, Reasons: []string{"shared_reference"}},
	)

	first := pkg(t, map[string]any{"type": "npc"})
	first.RelatedEntries = prevRelated
	second := pkg(t, map[string]any{"type": "npc"})
	second.RelatedEntries = curRelated

	merged := Merge(first, second)

	if len(merged.RelatedEntries) != relatedCap {
		t.Fatalf("related count = %d, want %d", len(merged.RelatedEntries), relatedCap)
	}
	top := merged.RelatedEntries[0]
	if top.Slug != "prev-0" || top.Score != 0.9 {
		t.Fatalf("top related = %+v, want prev-0 at 0.9", top)
	}
	if len(top.Reasons) != 2 {
		t.Fatalf("reasons not unioned: %v", top.Reasons)
	}
}

func TestMergeReferencesDeduplicateAndCap(t *testing.T) {
	first := pkg(t, map[string]any{"type": "npc"})
	second := pkg(t, map[string]any{"type": "npc"})

	for i := 0; i < 6; i++ {
		first.SuggestedReferences = append(first.SuggestedReferences,
			lore.SuggestedReference{Slug: fmt.Sprintf("a-%d", i), Type: "location", Reason: "context_match"})
	}
	second.SuggestedReferences = []lore.SuggestedReference{
		{Slug: "a-0", Type: "location", Reason: "direct_reference"},
		{Slug: "b-0", Type: "faction", Reason: "context_match"},
		{Slug: "b-1", Type: "faction", Reason: "context_match"},
		{Slug: "b-2", Type: "faction", Reason: "context_match"},
	}

	merged := Merge(first, second)

	if len(merged.SuggestedReferences) != referenceCap {
		t.Fatalf("reference count = %d, want %d", len(merged.SuggestedReferences), referenceCap)
	}
	if merged.SuggestedReferences[0].Slug != "a-0" {
		t.Fatalf("earlier suggestion should keep its place: %+v", merged.SuggestedReferences[0])
	}
	seen := map[string]int{}
	for _, ref := range merged.SuggestedReferences {
		seen[ref.Slug+"/"+ref.Type]++
	}
	for key, count := range seen {
		if count > 1 {
			t.Fatalf("duplicate reference %s", key)
		}
	}
}

func TestMergeQuestionsUnion(t *testing.T) {
	first := pkg(t, map[string]any{"type": "npc"})
	first.FollowUpQuestions = []string{"Can you provide the name?", "Can you provide the status?"}
	second := pkg(t, map[string]any{"type": "npc"})
	second.FollowUpQuestions = []string{"Can you provide the status?", "Can you provide the category?"}

	merged := Merge(first, second)

	want := []string{
		"Can you provide the name?",
		"Can you provide the status?",
		"Can you provide the category?",
	}
	if len(merged.FollowUpQuestions) != len(want) {
		t.Fatalf("questions = %v", merged.FollowUpQuestions)
	}
	for i := range want {
		if merged.FollowUpQuestions[i] != want[i] {
			t.Fatalf("questions = %v, want %v", merged.FollowUpQuestions, want)
		}
	}
}

func TestMergeIsAssociative(t *testing.T) {
	a := pkg(t, map[string]any{"type": "npc", "name": "Kara"})
	b := pkg(t, map[string]any{"type": "npc", "category": "criminal", "name": "Kara the Red"})
	c := pkg(t, map[string]any{"type": "npc", "status": "alive", "content": "Kara runs the docks."})

	left := Merge(Merge(a, b), c)
	right := Merge(a, Merge(b, c))

	if !reflect.DeepEqual(left.FilledFields, right.FilledFields) {
		t.Fatalf("filled fields diverge:\n%v\n%v", left.FilledFields, right.FilledFields)
	}
	if !reflect.DeepEqual(left.MissingRequired, right.MissingRequired) {
		t.Fatalf("missing required diverges:\n%v\n%v", left.MissingRequired, right.MissingRequired)
	}
	if left.FilledFields["name"] != "Kara the Red" {
		t.Fatalf("later name should win: %v", left.FilledFields["name"])
	}
	if len(left.MissingRequired) != 0 {
		t.Fatalf("missing = %v, want none after all three turns", left.MissingRequired)
	}
}

func TestMergeIsIdempotent(t *testing.T) {
	p := pkg(t, map[string]any{"type": "npc", "name": "Kara"})
	p.FollowUpQuestions = []string{"Can you provide the status?"}

	once := Merge(nil, p)
	twice := Merge(once, p)

	if twice.FilledFields["name"] != "Kara" {
		t.Fatalf("fields changed: %v", twice.FilledFields)
	}
	if len(twice.FollowUpQuestions) != 1 {
		t.Fatalf("questions duplicated: %v", twice.FollowUpQuestions)
	}
	if len(twice.MissingRequired) != len(once.MissingRequired) {
		t.Fatalf("missing drifted: %v vs %v", twice.MissingRequired, once.MissingRequired)
	}
}
