package orchestrator

import (
	"context"
	"encoding/json"
	"testing"

	"loreweave/internal/classify"
	"loreweave/internal/extract"
	"loreweave/internal/lore"
	"loreweave/internal/relate"
	"loreweave/internal/schema"
	"loreweave/internal/store"
)

type emptyQuerier struct{}

func (emptyQuerier) GetEntry(ctx context.Context, slug string) (*store.Entry, error) {
	return nil, store.ErrNotFound
}

func (emptyQuerier) SearchFulltext(ctx context.Context, query, entryType string, limit int) ([]store.SearchResult, error) {
	return nil, nil
}

func (emptyQuerier) ListOutgoingReferences(ctx context.Context, slug string) ([]store.Reference, error) {
	return nil, nil
}

func (emptyQuerier) ListIncomingReferences(ctx context.Context, slug string) ([]store.Reference, error) {
	return nil, nil
}

func (emptyQuerier) ListByParent(ctx context.Context, parentSlug, excludeSlug string, limit int) ([]store.Candidate, error) {
	return nil, nil
}

func newTestOrchestrator() *Orchestrator {
	registry := schema.Builtin()
	db := emptyQuerier{}
	engine := relate.NewEngine(db, nil)
	extractor := extract.New(nil, registry, db, nil)
	builder := lore.NewBuilder(registry, extractor, engine, nil)
	classifier := classify.New(nil, registry, nil)
	return New(classifier, builder, registry, nil)
}

func TestProcessMessageIgnoresSmallTalk(t *testing.T) {
	o := newTestOrchestrator()

	augmented, err := o.ProcessMessage(context.Background(), "thanks, see you tomorrow", nil)
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if augmented != nil {
		t.Fatalf("small talk should not be augmented: %+v", augmented)
	}
}

func TestProcessMessageAugmentsLoreMessage(t *testing.T) {
	o := newTestOrchestrator()

	augmented, err := o.ProcessMessage(context.Background(),
		`Add a location called "Highmoor". It is an abandoned settlement.`, nil)
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if augmented == nil {
		t.Fatal("lore message should be augmented")
	}

	if augmented.EntryType != "location" {
		t.Fatalf("entry type = %q", augmented.EntryType)
	}
	if augmented.Intent.IntentType != classify.IntentCreate {
		t.Fatalf("intent = %+v", augmented.Intent)
	}
	if augmented.Package == nil || augmented.Package.FilledFields["name"] != "Highmoor" {
		t.Fatalf("package = %+v", augmented.Package)
	}
	if augmented.SystemAppend == "" {
		t.Fatal("system append missing")
	}

	var block map[string]any
	if err := json.Unmarshal([]byte(augmented.ContextBlock), &block); err != nil {
		t.Fatalf("context block is not JSON: %v", err)
	}
	if _, ok := block["context_package"]; !ok {
		t.Fatalf("context block = %v", block)
	}
}

type stubIntentModel struct{ response string }

func (s *stubIntentModel) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return s.response, nil
}

func TestProcessMessageAugmentsLoreVerdictWithOtherIntent(t *testing.T) {
	registry := schema.Builtin()
	db := emptyQuerier{}
	engine := relate.NewEngine(db, nil)
	extractor := extract.New(nil, registry, db, nil)
	builder := lore.NewBuilder(registry, extractor, engine, nil)
	model := &stubIntentModel{response: `{"is_lore_related": true, "intent_type": "other", "entry_type": "npc", "confidence": 0.6}`}
	o := New(classify.New(model, registry, nil), builder, registry, nil)

	augmented, err := o.ProcessMessage(context.Background(), "Hmm, Kara again", nil)
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if augmented == nil {
		t.Fatal("a lore-related verdict must be augmented even with an unclear intent")
	}
	if augmented.EntryType != "npc" || augmented.Package == nil {
		t.Fatalf("augmented = %+v", augmented)
	}
}

func TestProcessMessageAsksForTypeWhenUnknown(t *testing.T) {
	o := newTestOrchestrator()

	augmented, err := o.ProcessMessage(context.Background(),
		"Add new lore about the Silent Accord", nil)
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if augmented == nil {
		t.Fatal("lore message should be augmented even without a type")
	}
	if augmented.EntryType != "" || augmented.Package != nil {
		t.Fatalf("augmented = %+v", augmented)
	}
	if augmented.ContextBlock != "" {
		t.Fatalf("context block should be empty without a type: %q", augmented.ContextBlock)
	}
	if augmented.SystemAppend == "" {
		t.Fatal("fixed prompt should still be appended")
	}
}
