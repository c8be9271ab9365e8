package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"loreweave/internal/extract"
	"loreweave/internal/lore"
	"loreweave/internal/relate"
	"loreweave/internal/schema"
	"loreweave/internal/store"
)

type mockStore struct {
	entryResult    *store.Entry
	entryErr       error
	searchResult   []store.SearchResult
	searchErr      error
	listResult     []store.EntrySummary
	listErr        error
	refsResult     []store.Reference
	refsErr        error
	parentResult   []store.Candidate
	existsResult   bool
	createResult   json.RawMessage
	createErr      error
	validateResult *store.ReferenceReport

	lastGetSlug       string
	lastSearchQuery   string
	lastSearchType    string
	lastSearchLimit   int
	lastListType      string
	lastListParent    string
	lastRefsSlug      string
	lastRefsIncoming  bool
	lastParentSlug    string
	lastParentExclude string
	lastCreateInput   store.CreateEntryInput
	lastValidateSlug  string
}

func (m *mockStore) Close(ctx context.Context) error        { return nil }
func (m *mockStore) EnsureSchema(ctx context.Context) error { return nil }

func (m *mockStore) GetEntry(ctx context.Context, slug string) (*store.Entry, error) {
	m.lastGetSlug = slug
	if m.entryErr != nil {
		return nil, m.entryErr
	}
	if m.entryResult == nil {
		return nil, store.ErrNotFound
	}
	return m.entryResult, nil
}

func (m *mockStore) SearchFulltext(ctx context.Context, query, entryType string, limit int) ([]store.SearchResult, error) {
	m.lastSearchQuery = query
	m.lastSearchType = entryType
	m.lastSearchLimit = limit
	return m.searchResult, m.searchErr
}

func (m *mockStore) ListOutgoingReferences(ctx context.Context, slug string) ([]store.Reference, error) {
	m.lastRefsSlug = slug
	m.lastRefsIncoming = false
	return m.refsResult, m.refsErr
}

func (m *mockStore) ListIncomingReferences(ctx context.Context, slug string) ([]store.Reference, error) {
	m.lastRefsSlug = slug
	m.lastRefsIncoming = true
	return m.refsResult, m.refsErr
}

func (m *mockStore) ListByParent(ctx context.Context, parentSlug, excludeSlug string, limit int) ([]store.Candidate, error) {
	m.lastParentSlug = parentSlug
	m.lastParentExclude = excludeSlug
	return m.parentResult, nil
}

func (m *mockStore) ListEntries(ctx context.Context, entryType, parentSlug string) ([]store.EntrySummary, error) {
	m.lastListType = entryType
	m.lastListParent = parentSlug
	return m.listResult, m.listErr
}

func (m *mockStore) SlugExists(ctx context.Context, slug string) (bool, error) {
	return m.existsResult, nil
}

func (m *mockStore) CreateEntry(ctx context.Context, input store.CreateEntryInput) (json.RawMessage, error) {
	m.lastCreateInput = input
	if m.createErr != nil {
		return nil, m.createErr
	}
	return m.createResult, nil
}

func (m *mockStore) ValidateReferences(ctx context.Context, slug string) (*store.ReferenceReport, error) {
	m.lastValidateSlug = slug
	if m.validateResult == nil {
		return &store.ReferenceReport{}, nil
	}
	return m.validateResult, nil
}

func newTestServer(db *mockStore) *Server {
	registry := schema.Builtin()
	engine := relate.NewEngine(db, nil)
	extractor := extract.New(nil, registry, db, nil)
	builder := lore.NewBuilder(registry, extractor, engine, nil)
	return NewServer(registry, db, engine, builder, "test", nil)
}

func TestGetEntry_NotFound(t *testing.T) {
	server := newTestServer(&mockStore{})

	_, _, err := server.handleGetEntry(context.Background(), nil, GetEntryInput{Slug: "missing"})
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestGetEntry_RequiresSlug(t *testing.T) {
	server := newTestServer(&mockStore{})

	_, _, err := server.handleGetEntry(context.Background(), nil, GetEntryInput{})
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestSearchEntries(t *testing.T) {
	db := &mockStore{
		searchResult: []store.SearchResult{
			{Candidate: store.Candidate{Slug: "highmoor", Name: "Highmoor", Type: "location"}, RankScore: 0.5},
		},
	}
	server := newTestServer(db)

	_, output, err := server.handleSearchEntries(context.Background(), nil,
		SearchEntriesInput{Query: "highmoor", Type: "location"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(output.Results) != 1 || output.Results[0].Slug != "highmoor" {
		t.Fatalf("unexpected search output: %+v", output)
	}
	if db.lastSearchQuery != "highmoor" || db.lastSearchType != "location" || db.lastSearchLimit != 10 {
		t.Fatalf("unexpected search params: %q %q %d", db.lastSearchQuery, db.lastSearchType, db.lastSearchLimit)
	}
}

func TestListEntries(t *testing.T) {
	db := &mockStore{
		listResult: []store.EntrySummary{
			{Candidate: store.Candidate{Slug: "kara", Name: "Kara", Type: "npc"}, UpdatedAt: "2026-01-01"},
		},
	}
	server := newTestServer(db)

	_, output, err := server.handleListEntries(context.Background(), nil,
		ListEntriesInput{Type: "npc", ParentSlug: "highmoor"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(output.Entries) != 1 || output.Entries[0].Slug != "kara" {
		t.Fatalf("unexpected list output: %+v", output)
	}
	if db.lastListType != "npc" || db.lastListParent != "highmoor" {
		t.Fatalf("unexpected list params")
	}
}

func TestCreateEntry(t *testing.T) {
	db := &mockStore{
		createResult: json.RawMessage(`{"entry": {"id": "abc", "slug": "kara", "name": "Kara"}, "warnings": ["reference target missing: ghost"]}`),
	}
	server := newTestServer(db)

	_, output, err := server.handleCreateEntry(context.Background(), nil, CreateEntryInput{
		Type: "npc", Name: "Kara", Category: "criminal", Status: "alive", Content: "Kara runs the docks.",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if output.Entry == nil || output.Entry.Slug != "kara" {
		t.Fatalf("unexpected create output: %+v", output)
	}
	if len(output.Warnings) != 1 {
		t.Fatalf("warnings = %v", output.Warnings)
	}
	if db.lastCreateInput.Name != "Kara" {
		t.Fatalf("unexpected create input: %+v", db.lastCreateInput)
	}
}

func TestCreateEntry_RequiresTypeAndName(t *testing.T) {
	server := newTestServer(&mockStore{})

	_, _, err := server.handleCreateEntry(context.Background(), nil, CreateEntryInput{Name: "Kara"})
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestGetSchema(t *testing.T) {
	server := newTestServer(&mockStore{})

	_, output, err := server.handleGetSchema(context.Background(), nil, GetSchemaInput{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(output.Types) != 5 {
		t.Fatalf("expected all five schemas, got %d", len(output.Types))
	}

	_, output, err = server.handleGetSchema(context.Background(), nil, GetSchemaInput{Type: "npc"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(output.Types) != 1 || output.Types[0].Type != "npc" {
		t.Fatalf("unexpected schema output: %+v", output)
	}

	if _, _, err := server.handleGetSchema(context.Background(), nil, GetSchemaInput{Type: "starship"}); err == nil {
		t.Fatalf("expected error for unknown type")
	}
}

func TestFindRelated(t *testing.T) {
	db := &mockStore{
		entryResult: &store.Entry{ID: "abc", Slug: "kara", Name: "Kara", Type: "npc"},
		refsResult:  []store.Reference{},
	}
	server := newTestServer(db)

	_, output, err := server.handleFindRelated(context.Background(), nil, FindRelatedInput{Slug: "kara"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(output.Related) != 0 {
		t.Fatalf("unexpected related output: %+v", output)
	}
}

func TestGetContextPackage(t *testing.T) {
	server := newTestServer(&mockStore{})

	_, output, err := server.handleGetContextPackage(context.Background(), nil, GetContextPackageInput{
		Message:   `Add a location called "Highmoor". It is an abandoned settlement.`,
		EntryType: "location",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if output.FilledFields["name"] != "Highmoor" {
		t.Fatalf("unexpected package: %+v", output.FilledFields)
	}

	if _, _, err := server.handleGetContextPackage(context.Background(), nil, GetContextPackageInput{Message: "hi"}); err == nil {
		t.Fatalf("expected error without entry_type")
	}
}

func TestGetContextPackageExistingSlug(t *testing.T) {
	db := &mockStore{
		entryResult: &store.Entry{ID: "1", Slug: "highmoor", Name: "Highmoor", Type: "location"},
	}
	server := newTestServer(db)

	_, _, err := server.handleGetContextPackage(context.Background(), nil, GetContextPackageInput{
		Message:      "More about the old keep",
		EntryType:    "location",
		ExistingSlug: "highmoor",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if db.lastGetSlug != "highmoor" {
		t.Fatalf("existing slug not expanded, last lookup = %q", db.lastGetSlug)
	}
}

func TestListReferences(t *testing.T) {
	db := &mockStore{
		refsResult: []store.Reference{{SourceSlug: "kara", TargetSlug: "highmoor", TargetType: "location", Relationship: "related_to"}},
	}
	server := newTestServer(db)

	_, output, err := server.handleListReferences(context.Background(), nil,
		ListReferencesInput{Slug: "kara", Direction: "incoming"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(output.References) != 1 || !db.lastRefsIncoming {
		t.Fatalf("unexpected references output: %+v", output)
	}

	if _, _, err := server.handleListReferences(context.Background(), nil,
		ListReferencesInput{Slug: "kara", Direction: "sideways"}); err == nil {
		t.Fatalf("expected error for bad direction")
	}
}

func TestValidateReferences(t *testing.T) {
	db := &mockStore{
		validateResult: &store.ReferenceReport{
			Broken: []store.Reference{{SourceSlug: "kara", TargetSlug: "ghost", TargetType: "npc", Relationship: "related_to"}},
		},
	}
	server := newTestServer(db)

	_, output, err := server.handleValidateReferences(context.Background(), nil, ValidateReferencesInput{Slug: "kara"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(output.Broken) != 1 || db.lastValidateSlug != "kara" {
		t.Fatalf("unexpected validate output: %+v", output)
	}
}
