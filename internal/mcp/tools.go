package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"loreweave/internal/lore"
	"loreweave/internal/relate"
	"loreweave/internal/schema"
	"loreweave/internal/store"
)

type CreateEntryInput struct {
	Type       string            `json:"type" jsonschema:"entry type (location, faction, npc, event, culture)"`
	Name       string            `json:"name" jsonschema:"display name"`
	Category   string            `json:"category" jsonschema:"category from the type's vocabulary"`
	Status     string            `json:"status" jsonschema:"status from the type's vocabulary"`
	Summary    string            `json:"summary,omitempty" jsonschema:"one-line summary"`
	Content    string            `json:"content,omitempty" jsonschema:"full markdown content"`
	ParentSlug string            `json:"parent_slug,omitempty" jsonschema:"slug of the parent entry"`
	Metadata   map[string]any    `json:"metadata,omitempty" jsonschema:"type-specific metadata"`
	References []store.Reference `json:"references,omitempty" jsonschema:"references to other entries"`
}

type GetEntryInput struct {
	Slug string `json:"slug" jsonschema:"entry slug"`
}

type SearchEntriesInput struct {
	Query string `json:"query" jsonschema:"search terms"`
	Type  string `json:"type,omitempty" jsonschema:"restrict to one entry type"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum results"`
}

type ListEntriesInput struct {
	Type       string `json:"type,omitempty" jsonschema:"entry type filter"`
	ParentSlug string `json:"parent_slug,omitempty" jsonschema:"parent slug filter"`
}

type FindRelatedInput struct {
	Slug  string `json:"slug" jsonschema:"entry to find relations for"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum results"`
}

type GetSchemaInput struct {
	Type string `json:"type,omitempty" jsonschema:"one entry type, or empty for all"`
}

type GetContextPackageInput struct {
	Message      string `json:"message" jsonschema:"the user's message"`
	EntryType    string `json:"entry_type" jsonschema:"entry type the message is about"`
	ExistingSlug string `json:"existing_slug,omitempty" jsonschema:"entry being updated, expands its related lore"`
}

type ValidateReferencesInput struct {
	Slug string `json:"slug,omitempty" jsonschema:"restrict the check to one entry"`
}

type ListReferencesInput struct {
	Slug      string `json:"slug" jsonschema:"entry slug"`
	Direction string `json:"direction,omitempty" jsonschema:"outgoing or incoming"`
}

type ListByParentInput struct {
	ParentSlug  string `json:"parent_slug" jsonschema:"parent entry slug"`
	ExcludeSlug string `json:"exclude_slug,omitempty" jsonschema:"slug to leave out"`
	Limit       int    `json:"limit,omitempty" jsonschema:"maximum results"`
}

type SlugExistsInput struct {
	Slug string `json:"slug" jsonschema:"slug to check"`
}

type SearchEntriesOutput struct {
	Results []store.SearchResult `json:"results"`
}

type ListEntriesOutput struct {
	Entries []store.EntrySummary `json:"entries"`
}

type FindRelatedOutput struct {
	Related []relate.RelatedEntry `json:"related"`
}

type GetSchemaOutput struct {
	Types []schema.Schema `json:"types"`
}

type ListReferencesOutput struct {
	References []store.Reference `json:"references"`
}

type ListByParentOutput struct {
	Entries []store.Candidate `json:"entries"`
}

type SlugExistsOutput struct {
	Exists bool `json:"exists"`
}

func (s *Server) registerTools() {
	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "create_entry",
		Description: "Create a lore entry with taxonomy validation and references",
	}, s.handleCreateEntry)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "get_entry",
		Description: "Retrieve a lore entry by slug",
	}, s.handleGetEntry)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "search_entries",
		Description: "Full-text search over lore entries",
	}, s.handleSearchEntries)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "list_entries",
		Description: "List lore entries with optional type and parent filters",
	}, s.handleListEntries)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "find_related",
		Description: "Rank entries related to one entry across reference, hierarchy and text signals",
	}, s.handleFindRelated)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "get_schema",
		Description: "Return the entry type schemas",
	}, s.handleGetSchema)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "get_context_package",
		Description: "Assemble extraction, related lore and follow-up questions for a message",
	}, s.handleGetContextPackage)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "validate_references",
		Description: "Report valid, broken and orphaned references",
	}, s.handleValidateReferences)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "list_references",
		Description: "List an entry's outgoing or incoming references",
	}, s.handleListReferences)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "list_by_parent",
		Description: "List entries under a parent entry",
	}, s.handleListByParent)

	sdk.AddTool(s.mcp, &sdk.Tool{
		Name:        "slug_exists",
		Description: "Check whether a slug is taken",
	}, s.handleSlugExists)
}

func (s *Server) handleCreateEntry(ctx context.Context, req *sdk.CallToolRequest, input CreateEntryInput) (*sdk.CallToolResult, store.CreateEntryResponse, error) {
	if input.Type == "" || input.Name == "" {
		return nil, store.CreateEntryResponse{}, fmt.Errorf("type and name are required")
	}

	raw, err := s.db.CreateEntry(ctx, store.CreateEntryInput{
		Type:       input.Type,
		Name:       input.Name,
		Category:   input.Category,
		Status:     input.Status,
		Summary:    input.Summary,
		Content:    input.Content,
		ParentSlug: input.ParentSlug,
		Metadata:   input.Metadata,
		References: input.References,
	})
	if err != nil {
		return nil, store.CreateEntryResponse{}, err
	}

	var response store.CreateEntryResponse
	if err := json.Unmarshal(raw, &response); err != nil {
		return nil, store.CreateEntryResponse{}, fmt.Errorf("decoding creation response: %w", err)
	}
	return nil, response, nil
}

func (s *Server) handleGetEntry(ctx context.Context, req *sdk.CallToolRequest, input GetEntryInput) (*sdk.CallToolResult, store.Entry, error) {
	if input.Slug == "" {
		return nil, store.Entry{}, fmt.Errorf("slug is required")
	}
	entry, err := s.db.GetEntry(ctx, input.Slug)
	if err != nil {
		return nil, store.Entry{}, err
	}
	return nil, *entry, nil
}

func (s *Server) handleSearchEntries(ctx context.Context, req *sdk.CallToolRequest, input SearchEntriesInput) (*sdk.CallToolResult, SearchEntriesOutput, error) {
	if input.Query == "" {
		return nil, SearchEntriesOutput{}, fmt.Errorf("query is required")
	}
	limit := input.Limit
	if limit == 0 {
		limit = 10
	}
	results, err := s.db.SearchFulltext(ctx, input.Query, input.Type, limit)
	if err != nil {
		return nil, SearchEntriesOutput{}, err
	}
	return nil, SearchEntriesOutput{Results: results}, nil
}

func (s *Server) handleListEntries(ctx context.Context, req *sdk.CallToolRequest, input ListEntriesInput) (*sdk.CallToolResult, ListEntriesOutput, error) {
	entries, err := s.db.ListEntries(ctx, input.Type, input.ParentSlug)
	if err != nil {
		return nil, ListEntriesOutput{}, err
	}
	return nil, ListEntriesOutput{Entries: entries}, nil
}

func (s *Server) handleFindRelated(ctx context.Context, req *sdk.CallToolRequest, input FindRelatedInput) (*sdk.CallToolResult, FindRelatedOutput, error) {
	if input.Slug == "" {
		return nil, FindRelatedOutput{}, fmt.Errorf("slug is required")
	}
	limit := input.Limit
	if limit == 0 {
		limit = 10
	}
	related, err := s.engine.FindRelated(ctx, input.Slug, limit)
	if err != nil {
		return nil, FindRelatedOutput{}, err
	}
	return nil, FindRelatedOutput{Related: related}, nil
}

func (s *Server) handleGetSchema(ctx context.Context, req *sdk.CallToolRequest, input GetSchemaInput) (*sdk.CallToolResult, GetSchemaOutput, error) {
	names := s.registry.Types()
	if input.Type != "" {
		names = []string{input.Type}
	}

	out := GetSchemaOutput{Types: make([]schema.Schema, 0, len(names))}
	for _, name := range names {
		sch, err := s.registry.Get(name)
		if err != nil {
			return nil, GetSchemaOutput{}, err
		}
		out.Types = append(out.Types, *sch)
	}
	return nil, out, nil
}

func (s *Server) handleGetContextPackage(ctx context.Context, req *sdk.CallToolRequest, input GetContextPackageInput) (*sdk.CallToolResult, lore.ContextPackage, error) {
	if input.Message == "" || input.EntryType == "" {
		return nil, lore.ContextPackage{}, fmt.Errorf("message and entry_type are required")
	}
	pkg, err := s.builder.Build(ctx, input.Message, input.EntryType, input.ExistingSlug)
	if err != nil {
		return nil, lore.ContextPackage{}, err
	}
	return nil, *pkg, nil
}

func (s *Server) handleValidateReferences(ctx context.Context, req *sdk.CallToolRequest, input ValidateReferencesInput) (*sdk.CallToolResult, store.ReferenceReport, error) {
	report, err := s.db.ValidateReferences(ctx, input.Slug)
	if err != nil {
		return nil, store.ReferenceReport{}, err
	}
	return nil, *report, nil
}

func (s *Server) handleListReferences(ctx context.Context, req *sdk.CallToolRequest, input ListReferencesInput) (*sdk.CallToolResult, ListReferencesOutput, error) {
	if input.Slug == "" {
		return nil, ListReferencesOutput{}, fmt.Errorf("slug is required")
	}

	var refs []store.Reference
	var err error
	switch input.Direction {
	case "", "outgoing":
		refs, err = s.db.ListOutgoingReferences(ctx, input.Slug)
	case "incoming":
		refs, err = s.db.ListIncomingReferences(ctx, input.Slug)
	default:
		return nil, ListReferencesOutput{}, fmt.Errorf("direction must be outgoing or incoming")
	}
	if err != nil {
		return nil, ListReferencesOutput{}, err
	}
	return nil, ListReferencesOutput{References: refs}, nil
}

func (s *Server) handleListByParent(ctx context.Context, req *sdk.CallToolRequest, input ListByParentInput) (*sdk.CallToolResult, ListByParentOutput, error) {
	if input.ParentSlug == "" {
		return nil, ListByParentOutput{}, fmt.Errorf("parent_slug is required")
	}
	limit := input.Limit
	if limit == 0 {
		limit = 30
	}
	entries, err := s.db.ListByParent(ctx, input.ParentSlug, input.ExcludeSlug, limit)
	if err != nil {
		return nil, ListByParentOutput{}, err
	}
	return nil, ListByParentOutput{Entries: entries}, nil
}

func (s *Server) handleSlugExists(ctx context.Context, req *sdk.CallToolRequest, input SlugExistsInput) (*sdk.CallToolResult, SlugExistsOutput, error) {
	if input.Slug == "" {
		return nil, SlugExistsOutput{}, fmt.Errorf("slug is required")
	}
	exists, err := s.db.SlugExists(ctx, input.Slug)
	if err != nil {
		return nil, SlugExistsOutput{}, err
	}
	return nil, SlugExistsOutput{Exists: exists}, nil
}
