// Package remote implements the entry store against a lore server over MCP,
// for setups where the canon lives behind a central server instead of a
// local database. The server owns schema and slug assignment; this client
// only moves validated payloads back and forth.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"loreweave/internal/store"
)

type Client struct {
	session *sdk.ClientSession
	log     *zap.Logger
}

// New connects to a lore server. An http(s) DSN uses the streamable HTTP
// transport; anything else is run as a stdio server command line.
func New(ctx context.Context, dsn string, log *zap.Logger) (*Client, error) {
	if log == nil {
		log = zap.NewNop()
	}

	transport, err := transportFor(dsn)
	if err != nil {
		return nil, err
	}

	client := sdk.NewClient(&sdk.Implementation{Name: "loreweave", Version: "dev"}, nil)
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("connecting to lore server: %w", err)
	}

	return &Client{session: session, log: log}, nil
}

func transportFor(dsn string) (sdk.Transport, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("remote store requires a server URL or command")
	}
	if strings.HasPrefix(dsn, "http://") || strings.HasPrefix(dsn, "https://") {
		return &sdk.StreamableClientTransport{Endpoint: dsn}, nil
	}

	parts := strings.Fields(dsn)
	return &sdk.CommandTransport{Command: exec.Command(parts[0], parts[1:]...)}, nil
}

func (c *Client) Close(ctx context.Context) error {
	return c.session.Close()
}

// EnsureSchema is a no-op: the server owns its schema.
func (c *Client) EnsureSchema(ctx context.Context) error {
	return nil
}

// callTool invokes one server tool and returns its JSON payload. Tool errors
// and payload-free results both fail; callers never see a half response.
func (c *Client) callTool(ctx context.Context, name string, args map[string]any) (json.RawMessage, error) {
	result, err := c.session.CallTool(ctx, &sdk.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return nil, fmt.Errorf("calling %s: %w", name, err)
	}
	if result.IsError {
		return nil, fmt.Errorf("calling %s: %s", name, textContent(result))
	}

	if result.StructuredContent != nil {
		raw, err := json.Marshal(result.StructuredContent)
		if err != nil {
			return nil, fmt.Errorf("encoding %s result: %w", name, err)
		}
		return raw, nil
	}

	if text := textContent(result); text != "" {
		return json.RawMessage(text), nil
	}
	return nil, fmt.Errorf("calling %s: empty result", name)
}

func textContent(result *sdk.CallToolResult) string {
	for _, content := range result.Content {
		if text, ok := content.(*sdk.TextContent); ok {
			return text.Text
		}
	}
	return ""
}

func callTyped[T any](ctx context.Context, c *Client, name string, args map[string]any) (T, error) {
	var out T
	raw, err := c.callTool(ctx, name, args)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decoding %s result: %w", name, err)
	}
	return out, nil
}

func (c *Client) GetEntry(ctx context.Context, slug string) (*store.Entry, error) {
	entry, err := callTyped[*store.Entry](ctx, c, "get_entry", map[string]any{"slug": slug})
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			return nil, fmt.Errorf("getting entry %q: %w", slug, store.ErrNotFound)
		}
		return nil, err
	}
	return entry, nil
}

func (c *Client) SearchFulltext(ctx context.Context, query, entryType string, limit int) ([]store.SearchResult, error) {
	out, err := callTyped[struct {
		Results []store.SearchResult `json:"results"`
	}](ctx, c, "search_entries", map[string]any{
		"query": query, "type": entryType, "limit": limit,
	})
	if err != nil {
		return nil, err
	}
	return out.Results, nil
}

func (c *Client) ListOutgoingReferences(ctx context.Context, slug string) ([]store.Reference, error) {
	return c.listReferences(ctx, slug, "outgoing")
}

func (c *Client) ListIncomingReferences(ctx context.Context, slug string) ([]store.Reference, error) {
	return c.listReferences(ctx, slug, "incoming")
}

func (c *Client) listReferences(ctx context.Context, slug, direction string) ([]store.Reference, error) {
	out, err := callTyped[struct {
		References []store.Reference `json:"references"`
	}](ctx, c, "list_references", map[string]any{
		"slug": slug, "direction": direction,
	})
	if err != nil {
		return nil, err
	}
	return out.References, nil
}

func (c *Client) ListByParent(ctx context.Context, parentSlug, excludeSlug string, limit int) ([]store.Candidate, error) {
	out, err := callTyped[struct {
		Entries []store.Candidate `json:"entries"`
	}](ctx, c, "list_by_parent", map[string]any{
		"parent_slug": parentSlug, "exclude_slug": excludeSlug, "limit": limit,
	})
	if err != nil {
		return nil, err
	}
	return out.Entries, nil
}

func (c *Client) ListEntries(ctx context.Context, entryType, parentSlug string) ([]store.EntrySummary, error) {
	out, err := callTyped[struct {
		Entries []store.EntrySummary `json:"entries"`
	}](ctx, c, "list_entries", map[string]any{
		"type": entryType, "parent_slug": parentSlug,
	})
	if err != nil {
		return nil, err
	}
	return out.Entries, nil
}

func (c *Client) SlugExists(ctx context.Context, slug string) (bool, error) {
	out, err := callTyped[struct {
		Exists bool `json:"exists"`
	}](ctx, c, "slug_exists", map[string]any{"slug": slug})
	if err != nil {
		return false, err
	}
	return out.Exists, nil
}

// CreateEntry forwards the creation and returns the server's raw response.
// Shape validation is the approval gate's job, not this transport's.
func (c *Client) CreateEntry(ctx context.Context, input store.CreateEntryInput) (json.RawMessage, error) {
	args := map[string]any{
		"type":     input.Type,
		"name":     input.Name,
		"category": input.Category,
		"status":   input.Status,
		"summary":  input.Summary,
		"content":  input.Content,
	}
	if input.ParentSlug != "" {
		args["parent_slug"] = input.ParentSlug
	}
	if input.Metadata != nil {
		args["metadata"] = input.Metadata
	}
	if len(input.References) > 0 {
		args["references"] = input.References
	}
	return c.callTool(ctx, "create_entry", args)
}

func (c *Client) ValidateReferences(ctx context.Context, slug string) (*store.ReferenceReport, error) {
	return callTyped[*store.ReferenceReport](ctx, c, "validate_references", map[string]any{"slug": slug})
}
