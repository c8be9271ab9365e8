// Package approve is the gate between a draft and canon. Nothing is written
// until the user says so, and nothing is reported as written until the
// creation response proves it.
package approve

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"loreweave/internal/draft"
	"loreweave/internal/extract"
	"loreweave/internal/lore"
	"loreweave/internal/store"
)

const summaryLen = 220

var approvalPhrases = []string{
	"approve", "approved", "looks good", "ship it", "save it", "commit it", "canon", "lock it in",
}

// IsApprovalMessage reports whether the message asks to persist the draft.
func IsApprovalMessage(message string) bool {
	normalized := strings.ToLower(strings.TrimSpace(message))
	for _, phrase := range approvalPhrases {
		if strings.Contains(normalized, phrase) {
			return true
		}
	}
	return false
}

// BuildCreatePayload turns a complete draft package into a creation request.
// It returns nil when required fields are missing or blank after trimming;
// an incomplete draft must never reach the store.
func BuildCreatePayload(pkg *lore.ContextPackage) *store.CreateEntryInput {
	if pkg == nil || len(pkg.MissingRequired) > 0 {
		return nil
	}
	fields := pkg.FilledFields

	// The name is normalized here as well as at extraction time, because a
	// model overlay can reintroduce quoting or a trailing relative clause.
	name := extract.NormalizeName(trimmedString(fields["name"]))
	category := trimmedString(fields["category"])
	status := trimmedString(fields["status"])
	content := trimmedString(fields["content"])
	if name == "" || category == "" || status == "" || content == "" {
		return nil
	}

	summary := trimmedString(fields["summary"])
	if summary == "" {
		summary = content
		if len(summary) > summaryLen {
			summary = summary[:summaryLen]
		}
	}

	metadata, _ := fields["metadata"].(map[string]any)

	input := &store.CreateEntryInput{
		Type:       pkg.EntryType,
		Name:       name,
		Category:   category,
		Status:     status,
		Summary:    summary,
		Content:    content,
		Metadata:   metadata,
		ParentSlug: trimmedString(fields["parent_slug"]),
		References: payloadReferences(fields["references"], pkg.SuggestedReferences),
	}
	return input
}

// payloadReferences prefers explicitly extracted references and falls back to
// the package's suggestions. Blank slugs are dropped; the relationship
// defaults to related_to.
func payloadReferences(extracted any, suggested []lore.SuggestedReference) []store.Reference {
	refs := coerceReferences(extracted)
	if len(refs) == 0 {
		for _, s := range suggested {
			if strings.TrimSpace(s.Slug) == "" {
				continue
			}
			refs = append(refs, store.Reference{
				TargetSlug: s.Slug,
				TargetType: s.Type,
			})
		}
	}

	out := make([]store.Reference, 0, len(refs))
	for _, ref := range refs {
		if strings.TrimSpace(ref.TargetSlug) == "" {
			continue
		}
		if ref.Relationship == "" {
			ref.Relationship = "related_to"
		}
		out = append(out, ref)
	}
	return out
}

// coerceReferences accepts both the typed slice extraction produces and the
// generic shape a draft takes after a JSON round trip through storage.
func coerceReferences(value any) []store.Reference {
	switch v := value.(type) {
	case []store.Reference:
		return append([]store.Reference(nil), v...)
	case []any:
		refs := make([]store.Reference, 0, len(v))
		for _, item := range v {
			obj, ok := item.(map[string]any)
			if !ok {
				continue
			}
			slug, _ := obj["target_slug"].(string)
			targetType, _ := obj["target_type"].(string)
			relationship, _ := obj["relationship"].(string)
			refs = append(refs, store.Reference{
				TargetSlug:   slug,
				TargetType:   targetType,
				Relationship: relationship,
			})
		}
		return refs
	}
	return nil
}

func trimmedString(value any) string {
	s, _ := value.(string)
	return strings.TrimSpace(s)
}

// ValidateCreationResponse checks the raw creation response and fails closed:
// unless the payload is a well-formed success envelope carrying an entry with
// an id and slug, the creation is treated as failed.
func ValidateCreationResponse(raw json.RawMessage) (*store.Entry, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("creation response is not a JSON object: %w", err)
	}
	if errRaw, ok := envelope["error"]; ok {
		return nil, fmt.Errorf("creation response reports an error: %s", string(errRaw))
	}

	entryRaw, ok := envelope["entry"]
	if !ok {
		return nil, fmt.Errorf("creation response has no entry")
	}
	var entry store.Entry
	if err := json.Unmarshal(entryRaw, &entry); err != nil {
		return nil, fmt.Errorf("creation response entry is malformed: %w", err)
	}
	if strings.TrimSpace(entry.ID) == "" || strings.TrimSpace(entry.Slug) == "" {
		return nil, fmt.Errorf("creation response entry has no id or slug")
	}
	return &entry, nil
}

// Creator is the slice of the entry store the gate needs.
type Creator interface {
	CreateEntry(ctx context.Context, input store.CreateEntryInput) (json.RawMessage, error)
}

// Result is the outcome of an approval attempt.
type Result struct {
	Created bool         `json:"created"`
	Entry   *store.Entry `json:"entry,omitempty"`
	Message string       `json:"message"`
}

// Gate persists approved drafts.
type Gate struct {
	db     Creator
	drafts *draft.Manager
	log    *zap.Logger
}

func NewGate(db Creator, drafts *draft.Manager, log *zap.Logger) *Gate {
	if log == nil {
		log = zap.NewNop()
	}
	return &Gate{db: db, drafts: drafts, log: log}
}

// Approve tries to persist the conversation's draft. The draft is cleared
// only after the creation response validates; on any failure it is retained
// so the user can fix and re-approve.
func (g *Gate) Approve(ctx context.Context, conversationID string) Result {
	pkg, err := g.drafts.Load(ctx, conversationID)
	if err != nil {
		g.log.Error("loading draft for approval failed",
			zap.String("conversation_id", conversationID), zap.Error(err))
		return Result{Message: "I couldn't load the draft. Please try again."}
	}
	if pkg == nil {
		return Result{Message: "There's no draft to save yet. Describe the entry first."}
	}

	input := BuildCreatePayload(pkg)
	if input == nil {
		msg := "The draft isn't complete yet."
		if len(pkg.MissingRequired) > 0 {
			msg = fmt.Sprintf("The draft still needs: %s.", strings.Join(pkg.MissingRequired, ", "))
		}
		return Result{Message: msg}
	}

	raw, err := g.db.CreateEntry(ctx, *input)
	if err != nil {
		g.log.Error("entry creation failed",
			zap.String("conversation_id", conversationID),
			zap.String("name", input.Name), zap.Error(err))
		return Result{Message: "Saving the entry failed. The draft is kept; try approving again."}
	}

	entry, err := ValidateCreationResponse(raw)
	if err != nil {
		g.log.Error("creation response rejected",
			zap.String("conversation_id", conversationID),
			zap.String("name", input.Name), zap.Error(err))
		return Result{Message: "Saving the entry failed. The draft is kept; try approving again."}
	}

	if err := g.drafts.Clear(ctx, conversationID); err != nil {
		g.log.Warn("clearing draft after creation failed",
			zap.String("conversation_id", conversationID), zap.Error(err))
	}

	return Result{
		Created: true,
		Entry:   entry,
		Message: fmt.Sprintf("Saved %s to the lore as %s.", entry.Name, entry.Slug),
	}
}
