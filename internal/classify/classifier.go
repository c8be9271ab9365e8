// Package classify decides whether a chat message is worldbuilding work and,
// if so, what the author is trying to do. A model call does the heavy lifting;
// a keyword heuristic answers when the model is unavailable, so classification
// itself never fails a turn.
package classify

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"loreweave/internal/llm"
	"loreweave/internal/schema"
)

// Intent values. Anything the model invents outside this set is coerced to
// IntentOther.
const (
	IntentCreate = "create"
	IntentUpdate = "update"
	IntentQuery  = "query"
	IntentOther  = "other"
)

const (
	historyWindow     = 8
	historySnippetLen = 220

	heuristicConfidence = 0.4
)

// Message is one prior conversation turn.
type Message struct {
	Role    string
	Content string
}

// IntentResult is the classifier's verdict on a single message.
type IntentResult struct {
	IsLoreRelated bool    `json:"is_lore_related"`
	IntentType    string  `json:"intent_type"`
	EntryType     string  `json:"entry_type,omitempty"`
	Confidence    float64 `json:"confidence"`
	Rationale     string  `json:"rationale,omitempty"`
}

type Classifier struct {
	model    llm.Completer
	registry *schema.Registry
	log      *zap.Logger
}

func New(model llm.Completer, registry *schema.Registry, log *zap.Logger) *Classifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Classifier{model: model, registry: registry, log: log}
}

// Classify returns an intent verdict for the message given recent history.
// It never returns an error: a failed or malformed model response falls back
// to the keyword heuristic.
func (c *Classifier) Classify(ctx context.Context, message string, history []Message) IntentResult {
	if c.model != nil {
		if result, err := c.classifyWithModel(ctx, message, history); err == nil {
			return result
		} else {
			c.log.Warn("intent model classification failed, using heuristic", zap.Error(err))
		}
	}
	return c.heuristic(message)
}

func (c *Classifier) classifyWithModel(ctx context.Context, message string, history []Message) (IntentResult, error) {
	systemPrompt := fmt.Sprintf(`You classify chat messages for a worldbuilding assistant.
Entry types: %s.
Respond with a JSON object:
{"is_lore_related": bool, "intent_type": "create"|"update"|"query"|"other", "entry_type": string or "", "confidence": number 0..1, "rationale": short string}
"create" means the user is describing new lore to record. "update" means changing existing lore. "query" means asking about existing lore.`,
		strings.Join(c.registry.Types(), ", "))

	userPrompt := "Message: " + message
	if summary := SummarizeHistory(history); summary != "" {
		userPrompt = "Recent conversation:\n" + summary + "\n\n" + userPrompt
	}

	raw, err := c.model.Complete(ctx, systemPrompt, userPrompt)
	if err != nil {
		return IntentResult{}, err
	}

	var result IntentResult
	if err := llm.DecodeObject(raw, &result); err != nil {
		return IntentResult{}, err
	}

	switch result.IntentType {
	case IntentCreate, IntentUpdate, IntentQuery:
	default:
		result.IntentType = IntentOther
	}
	if result.EntryType != "" {
		if _, err := c.registry.Get(result.EntryType); err != nil {
			result.EntryType = ""
		}
	}
	if result.Confidence < 0 {
		result.Confidence = 0
	}
	if result.Confidence > 1 {
		result.Confidence = 1
	}
	return result, nil
}

var loreTerms = []string{"npc", "faction", "location", "event", "culture", "lore", "worldbuilding", "canon"}
var createVerbs = []string{"create", "add", "make", "invent", "new"}
var updateVerbs = []string{"update", "change", "edit", "revise"}

// heuristic is the no-model fallback: keyword scan, fixed low confidence.
// Lore relevance comes from the fixed term set; the intent defaults to query
// and is promoted by a create or update verb, create winning a tie.
func (c *Classifier) heuristic(message string) IntentResult {
	lower := strings.ToLower(message)

	entryType := c.registry.MatchType(lower)
	loreRelated := containsAny(lower, loreTerms)

	intent := IntentQuery
	switch {
	case containsAny(lower, createVerbs):
		intent = IntentCreate
	case containsAny(lower, updateVerbs):
		intent = IntentUpdate
	}

	if !loreRelated {
		intent = IntentOther
	}

	return IntentResult{
		IsLoreRelated: loreRelated,
		IntentType:    intent,
		EntryType:     entryType,
		Confidence:    heuristicConfidence,
		Rationale:     "heuristic fallback",
	}
}

func containsAny(s string, markers []string) bool {
	for _, marker := range markers {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}

// SummarizeHistory condenses the last turns into "role: snippet" lines for
// prompt context.
func SummarizeHistory(history []Message) string {
	if len(history) == 0 {
		return ""
	}
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}

	lines := make([]string, 0, len(history))
	for _, msg := range history {
		content := strings.TrimSpace(msg.Content)
		if len(content) > historySnippetLen {
			content = content[:historySnippetLen]
		}
		lines = append(lines, msg.Role+": "+content)
	}
	return strings.Join(lines, "\n")
}
