// Package orchestrator turns a raw chat message into augmented model context:
// classify the intent, assemble the context package, and render the prompt
// additions the chat model needs to act as a worldbuilding assistant.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"loreweave/internal/classify"
	"loreweave/internal/lore"
	"loreweave/internal/schema"
)

const systemAppend = `You are assisting with collaborative worldbuilding. ` +
	`A context block follows with the draft entry so far, related existing lore, ` +
	`and open questions. Weave related lore into your replies, ask the open ` +
	`questions naturally, and never invent details that contradict existing entries. ` +
	`Entries are only saved when the user explicitly approves.`

// AugmentedContext is what a lore-related message adds to the chat prompt.
type AugmentedContext struct {
	SystemAppend string                `json:"system_append"`
	ContextBlock string                `json:"context_block"`
	Package      *lore.ContextPackage  `json:"package,omitempty"`
	Intent       classify.IntentResult `json:"intent"`
	EntryType    string                `json:"entry_type,omitempty"`
}

type Orchestrator struct {
	classifier *classify.Classifier
	builder    *lore.Builder
	registry   *schema.Registry
	log        *zap.Logger
}

func New(classifier *classify.Classifier, builder *lore.Builder, registry *schema.Registry, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{classifier: classifier, builder: builder, registry: registry, log: log}
}

// ProcessMessage augments a message with lore context. It returns nil for
// messages that are not worldbuilding work; the chat proceeds unaugmented.
func (o *Orchestrator) ProcessMessage(ctx context.Context, message string, history []classify.Message) (*AugmentedContext, error) {
	intent := o.classifier.Classify(ctx, message, history)
	if !intent.IsLoreRelated {
		return nil, nil
	}

	entryType := intent.EntryType
	if entryType == "" {
		entryType = o.registry.MatchType(message)
	}
	if entryType == "" {
		// Lore-related but the type is unclear. Augment with the fixed prompt
		// only; the assistant asks rather than guesses.
		return &AugmentedContext{SystemAppend: systemAppend, Intent: intent}, nil
	}

	pkg, err := o.builder.Build(ctx, message, entryType, "")
	if err != nil {
		return nil, fmt.Errorf("processing message: %w", err)
	}

	block, err := renderContextBlock(intent, entryType, pkg)
	if err != nil {
		return nil, fmt.Errorf("rendering context block: %w", err)
	}

	o.log.Debug("message augmented",
		zap.String("intent", intent.IntentType),
		zap.String("entry_type", entryType),
		zap.Int("related_entries", len(pkg.RelatedEntries)),
		zap.Int("missing_required", len(pkg.MissingRequired)))

	return &AugmentedContext{
		SystemAppend: systemAppend,
		ContextBlock: block,
		Package:      pkg,
		Intent:       intent,
		EntryType:    entryType,
	}, nil
}

func renderContextBlock(intent classify.IntentResult, entryType string, pkg *lore.ContextPackage) (string, error) {
	block, err := json.Marshal(map[string]any{
		"worldbuilding_mode": true,
		"entry_type":         entryType,
		"intent":             intent,
		"context_package":    pkg,
	})
	if err != nil {
		return "", err
	}
	return string(block), nil
}
