// Package turn coordinates one chat exchange: persist the user's message,
// augment it with lore context, merge the draft, answer, and gate approvals.
// The user's message is written before any model call so a model failure can
// never lose what the user typed.
package turn

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"loreweave/internal/approve"
	"loreweave/internal/classify"
	"loreweave/internal/draft"
	"loreweave/internal/llm"
	"loreweave/internal/lore"
	"loreweave/internal/orchestrator"
)

const titleTimeout = 20 * time.Second

// ConversationLog persists the transcript and conversation metadata.
type ConversationLog interface {
	AppendMessage(ctx context.Context, conversationID, role, content string) error
	SetTitle(ctx context.Context, conversationID, title string) error
}

// ChatModel produces the assistant's reply. Streaming stays behind this
// boundary.
type ChatModel interface {
	Reply(ctx context.Context, systemPrompt string, history []classify.Message, message string) (string, error)
}

// Result is everything one turn produced.
type Result struct {
	Reply     string                         `json:"reply"`
	Augmented *orchestrator.AugmentedContext `json:"augmented,omitempty"`
	Draft     *lore.ContextPackage           `json:"draft,omitempty"`
	Approval  *approve.Result                `json:"approval,omitempty"`
}

type Service struct {
	messages   ConversationLog
	augmenter  *orchestrator.Orchestrator
	drafts     *draft.Manager
	gate       *approve.Gate
	chat       ChatModel
	titleModel llm.TextCompleter
	log        *zap.Logger
}

func NewService(messages ConversationLog, augmenter *orchestrator.Orchestrator, drafts *draft.Manager,
	gate *approve.Gate, chat ChatModel, titleModel llm.TextCompleter, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		messages:   messages,
		augmenter:  augmenter,
		drafts:     drafts,
		gate:       gate,
		chat:       chat,
		titleModel: titleModel,
		log:        log,
	}
}

// HandleTurn runs one exchange. Only two things abort it: failing to persist
// the user's message, and the chat model failing to reply. Augmentation and
// draft merging degrade to an unaugmented turn.
func (s *Service) HandleTurn(ctx context.Context, conversationID, message string, history []classify.Message) (*Result, error) {
	if err := s.messages.AppendMessage(ctx, conversationID, "user", message); err != nil {
		return nil, fmt.Errorf("persisting user message: %w", err)
	}

	result := &Result{}

	if approve.IsApprovalMessage(message) {
		approval := s.gate.Approve(ctx, conversationID)
		result.Approval = &approval
		result.Reply = approval.Message
	} else {
		result.Augmented = s.augment(ctx, message, history)
		if result.Augmented != nil && result.Augmented.Package != nil {
			merged, err := s.drafts.MergeAndSave(ctx, conversationID, result.Augmented.Package)
			if err != nil {
				s.log.Error("draft merge failed",
					zap.String("conversation_id", conversationID), zap.Error(err))
				result.Draft = result.Augmented.Package
			} else {
				result.Draft = merged
			}
		}

		reply, err := s.chat.Reply(ctx, systemPrompt(result.Augmented), history, message)
		if err != nil {
			return nil, fmt.Errorf("generating reply: %w", err)
		}
		result.Reply = reply
	}

	if err := s.messages.AppendMessage(ctx, conversationID, "assistant", result.Reply); err != nil {
		s.log.Warn("persisting assistant message failed",
			zap.String("conversation_id", conversationID), zap.Error(err))
	}

	if len(history) == 0 && s.titleModel != nil {
		go s.autoTitle(conversationID, message, result.Reply)
	}

	return result, nil
}

// augment never lets a broken augmentation pipeline take the turn down.
func (s *Service) augment(ctx context.Context, message string, history []classify.Message) (augmented *orchestrator.AugmentedContext) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("augmentation panicked", zap.Any("panic", r))
			augmented = nil
		}
	}()

	augmented, err := s.augmenter.ProcessMessage(ctx, message, history)
	if err != nil {
		s.log.Error("augmentation failed", zap.Error(err))
		return nil
	}
	return augmented
}

// autoTitle names the conversation after its first exchange. It is detached
// from the turn: failures are logged and swallowed.
func (s *Service) autoTitle(conversationID, message, reply string) {
	ctx, cancel := context.WithTimeout(context.Background(), titleTimeout)
	defer cancel()

	title := llm.GenerateTitle(ctx, s.titleModel, message, reply)
	if err := s.messages.SetTitle(ctx, conversationID, title); err != nil {
		s.log.Warn("setting conversation title failed",
			zap.String("conversation_id", conversationID), zap.Error(err))
	}
}

func systemPrompt(augmented *orchestrator.AugmentedContext) string {
	if augmented == nil {
		return ""
	}
	prompt := augmented.SystemAppend
	if augmented.ContextBlock != "" {
		prompt += "\n\nContext:\n" + augmented.ContextBlock
	}
	return prompt
}
