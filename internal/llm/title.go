package llm

import (
	"context"
	"strings"
)

const defaultTitle = "New Conversation"

const titleSystemPrompt = "You name conversations. Reply with a short title, " +
	"at most five words, no quotes, no trailing punctuation."

// TextCompleter produces free-form text rather than a JSON object.
type TextCompleter interface {
	CompleteText(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// GenerateTitle asks the model for a short conversation title based on the
// first exchange. Any failure falls back to a fixed default.
func GenerateTitle(ctx context.Context, model TextCompleter, userMessage, assistantReply string) string {
	prompt := "User: " + truncate(userMessage, 500) + "\nAssistant: " + truncate(assistantReply, 500)

	raw, err := model.CompleteText(ctx, titleSystemPrompt, prompt)
	if err != nil {
		return defaultTitle
	}

	title := strings.Trim(strings.TrimSpace(raw), "\"'")
	if title == "" {
		return defaultTitle
	}
	words := strings.Fields(title)
	if len(words) > 5 {
		words = words[:5]
	}
	return strings.Join(words, " ")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
