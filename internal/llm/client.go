// Package llm is a thin client for an OpenRouter-compatible chat-completions
// endpoint. Every call carries a bounded timeout so a slow model degrades a
// turn instead of hanging it.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Completer is the single-call surface the classifier and extractor consume.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

type Options struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration

	// Referer and Title are forwarded as the HTTP-Referer and X-Title
	// headers some routers use for attribution.
	Referer string
	Title   string
}

type Client struct {
	opts Options
	http *http.Client
	log  *zap.Logger
}

func NewClient(opts Options, log *zap.Logger) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://openrouter.ai/api/v1"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		opts: opts,
		http: &http.Client{Timeout: opts.Timeout},
		log:  log,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error,omitempty"`
}

// Complete sends one system+user exchange and returns the raw content of the
// first choice. The request asks for a JSON object response.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return c.complete(ctx, systemPrompt, userPrompt, &responseFormat{Type: "json_object"})
}

// CompleteText is Complete without the JSON response contract.
func (c *Client) CompleteText(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return c.complete(ctx, systemPrompt, userPrompt, nil)
}

func (c *Client) complete(ctx context.Context, systemPrompt, userPrompt string, format *responseFormat) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	messages := make([]chatMessage, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: userPrompt})

	body, err := json.Marshal(chatRequest{
		Model:          c.opts.Model,
		Messages:       messages,
		ResponseFormat: format,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling chat request: %w", err)
	}

	url := strings.TrimSuffix(c.opts.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
	if c.opts.Referer != "" {
		req.Header.Set("HTTP-Referer", c.opts.Referer)
	}
	if c.opts.Title != "" {
		req.Header.Set("X-Title", c.opts.Title)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat completion request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("reading chat response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("chat completion status %d", resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("parsing chat response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("chat completion error %d: %s", parsed.Error.Code, parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("empty chat completion response")
	}

	content := parsed.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("blank chat completion content")
	}

	c.log.Debug("chat completion",
		zap.String("model", c.opts.Model),
		zap.Duration("elapsed", time.Since(start)))

	return content, nil
}
