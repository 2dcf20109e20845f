package advisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	DefaultBaseURL = "https://openrouter.ai/api/v1"
	DefaultModel   = "mistralai/mistral-7b-instruct:free"

	noAISuggestion = "Sorry, could not generate an AI suggestion."
)

// ErrNoKeys is returned when the AI client has no API key configured.
var ErrNoKeys = errors.New("advisor: OpenRouter API key not configured")

// ErrAllKeysFailed is returned when every configured key was rejected.
var ErrAllKeysFailed = errors.New("advisor: all OpenRouter keys failed or are exhausted")

// AIConfig configures the OpenRouter client.
type AIConfig struct {
	// Keys is tried in order until one succeeds.
	Keys       []string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// ParseKeys splits a comma-separated key list, dropping blanks.
func ParseKeys(raw string) []string {
	var keys []string
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// AIClient asks an OpenAI-compatible chat endpoint for short fixes.
type AIClient struct {
	clients []openai.Client
	model   string
	logger  *slog.Logger
}

// NewAIClient creates one openai-go client per key. Retries are disabled:
// a failing key moves on to the next one.
func NewAIClient(cfg AIConfig) *AIClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	c := &AIClient{model: cfg.Model, logger: cfg.Logger}
	for _, k := range cfg.Keys {
		opts := []option.RequestOption{
			option.WithAPIKey(k),
			option.WithBaseURL(cfg.BaseURL),
			option.WithMaxRetries(0),
		}
		if cfg.HTTPClient != nil {
			opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
		}
		c.clients = append(c.clients, openai.NewClient(opts...))
	}
	return c
}

// Suggest returns a one-line fix for the issue.
func (c *AIClient) Suggest(ctx context.Context, req SuggestRequest) (string, error) {
	if len(c.clients) == 0 {
		return "", ErrNoKeys
	}

	params := openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt(req))},
	}

	var lastErr error
	for i, client := range c.clients {
		resp, err := client.Chat.Completions.New(ctx, params)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			lastErr = err
			c.logger.Warn("advisor: OpenRouter key failed", "key_index", i, "error", err)
			continue
		}
		if len(resp.Choices) == 0 {
			return noAISuggestion, nil
		}
		if text := strings.TrimSpace(resp.Choices[0].Message.Content); text != "" {
			return text, nil
		}
		return noAISuggestion, nil
	}

	c.logger.Error("advisor: all API keys failed", "error", lastErr)
	return "", fmt.Errorf("%w: %v", ErrAllKeysFailed, lastErr)
}

func prompt(req SuggestRequest) string {
	return "You are an accessibility and UI/UX expert. Give a very brief fix (under 30 words).\n" +
		"Issue Type: " + req.IssueType + "\n" +
		"Severity: " + req.Severity + "\n" +
		"Description (short): " + shorten(req.IssueDescription, 100) + "\n" +
		"HTML Element (short): " + shorten(req.Element, 80) + "\n" +
		"Return only the recommendation."
}

// shorten bounds s to limit runes, appending an ellipsis when cut.
func shorten(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit]) + "…"
}
