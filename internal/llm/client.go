// Package llm streams chat completions from the configured model provider.
// Clients speak server-sent events directly over net/http and deliver the
// response as incremental text fragments.
package llm

import (
	"context"
	"fmt"
	"time"

	"codementor/internal/config"
)

// ChatClient streams one chat completion. The content channel carries text
// fragments in arrival order and closes when the response ends; the error
// channel carries at most one error and also closes. A closed error channel
// with no error means the stream completed cleanly.
type ChatClient interface {
	StreamChat(ctx context.Context, systemPrompt, userPrompt string) (<-chan string, <-chan error)

	// Model returns the model identifier requests are sent to.
	Model() string
}

// NewClient builds the provider named in the config.
func NewClient(cfg config.ChatConfig, timeout time.Duration) (ChatClient, error) {
	switch cfg.Provider {
	case "anthropic":
		return NewAnthropicClient(cfg.APIKey, cfg.Model, cfg.BaseURL, timeout), nil
	case "gemini":
		return NewGeminiClient(cfg.APIKey, cfg.Model, cfg.BaseURL, timeout), nil
	default:
		return nil, fmt.Errorf("unknown chat provider %q", cfg.Provider)
	}
}

// ensureDeadline applies the client timeout when the caller brought no
// deadline of its own.
func ensureDeadline(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}
