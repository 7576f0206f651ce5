// Package llm provides language model clients for the supported providers.
package llm

import (
	"context"
	"time"

	"github.com/openvalet/valet/internal/config"
)

// Message is one turn of conversation context sent to the model.
type Message struct {
	Role    string // "user" or "assistant"
	Content string
}

// Request is a single completion request. History is replayed before the
// user message; the system prompt travels separately because providers
// differ in where it goes.
type Request struct {
	System  string
	History []Message
	User    string
}

// Client is the interface every provider implements. Complete returns the
// model's raw text response; the caller owns all parsing and validation.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// NewClient builds the configured provider client.
func NewClient(cfg config.LLMConfig) (Client, error) {
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	switch cfg.Provider {
	case "anthropic":
		return NewAnthropicClient(AnthropicOpts{
			APIKey:  cfg.AnthropicAPIKey,
			Model:   cfg.Model,
			Timeout: timeout,
		})
	default:
		return NewOpenAIClient(OpenAIOpts{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.Model,
			Timeout: timeout,
		})
	}
}
