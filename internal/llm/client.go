// Package llm provides minimal completion clients for the providers the
// command translator can run against. Anthropic is the default; OpenAI is
// selected via LLM_PROVIDER.
package llm

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

const envProvider = "LLM_PROVIDER" // "anthropic" or "openai"

// Client is a plain text-in/text-out completion client.
type Client interface {
	Generate(ctx context.Context, req Request) (Response, error)
	Name() string
}

// Request is a provider-neutral completion request.
type Request struct {
	System      string
	Messages    []Message
	Temperature float32
	MaxTokens   int
}

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Response carries the concatenated text output.
type Response struct {
	Text string
}

// NewClientFromEnv builds a client for the provider named in LLM_PROVIDER,
// defaulting to Anthropic.
func NewClientFromEnv(logger zerolog.Logger) (Client, error) {
	provider := strings.ToLower(strings.TrimSpace(os.Getenv(envProvider)))
	if provider == "" {
		provider = "anthropic"
	}
	switch provider {
	case "openai":
		return NewOpenAI(logger)
	case "anthropic":
		return NewAnthropic(logger)
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (use 'anthropic' or 'openai')", provider)
	}
}
