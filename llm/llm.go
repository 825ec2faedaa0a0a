// Package llm adapts language-model providers to the agentruntime.Model interface.
package llm

import (
	"fmt"
	"strings"

	"github.com/boat-builder/agentruntime"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"

	DefaultBaseURL        = "https://api.novita.ai/v3/openai"
	DefaultModel          = "deepseek/deepseek-v3.1-terminus"
	DefaultAnthropicModel = "claude-sonnet-4-20250514"
	DefaultMaxTokens      = 4096
)

type Config struct {
	Provider  string
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int64
	// SendIdentifiers adds the session and turn IDs to OpenAI-compatible request bodies, for
	// gateways that attribute usage per conversation.
	SendIdentifiers bool
}

// New builds the Model for cfg.Provider. An empty provider means an OpenAI-compatible endpoint.
func New(cfg Config) (agentruntime.Model, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderOpenAI:
		return NewOpenAI(cfg), nil
	case ProviderAnthropic:
		return NewAnthropic(cfg), nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
	}
}
