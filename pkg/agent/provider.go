package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/harun/agentbridge/internal/config"
)

// LLMProvider is an interface for LLM API providers
type LLMProvider interface {
	// Call makes an LLM API call
	Call(ctx context.Context, request LLMRequest) (*LLMResponse, error)

	// Provider returns the provider name
	Provider() string
}

// LLMRequest contains the request parameters for LLM call
type LLMRequest struct {
	Model             string
	SystemPrompt      string
	Messages          []Message
	Tools             []ToolSchema
	Temperature       float64
	MaxTokens         int
	ParallelToolCalls bool
	Stream            bool

	// OnDelta, when set, receives streaming fragments as they arrive.
	OnDelta func(StreamDelta)
}

// DeltaKind tags a streaming fragment.
type DeltaKind string

const (
	DeltaText      DeltaKind = "text"
	DeltaToolStart DeltaKind = "tool_start"
	DeltaToolArgs  DeltaKind = "tool_args"
	DeltaToolEnd   DeltaKind = "tool_end"
)

// StreamDelta is one streaming fragment of a provider response.
type StreamDelta struct {
	Kind       DeltaKind
	Text       string
	ToolCallID string
	ToolName   string
	Arguments  string
}

// LLMResponse contains the response from LLM
type LLMResponse struct {
	Content   string
	ToolCalls []ToolCall
	Usage     *TokenUsage
}

// TokenUsage tracks token consumption
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

func (r LLMRequest) emit(d StreamDelta) {
	if r.OnDelta != nil {
		r.OnDelta(d)
	}
}

// NewProvider creates a provider from configuration.
func NewProvider(cfg config.ProviderConfig) (LLMProvider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Type)) {
	case "openai":
		return NewOpenAIProvider(cfg.APIKey, cfg.BaseURL), nil
	case "anthropic":
		return NewAnthropicProvider(cfg.APIKey, cfg.BaseURL), nil
	case "ollama":
		var settings OllamaSettings
		if err := config.DecodeSettings(cfg.Settings, &settings); err != nil {
			return nil, fmt.Errorf("invalid ollama settings: %w", err)
		}
		return NewOllamaProvider(cfg.BaseURL, settings)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Type)
	}
}
