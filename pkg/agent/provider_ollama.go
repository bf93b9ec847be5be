package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
)

const ollamaDefaultURL = "http://localhost:11434"

// OllamaSettings are the provider.settings keys understood by Ollama.
type OllamaSettings struct {
	KeepAlive time.Duration  `mapstructure:"keep_alive"`
	Options   map[string]any `mapstructure:"options"`
}

// OllamaProvider implements LLMProvider for a local Ollama server
type OllamaProvider struct {
	client   *api.Client
	settings OllamaSettings
}

// NewOllamaProvider creates a provider for the Ollama server at baseURL.
func NewOllamaProvider(baseURL string, settings OllamaSettings) (*OllamaProvider, error) {
	if baseURL == "" {
		baseURL = ollamaDefaultURL
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Ollama URL: %w", err)
	}
	return &OllamaProvider{
		client:   api.NewClient(parsed, http.DefaultClient),
		settings: settings,
	}, nil
}

// Provider returns the provider name
func (p *OllamaProvider) Provider() string {
	return "ollama"
}

// Call makes a chat request to Ollama. Ollama has no parallel tool call
// switch; extra calls are dropped by the router.
func (p *OllamaProvider) Call(ctx context.Context, request LLMRequest) (*LLMResponse, error) {
	tools, err := ollamaTools(request.Tools)
	if err != nil {
		return nil, err
	}
	messages, err := ollamaMessages(request)
	if err != nil {
		return nil, err
	}

	stream := request.Stream
	req := &api.ChatRequest{
		Model:    request.Model,
		Messages: messages,
		Tools:    tools,
		Stream:   &stream,
		Options:  map[string]any{},
	}
	for k, v := range p.settings.Options {
		req.Options[k] = v
	}
	if request.Temperature > 0 {
		req.Options["temperature"] = request.Temperature
	}
	if request.MaxTokens > 0 {
		req.Options["num_predict"] = request.MaxTokens
	}
	if p.settings.KeepAlive > 0 {
		req.KeepAlive = &api.Duration{Duration: p.settings.KeepAlive}
	}

	var content strings.Builder
	var toolCalls []ToolCall
	usage := &TokenUsage{}

	respFunc := func(resp api.ChatResponse) error {
		if resp.Message.Content != "" {
			content.WriteString(resp.Message.Content)
			request.emit(StreamDelta{Kind: DeltaText, Text: resp.Message.Content})
		}
		for _, call := range resp.Message.ToolCalls {
			args, err := json.Marshal(call.Function.Arguments)
			if err != nil {
				return fmt.Errorf("failed to encode tool arguments: %w", err)
			}
			tc := ToolCall{ID: newToolCallID(), Name: call.Function.Name, Arguments: args}
			toolCalls = append(toolCalls, tc)

			// Ollama delivers complete calls, so each one is a full start/args/end burst.
			request.emit(StreamDelta{Kind: DeltaToolStart, ToolCallID: tc.ID, ToolName: tc.Name})
			request.emit(StreamDelta{Kind: DeltaToolArgs, ToolCallID: tc.ID, Arguments: string(args)})
			request.emit(StreamDelta{Kind: DeltaToolEnd, ToolCallID: tc.ID, ToolName: tc.Name})
		}
		if resp.Done {
			usage.InputTokens = resp.PromptEvalCount
			usage.OutputTokens = resp.EvalCount
		}
		return nil
	}

	if err := p.client.Chat(ctx, req, respFunc); err != nil {
		return nil, fmt.Errorf("ollama chat error: %w", err)
	}

	return &LLMResponse{
		Content:   content.String(),
		ToolCalls: toolCalls,
		Usage:     usage,
	}, nil
}

func ollamaMessages(request LLMRequest) ([]api.Message, error) {
	out := make([]api.Message, 0, len(request.Messages)+1)
	if request.SystemPrompt != "" {
		out = append(out, api.Message{Role: RoleSystem, Content: request.SystemPrompt})
	}
	for _, msg := range request.Messages {
		m := api.Message{Role: msg.Role, Content: msg.Content}
		for _, tc := range msg.ToolCalls {
			var args api.ToolCallFunctionArguments
			if err := json.Unmarshal([]byte(argumentsText(tc.Arguments)), &args); err != nil {
				return nil, fmt.Errorf("failed to decode tool arguments for %s: %w", tc.Name, err)
			}
			m.ToolCalls = append(m.ToolCalls, api.ToolCall{
				Function: api.ToolCallFunction{Name: tc.Name, Arguments: args},
			})
		}
		out = append(out, m)
	}
	return out, nil
}

// ollamaTools converts schemas through their JSON form, which api.Tool
// decodes with its own property types.
func ollamaTools(schemas []ToolSchema) ([]api.Tool, error) {
	if len(schemas) == 0 {
		return nil, nil
	}
	tools := make([]api.Tool, 0, len(schemas))
	for _, s := range schemas {
		data, err := json.Marshal(map[string]interface{}{
			"type": "function",
			"function": map[string]interface{}{
				"name":        s.Name,
				"description": s.Description,
				"parameters":  s.Parameters,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to encode tool %s: %w", s.Name, err)
		}
		var tool api.Tool
		if err := json.Unmarshal(data, &tool); err != nil {
			return nil, fmt.Errorf("failed to convert tool %s: %w", s.Name, err)
		}
		tools = append(tools, tool)
	}
	return tools, nil
}
