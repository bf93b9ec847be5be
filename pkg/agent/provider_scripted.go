package agent

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrScriptExhausted is returned when a ScriptedProvider runs out of steps.
var ErrScriptExhausted = errors.New("scripted provider: no more responses")

// ScriptStep is one canned provider reply.
type ScriptStep struct {
	Response *LLMResponse
	Err      error

	// Delay holds the call open, honouring ctx cancellation.
	Delay time.Duration

	// Deltas are emitted when the request streams. When nil, deltas are
	// derived from Response.
	Deltas []StreamDelta
}

// ScriptedProvider replays canned responses in order and records requests.
// It is exported for the tests of packages that drive a Runner.
type ScriptedProvider struct {
	mu       sync.Mutex
	steps    []ScriptStep
	requests []LLMRequest
}

func NewScriptedProvider(steps ...ScriptStep) *ScriptedProvider {
	return &ScriptedProvider{steps: steps}
}

// Reply is shorthand for a step returning content and tool calls.
func Reply(content string, calls ...ToolCall) ScriptStep {
	return ScriptStep{Response: &LLMResponse{Content: content, ToolCalls: calls}}
}

func (p *ScriptedProvider) Provider() string {
	return "scripted"
}

func (p *ScriptedProvider) Call(ctx context.Context, request LLMRequest) (*LLMResponse, error) {
	p.mu.Lock()
	p.requests = append(p.requests, request)
	if len(p.steps) == 0 {
		p.mu.Unlock()
		return nil, ErrScriptExhausted
	}
	step := p.steps[0]
	p.steps = p.steps[1:]
	p.mu.Unlock()

	if step.Delay > 0 {
		timer := time.NewTimer(step.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	if step.Err != nil {
		return nil, step.Err
	}

	if request.Stream {
		deltas := step.Deltas
		if deltas == nil && step.Response != nil {
			deltas = deltasFor(step.Response)
		}
		for _, d := range deltas {
			request.emit(d)
		}
	}

	if step.Response == nil {
		return &LLMResponse{}, nil
	}
	resp := *step.Response
	resp.ToolCalls = append([]ToolCall(nil), step.Response.ToolCalls...)
	return &resp, nil
}

// Requests returns the requests received so far.
func (p *ScriptedProvider) Requests() []LLMRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]LLMRequest(nil), p.requests...)
}

// Remaining returns the number of unused steps.
func (p *ScriptedProvider) Remaining() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.steps)
}

func deltasFor(resp *LLMResponse) []StreamDelta {
	var out []StreamDelta
	if resp.Content != "" {
		out = append(out, StreamDelta{Kind: DeltaText, Text: resp.Content})
	}
	for _, tc := range resp.ToolCalls {
		out = append(out,
			StreamDelta{Kind: DeltaToolStart, ToolCallID: tc.ID, ToolName: tc.Name},
			StreamDelta{Kind: DeltaToolArgs, ToolCallID: tc.ID, Arguments: string(tc.Arguments)},
			StreamDelta{Kind: DeltaToolEnd, ToolCallID: tc.ID, ToolName: tc.Name},
		)
	}
	return out
}
