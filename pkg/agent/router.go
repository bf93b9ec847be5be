package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/harun/agentbridge/internal/observability"
	"github.com/harun/agentbridge/internal/tracing"
	"github.com/harun/agentbridge/pkg/coretools"
	"github.com/harun/agentbridge/pkg/errorsx"
	"github.com/harun/agentbridge/pkg/imagecatalog"
	"github.com/harun/agentbridge/pkg/statestream"
	"github.com/harun/agentbridge/pkg/toolexecutor"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

const tracerName = "agentbridge.agent"

// Signal tells the caller whether to run another turn.
type Signal string

const (
	SignalFollowUp Signal = "follow_up"
	SignalEnd      Signal = "end"
)

// Tool results appended after a state applier succeeds.
const (
	resultRecipeUpdated  = "Recipe updated."
	resultStepsUpdated   = "Steps updated."
	resultHaikuGenerated = "Haiku generated."
)

// Tool call outcomes reported to metrics.
const (
	outcomeCallerAction = "caller_action"
	outcomeApplied      = "applied"
	outcomeExecuted     = "executed"
	outcomeRejected     = "rejected"
	outcomeUnknown      = "unknown"
)

// TurnResult is the outcome of one router turn. Err is set when the turn
// ended on a recovered failure; read its code with Reason.
type TurnResult struct {
	Signal   Signal
	ToolCall *ToolCall
	Err      error
}

// RouterConfig holds router dependencies.
type RouterConfig struct {
	Provider LLMProvider

	// Executor runs local tools. Defaults to the core tool executor.
	Executor *toolexecutor.ToolExecutor

	// Catalog lists haiku images. Defaults to imagecatalog.Default().
	Catalog *imagecatalog.Catalog

	Model           string
	Temperature     float64
	MaxTokens       int
	Stream          bool
	ProviderTimeout time.Duration
	Features        coretools.Features

	Sink   EventSink
	Logger zerolog.Logger
}

// Router runs single turns against a conversation state.
type Router struct {
	provider        LLMProvider
	executor        *toolexecutor.ToolExecutor
	catalog         *imagecatalog.Catalog
	model           string
	temperature     float64
	maxTokens       int
	stream          bool
	providerTimeout time.Duration
	features        coretools.Features
	sink            EventSink
	logger          zerolog.Logger
}

// NewRouter creates a router.
func NewRouter(cfg RouterConfig) (*Router, error) {
	observability.EnsureRegistered()

	if cfg.Provider == nil {
		return nil, fmt.Errorf("provider is required")
	}

	executor := cfg.Executor
	if executor == nil {
		var err error
		executor, err = coretools.NewExecutor()
		if err != nil {
			return nil, fmt.Errorf("failed to create tool executor: %w", err)
		}
	}

	catalog := cfg.Catalog
	if catalog == nil {
		catalog = imagecatalog.Default()
	}

	sink := cfg.Sink
	if sink == nil {
		sink = nopSink{}
	}

	return &Router{
		provider:        cfg.Provider,
		executor:        executor,
		catalog:         catalog,
		model:           cfg.Model,
		temperature:     cfg.Temperature,
		maxTokens:       cfg.MaxTokens,
		stream:          cfg.Stream,
		providerTimeout: cfg.ProviderTimeout,
		features:        cfg.Features,
		sink:            sink,
		logger:          cfg.Logger,
	}, nil
}

// WithSink returns a copy of the router that emits to sink.
func (r *Router) WithSink(sink EventSink) *Router {
	clone := *r
	if sink == nil {
		sink = nopSink{}
	}
	clone.sink = sink
	return &clone
}

// Tools returns the tool list offered to the model: caller actions first,
// then registry tools whose names the caller did not claim.
func (r *Router) Tools(state *AgentState) []ToolSchema {
	registry := coretools.Schemas(r.features)
	tools := make([]ToolSchema, 0, len(state.Actions)+len(registry))
	seen := make(map[string]bool, cap(tools))
	for _, a := range state.Actions {
		if seen[a.Name] {
			continue
		}
		seen[a.Name] = true
		tools = append(tools, a)
	}
	for _, t := range registry {
		if seen[t.Name] {
			continue
		}
		seen[t.Name] = true
		tools = append(tools, t)
	}
	return tools
}

// Turn runs one model turn and applies its outcome to state.
func (r *Router) Turn(ctx context.Context, state *AgentState) TurnResult {
	ctx, span := tracing.StartSpan(ctx, tracerName, "agent.turn",
		attribute.String("provider", r.provider.Provider()),
		attribute.Int("turn", tracing.GetTurn(ctx)),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, r.logger)

	result := r.turn(ctx, state, logger)

	reason := ""
	if result.Err != nil {
		reason = string(Reason(result.Err))
		tracing.RecordError(span, result.Err)
		logger.Warn().Err(result.Err).Str("reason", reason).Msg("Turn ended with error")
	}
	span.SetAttributes(attribute.String("signal", string(result.Signal)))
	if result.ToolCall != nil {
		span.SetAttributes(attribute.String("tool", result.ToolCall.Name))
	}
	observability.RecordTurn(string(result.Signal), reason)

	r.sink.Emit(Event{
		Type:     EventMessagesSnapshot,
		ThreadID: tracing.GetThreadID(ctx),
		RunID:    tracing.GetRunID(ctx),
		Messages: state.Snapshot().Messages,
	})
	return result
}

func (r *Router) turn(ctx context.Context, state *AgentState, logger zerolog.Logger) TurnResult {
	prompt, err := BuildSystemPrompt(state, PromptOptions{Recipe: r.features.Recipe, Catalog: r.catalog})
	if err != nil {
		return TurnResult{Signal: SignalEnd, Err: errorsx.Wrap(err, errorsx.ReasonProviderSetup)}
	}

	messageID := newMessageID()
	resp, err := r.call(ctx, state, prompt, messageID)
	if err != nil {
		return TurnResult{Signal: SignalEnd, Err: err}
	}

	assistant := Message{ID: messageID, Role: RoleAssistant, Content: resp.Content}
	if len(resp.ToolCalls) > 1 {
		dropped := make([]string, 0, len(resp.ToolCalls)-1)
		for _, tc := range resp.ToolCalls[1:] {
			dropped = append(dropped, tc.Name)
		}
		logger.Debug().Strs("dropped", dropped).Msg("Ignoring extra tool calls")
	}
	if len(resp.ToolCalls) > 0 {
		call := resp.ToolCalls[0]
		if call.ID == "" {
			call.ID = newToolCallID()
		}
		assistant.ToolCalls = []ToolCall{call}
	}
	state.appendMessage(assistant)

	if len(assistant.ToolCalls) == 0 {
		return TurnResult{Signal: SignalEnd}
	}

	call := assistant.ToolCalls[0]
	result := r.dispatch(ctx, state, call, logger)
	result.ToolCall = &call
	return result
}

// call invokes the provider bounded by the provider timeout.
func (r *Router) call(ctx context.Context, state *AgentState, prompt, messageID string) (*LLMResponse, error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "agent.provider_call",
		attribute.String("provider", r.provider.Provider()),
		attribute.String("model", r.model),
	)
	defer span.End()

	callCtx := ctx
	if r.providerTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.providerTimeout)
		defer cancel()
	}

	request := LLMRequest{
		Model:             r.model,
		SystemPrompt:      prompt,
		Messages:          state.Snapshot().Messages,
		Tools:             r.Tools(state),
		Temperature:       r.temperature,
		MaxTokens:         r.maxTokens,
		ParallelToolCalls: false,
		Stream:            r.stream,
	}
	if r.stream {
		request.OnDelta = r.deltaHandler(ctx, messageID)
	}

	start := time.Now()
	resp, err := r.provider.Call(callCtx, request)
	observability.RecordProviderCall(r.provider.Provider(), time.Since(start), err == nil && resp != nil)

	switch {
	case err == nil && resp == nil:
		err = errorsx.Wrap(fmt.Errorf("provider %s returned no response", r.provider.Provider()), errorsx.ReasonProviderCall)
	case err == nil:
		return resp, nil
	case ctx.Err() != nil:
		err = errorsx.Wrap(fmt.Errorf("provider call cancelled: %w", err), errorsx.ReasonCancelled)
	case errors.Is(callCtx.Err(), context.DeadlineExceeded):
		err = errorsx.Wrap(fmt.Errorf("provider call timed out after %v: %w", r.providerTimeout, err), errorsx.ReasonProviderTimeout)
	default:
		err = errorsx.Wrap(fmt.Errorf("provider call failed: %w", err), errorsx.ReasonProviderCall)
	}
	tracing.RecordError(span, err)
	return nil, err
}

// deltaHandler turns provider fragments into run events. Only the first
// tool call of a response is streamed; it is the only one processed.
func (r *Router) deltaHandler(ctx context.Context, messageID string) func(StreamDelta) {
	threadID := tracing.GetThreadID(ctx)
	runID := tracing.GetRunID(ctx)

	var predictor *statestream.Predictor
	if r.features.Recipe {
		predictor = statestream.NewPredictor(statestream.Rule{
			StateKey:     "recipe",
			ToolName:     coretools.GenerateRecipe.String(),
			ToolArgument: "recipe",
		})
	}
	firstCall := ""

	return func(d StreamDelta) {
		base := Event{ThreadID: threadID, RunID: runID, MessageID: messageID}

		if d.Kind == DeltaText {
			base.Type = EventTextDelta
			base.Delta = d.Text
			r.sink.Emit(base)
			return
		}

		if firstCall == "" && d.Kind == DeltaToolStart {
			firstCall = d.ToolCallID
		}
		if d.ToolCallID != firstCall {
			return
		}
		base.ToolCallID = d.ToolCallID
		base.ToolCallName = d.ToolName

		switch d.Kind {
		case DeltaToolStart:
			base.Type = EventToolCallStart
			r.sink.Emit(base)
			if predictor != nil {
				predictor.Start(d.ToolCallID, d.ToolName)
			}
		case DeltaToolArgs:
			base.Type = EventToolCallArgs
			base.Delta = d.Arguments
			r.sink.Emit(base)
			if predictor == nil {
				return
			}
			if snap, ok := predictor.Append(d.ToolCallID, d.Arguments); ok {
				r.sink.Emit(Event{
					Type:       EventStateSnapshot,
					ThreadID:   threadID,
					RunID:      runID,
					ToolCallID: snap.ToolCallID,
					Snapshot:   snap.State,
				})
			}
		case DeltaToolEnd:
			base.Type = EventToolCallEnd
			r.sink.Emit(base)
			if predictor != nil {
				predictor.End(d.ToolCallID)
			}
		}
	}
}

func (r *Router) dispatch(ctx context.Context, state *AgentState, call ToolCall, logger zerolog.Logger) TurnResult {
	logger = logger.With().Str("tool", call.Name).Str("tool_call_id", call.ID).Logger()

	if state.IsAction(call.Name) {
		observability.RecordToolCall(call.Name, outcomeCallerAction)
		logger.Debug().Msg("Tool call handed back to caller")
		return TurnResult{Signal: SignalEnd}
	}

	switch coretools.ToolName(call.Name) {
	case coretools.GenerateRecipe:
		if r.features.Recipe {
			return r.apply(ctx, state, call, logger, func() (stateChange, error) {
				recipe, err := ParseRecipe(call.Arguments, state.Recipe)
				if err != nil {
					return stateChange{}, err
				}
				fields := recipeChanges(state.Recipe, recipe)
				state.Recipe = recipe
				return stateChange{result: resultRecipeUpdated, key: "recipe", fields: fields}, nil
			})
		}
	case coretools.GenerateTaskSteps:
		return r.apply(ctx, state, call, logger, func() (stateChange, error) {
			steps, err := ParseTaskSteps(call.Arguments)
			if err != nil {
				return stateChange{}, err
			}
			state.Steps = steps
			return stateChange{result: resultStepsUpdated, key: "steps"}, nil
		})
	case coretools.GenerateHaiku:
		return r.apply(ctx, state, call, logger, func() (stateChange, error) {
			haiku, err := ParseHaiku(call.Arguments, r.catalog)
			if err != nil {
				return stateChange{}, err
			}
			state.Haiku = haiku
			return stateChange{result: resultHaikuGenerated, key: "haiku"}, nil
		})
	}

	if r.executor.Has(call.Name) {
		return r.execute(ctx, state, call, logger)
	}

	observability.RecordToolCall(call.Name, outcomeUnknown)
	return TurnResult{
		Signal: SignalEnd,
		Err:    errorsx.Wrap(&UnknownToolError{Name: call.Name}, errorsx.ReasonUnknownTool),
	}
}

// stateChange describes what a successful applier wrote.
type stateChange struct {
	result string
	key    string
	// fields lists the changed sub-fields of key, when tracked.
	fields []string
}

// apply runs a state applier. The applier mutates state only on success.
func (r *Router) apply(ctx context.Context, state *AgentState, call ToolCall, logger zerolog.Logger, applier func() (stateChange, error)) TurnResult {
	threadID := tracing.GetThreadID(ctx)

	change, err := applier()
	if err != nil {
		observability.RecordToolCall(call.Name, outcomeRejected)
		observability.RecordStateAudit(ctx, call.Name, threadID, "rejected", map[string]interface{}{
			"tool_call_id": call.ID,
			"error":        err.Error(),
		})
		return TurnResult{Signal: SignalEnd, Err: err}
	}

	metadata := map[string]interface{}{
		"tool_call_id": call.ID,
		"keys":         []string{change.key},
	}
	if len(change.fields) > 0 {
		metadata["fields"] = change.fields
	}
	observability.RecordToolCall(call.Name, outcomeApplied)
	observability.RecordStateAudit(ctx, call.Name, threadID, "applied", metadata)
	logger.Info().Str("key", change.key).Strs("fields", change.fields).Msg("State updated from tool call")

	state.appendMessage(Message{Role: RoleTool, Content: change.result, ToolCallID: call.ID})
	r.emitState(ctx, state)
	return TurnResult{Signal: SignalFollowUp}
}

func (r *Router) execute(ctx context.Context, state *AgentState, call ToolCall, logger zerolog.Logger) TurnResult {
	callCtx := toolexecutor.WithCallInfo(ctx, &toolexecutor.CallInfo{
		ThreadID:   tracing.GetThreadID(ctx),
		RunID:      tracing.GetRunID(ctx),
		ToolCallID: call.ID,
	})

	output, err := r.executor.Execute(callCtx, call.Name, call.Arguments)
	if err != nil {
		observability.RecordToolCall(call.Name, outcomeRejected)
		var paramErr *toolexecutor.ParameterError
		if errors.As(err, &paramErr) {
			fields := make([]FieldError, 0, len(paramErr.Problems))
			for _, p := range paramErr.Problems {
				fields = append(fields, FieldError{Field: rootField, Message: p})
			}
			return TurnResult{Signal: SignalEnd, Err: invalid(call.Name, fields...)}
		}
		return TurnResult{Signal: SignalEnd, Err: errorsx.Wrap(err, errorsx.ReasonToolExecution)}
	}

	observability.RecordToolCall(call.Name, outcomeExecuted)
	logger.Debug().Int("output_len", len(output)).Msg("Local tool executed")
	state.appendMessage(Message{Role: RoleTool, Content: output, ToolCallID: call.ID})
	return TurnResult{Signal: SignalFollowUp}
}

func (r *Router) emitState(ctx context.Context, state *AgentState) {
	snap := state.Snapshot()
	data, err := json.Marshal(struct {
		Proverbs []string   `json:"proverbs"`
		Steps    []TaskStep `json:"steps"`
		Haiku    *Haiku     `json:"haiku,omitempty"`
		Recipe   *Recipe    `json:"recipe,omitempty"`
	}{snap.Proverbs, snap.Steps, snap.Haiku, snap.Recipe})
	if err != nil {
		return
	}
	r.sink.Emit(Event{
		Type:     EventStateSnapshot,
		ThreadID: tracing.GetThreadID(ctx),
		RunID:    tracing.GetRunID(ctx),
		Snapshot: data,
	})
}
