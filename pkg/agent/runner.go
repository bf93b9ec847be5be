package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/harun/agentbridge/internal/config"
	"github.com/harun/agentbridge/internal/observability"
	"github.com/harun/agentbridge/internal/tracing"
	"github.com/harun/agentbridge/pkg/coretools"
	"github.com/harun/agentbridge/pkg/errorsx"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// DefaultMaxTurns bounds a run when no limit is configured.
const DefaultMaxTurns = 10

// Runner drives a Router until it signals end.
type Runner struct {
	router   *Router
	maxTurns int
	logger   zerolog.Logger
}

// Config holds runner configuration
type Config struct {
	Router   *Router
	MaxTurns int
	Logger   zerolog.Logger
}

// RunResult summarizes a finished run.
type RunResult struct {
	ThreadID string
	RunID    string
	Turns    int
	Signal   Signal

	// LastCall is the tool call processed by the final turn, if any.
	LastCall *ToolCall

	// Err is the recovered error of the final turn.
	Err error
}

// NewRunner creates a new agent runner
func NewRunner(cfg Config) (*Runner, error) {
	observability.EnsureRegistered()

	if cfg.Router == nil {
		return nil, fmt.Errorf("router is required")
	}
	maxTurns := cfg.MaxTurns
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &Runner{
		router:   cfg.Router,
		maxTurns: maxTurns,
		logger:   cfg.Logger,
	}, nil
}

// RouterConfigFrom maps process configuration onto router settings. The
// caller supplies the provider, catalog, sink and logger.
func RouterConfigFrom(cfg *config.Config) RouterConfig {
	return RouterConfig{
		Model:           cfg.Provider.Model,
		Temperature:     cfg.Provider.Temperature,
		MaxTokens:       cfg.Provider.MaxTokens,
		Stream:          cfg.Agent.Stream,
		ProviderTimeout: cfg.Agent.ProviderTimeout,
		Features:        coretools.Features{Recipe: cfg.Agent.Features.Recipe},
	}
}

// WithSink returns a runner whose router emits to sink.
func (r *Runner) WithSink(sink EventSink) *Runner {
	clone := *r
	clone.router = r.router.WithSink(sink)
	return &clone
}

// Router returns the underlying router.
func (r *Runner) Router() *Router {
	return r.router
}

// Run executes turns until the router signals end, the turn bound is hit
// or ctx is done. Recovered turn failures are reported in RunResult.Err;
// the returned error is set only when the loop itself could not finish.
func (r *Runner) Run(ctx context.Context, state *AgentState) (RunResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	threadID := tracing.GetThreadID(ctx)
	if threadID == "" {
		threadID = tracing.NewThreadID()
	}
	ctx = tracing.NewRunContext(ctx, threadID, tracing.GetRunID(ctx))
	runID := tracing.GetRunID(ctx)

	ctx, span := tracing.StartSpan(ctx, tracerName, "agent.run",
		attribute.String("thread_id", threadID),
		attribute.String("run_id", runID),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, r.logger)
	sink := r.router.sink

	start := time.Now()
	observability.RunStarted()
	sink.Emit(Event{Type: EventRunStarted, ThreadID: threadID, RunID: runID})

	result := RunResult{ThreadID: threadID, RunID: runID}
	var runErr error

	for {
		if result.Turns >= r.maxTurns {
			runErr = errorsx.Wrap(fmt.Errorf("%w after %d turns", ErrMaxTurns, result.Turns), errorsx.ReasonMaxTurns)
			break
		}
		if err := ctx.Err(); err != nil {
			runErr = errorsx.Wrap(fmt.Errorf("run cancelled: %w", err), errorsx.ReasonCancelled)
			break
		}

		result.Turns++
		turn := r.router.Turn(tracing.WithTurn(ctx, result.Turns), state)
		result.Signal = turn.Signal
		result.LastCall = turn.ToolCall
		result.Err = turn.Err

		if turn.Signal == SignalEnd {
			break
		}
	}

	failure := runErr
	if failure == nil {
		failure = result.Err
	}
	if failure != nil {
		tracing.RecordError(span, failure)
		sink.Emit(Event{
			Type:     EventRunError,
			ThreadID: threadID,
			RunID:    runID,
			Error:    failure.Error(),
			Reason:   Reason(failure),
		})
	}

	final := state.Snapshot()
	sink.Emit(Event{Type: EventRunFinished, ThreadID: threadID, RunID: runID, State: &final})

	duration := time.Since(start)
	observability.RecordRunFinished(duration, failure == nil)
	span.SetAttributes(attribute.Int("turns", result.Turns))
	logger.Info().
		Int("turns", result.Turns).
		Str("signal", string(result.Signal)).
		Dur("duration", duration).
		Msg("Agent run finished")

	return result, runErr
}
