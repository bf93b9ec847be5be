package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/harun/agentbridge/internal/tracing"
	"github.com/harun/agentbridge/pkg/agent"
	"github.com/harun/agentbridge/pkg/commandqueue"
	"github.com/harun/agentbridge/pkg/errorsx"
)

// recording is the cached outcome of a run, replayed for duplicate run ids.
type recording struct {
	events []agent.Event
}

// unrecordedRun carries the failure of a run that streamed its events but
// must not be replayed, so a retry with the same run id calls the model again.
type unrecordedRun struct {
	err error
}

func (e *unrecordedRun) Error() string { return e.err.Error() }

func (e *unrecordedRun) Unwrap() error { return e.err }

// retryable reports whether a run failure came from the upstream model.
func retryable(err error) bool {
	switch errorsx.Reason(err) {
	case errorsx.ReasonProviderCall, errorsx.ReasonProviderTimeout, errorsx.ReasonProviderSetup:
		return true
	}
	return false
}

// frameSink numbers events and hands them to send. send is never called
// concurrently for one sink.
type frameSink struct {
	mu   sync.Mutex
	seq  int64
	send func(Frame) error
	err  error
}

func newFrameSink(send func(Frame) error) *frameSink {
	return &frameSink{send: send}
}

func (f *frameSink) Emit(event agent.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return
	}
	f.seq++
	frame := Frame{Seq: f.seq, Timestamp: time.Now().UnixMilli(), Event: event}
	if err := f.send(frame); err != nil {
		f.err = errorsx.Wrap(fmt.Errorf("failed to send event: %w", err), errorsx.ReasonTransportSend)
	}
}

// Err reports the first send failure.
func (f *frameSink) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// execute runs in on its thread lane and streams events to sink. When the
// run id was already served inside the dedup window, the recorded events are
// replayed instead. Runs ending in a provider failure are never recorded.
func (s *Server) execute(ctx context.Context, in RunInput, sink agent.EventSink) error {
	state := in.agentState()
	ran := false

	task := func(taskCtx context.Context) (interface{}, error) {
		ran = true
		rec := &recording{}
		tee := agent.EventSinkFunc(func(e agent.Event) {
			rec.events = append(rec.events, e)
			sink.Emit(e)
		})

		runCtx := tracing.NewRunContext(taskCtx, in.ThreadID, in.RunID)
		result, err := s.runner.WithSink(tee).Run(runCtx, state)
		if err != nil && errorsx.Reason(err) == errorsx.ReasonCancelled {
			// Interrupted runs are not cached so a retry runs again.
			return nil, err
		}
		if result.Err != nil && retryable(result.Err) {
			return nil, &unrecordedRun{err: result.Err}
		}
		return rec, nil
	}

	logger := s.logger.With().Str("thread_id", in.ThreadID).Str("run_id", in.RunID).Logger()
	value, err := s.queue.EnqueueWithContext(ctx, commandqueue.ThreadLane(in.ThreadID), task, &commandqueue.TaskOptions{
		RequestID: in.dedupKey(),
		WarnAfter: s.options.RunWarnAfter,
		OnWait: func(wait time.Duration, pos int) {
			logger.Warn().Dur("wait", wait).Int("queue_pos", pos).Msg("Run waiting for its thread lane")
		},
	})
	if err != nil {
		var unrecorded *unrecordedRun
		if errors.As(err, &unrecorded) {
			logger.Warn().Err(unrecorded.err).Msg("Run failed upstream, not recorded for replay")
			return nil
		}
		if errors.Is(err, commandqueue.ErrClosed) || errors.Is(err, context.Canceled) {
			return errorsx.Wrap(err, errorsx.ReasonCancelled)
		}
		return err
	}

	if !ran {
		rec, ok := value.(*recording)
		if !ok {
			return fmt.Errorf("unexpected cached run result %T", value)
		}
		logger.Info().Int("events", len(rec.events)).Msg("Replaying recorded run")
		for _, e := range rec.events {
			sink.Emit(e)
		}
	}
	return nil
}
