package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/harun/agentbridge/pkg/agent"
	"github.com/harun/agentbridge/pkg/errorsx"
)

// handleAgent runs one request and streams its events as SSE. The stream
// always ends with run_finished unless the client went away.
func (s *Server) handleAgent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.admit(w, r) {
		return
	}

	s.inFlightReqs.Add(1)
	defer s.inFlightReqs.Done()

	var in RunInput
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&in); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	in.normalize()
	if err := in.validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	stream := newSSEWriter(w)
	if stream == nil {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	start := time.Now()
	sink := newFrameSink(func(f Frame) error {
		return stream.send(string(f.Type), f)
	})
	logger := s.logger.With().Str("thread_id", in.ThreadID).Str("run_id", in.RunID).Logger()

	err := s.execute(r.Context(), in, sink)
	if err == nil {
		err = sink.Err()
	}
	switch {
	case err == nil:
		logger.Info().Dur("duration", time.Since(start)).Msg("Run streamed")
	case errorsx.Reason(err) == errorsx.ReasonCancelled:
		logger.Info().Err(err).Msg("Run cancelled by client")
	default:
		logger.Error().Err(err).Msg("Run failed")
		// The run never started, so close the stream with an error of our own.
		sink.Emit(agent.Event{
			Type:     agent.EventRunError,
			ThreadID: in.ThreadID,
			RunID:    in.RunID,
			Error:    err.Error(),
			Reason:   errorsx.Reason(err),
		})
	}
}
