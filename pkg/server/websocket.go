package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/harun/agentbridge/pkg/agent"
	"github.com/harun/agentbridge/pkg/errorsx"
)

// wsClient serializes writes to one connection.
type wsClient struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) write(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

// handleWebSocket reads RunInput frames and runs each one concurrently.
// Every run gets its own sequence numbers.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.admit(w, r) {
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	clientID, _ := gonanoid.New()
	client := &wsClient{id: clientID, conn: conn}
	logger := s.logger.With().Str("client_id", clientID).Logger()
	logger.Info().Str("ip", clientIP(r)).Msg("Client connected")

	ctx, cancel := context.WithCancel(context.Background())
	var runs sync.WaitGroup
	defer func() {
		cancel()
		runs.Wait()
		conn.Close()
		logger.Info().Msg("Client disconnected")
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Error().Err(err).Msg("WebSocket error")
			}
			return
		}

		var in RunInput
		if err := json.Unmarshal(message, &in); err != nil {
			s.rejectFrame(client, in, "invalid request: "+err.Error())
			continue
		}
		in.normalize()
		if err := in.validate(); err != nil {
			s.rejectFrame(client, in, err.Error())
			continue
		}

		s.inFlightReqs.Add(1)
		runs.Add(1)
		go func(in RunInput) {
			defer s.inFlightReqs.Done()
			defer runs.Done()

			sink := newFrameSink(func(f Frame) error { return client.write(f) })
			err := s.execute(ctx, in, sink)
			if err == nil {
				err = sink.Err()
			}
			if err != nil && errorsx.Reason(err) != errorsx.ReasonCancelled {
				logger.Error().Err(err).Str("run_id", in.RunID).Msg("Run failed")
			}
		}(in)
	}
}

func (s *Server) rejectFrame(client *wsClient, in RunInput, message string) {
	err := client.write(Frame{Event: agent.Event{
		Type:     agent.EventRunError,
		ThreadID: in.ThreadID,
		RunID:    in.RunID,
		Error:    message,
		Reason:   errorsx.ReasonValidation,
	}})
	if err != nil {
		s.logger.Error().Err(err).Str("client_id", client.id).Msg("Failed to send error frame")
	}
}
