package server

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/agentbridge/pkg/agent"
	"github.com/harun/agentbridge/pkg/commandqueue"
	"github.com/harun/agentbridge/pkg/coretools"
)

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stdout).Level(zerolog.ErrorLevel)
}

func newTestServer(t *testing.T, provider agent.LLMProvider, opts Options) (*Server, *httptest.Server) {
	t.Helper()
	router, err := agent.NewRouter(agent.RouterConfig{
		Provider: provider,
		Model:    "test-model",
		Stream:   true,
		Features: coretools.Features{Recipe: true},
		Logger:   testLogger(),
	})
	require.NoError(t, err)
	runner, err := agent.NewRunner(agent.Config{Router: router, Logger: testLogger()})
	require.NoError(t, err)

	queue := commandqueue.New(commandqueue.Options{DedupTTL: time.Minute})
	t.Cleanup(func() { _ = queue.Close() })

	srv, err := NewServer(Config{Options: opts, Runner: runner, Queue: queue, Logger: testLogger()})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func runBody(threadID, runID, text string) string {
	in := RunInput{
		ThreadID: threadID,
		RunID:    runID,
		State:    StateInput{Proverbs: []string{"Slow and steady"}},
		Messages: []agent.Message{{ID: "m1", Role: agent.RoleUser, Content: text}},
	}
	data, _ := json.Marshal(in)
	return string(data)
}

func readSSE(t *testing.T, body io.Reader) []Frame {
	t.Helper()
	var frames []Frame
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4<<20)
	event := ""
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			var f Frame
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &f))
			assert.Equal(t, event, string(f.Type))
			frames = append(frames, f)
		}
	}
	require.NoError(t, scanner.Err())
	return frames
}

func types(frames []Frame) []agent.EventType {
	out := make([]agent.EventType, 0, len(frames))
	for _, f := range frames {
		out = append(out, f.Type)
	}
	return out
}

func framesOf(frames []Frame, eventType agent.EventType) []Frame {
	var out []Frame
	for _, f := range frames {
		if f.Type == eventType {
			out = append(out, f)
		}
	}
	return out
}

func TestNewServer(t *testing.T) {
	t.Run("should require runner and queue", func(t *testing.T) {
		_, err := NewServer(Config{})
		assert.Error(t, err)
	})
}

func TestHandleAgent(t *testing.T) {
	t.Run("should stream a weather run ending with the final state", func(t *testing.T) {
		provider := agent.NewScriptedProvider(
			agent.Reply("", agent.ToolCall{ID: "call_1", Name: "get_weather", Arguments: json.RawMessage(`{"location":"Boston"}`)}),
			agent.Reply("Sunny in Boston."),
		)
		_, ts := newTestServer(t, provider, Options{})

		resp, err := http.Post(ts.URL+"/agent", "application/json", strings.NewReader(runBody("t1", "r1", "weather in Boston?")))
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

		frames := readSSE(t, resp.Body)
		require.NotEmpty(t, frames)
		assert.Equal(t, agent.EventRunStarted, frames[0].Type)
		last := frames[len(frames)-1]
		assert.Equal(t, agent.EventRunFinished, last.Type)
		assert.Equal(t, "t1", last.ThreadID)
		assert.Equal(t, "r1", last.RunID)
		require.NotNil(t, last.State)
		require.Len(t, last.State.Messages, 4)
		assert.Equal(t, coretools.WeatherReport("Boston"), last.State.Messages[2].Content)
		assert.Equal(t, []string{"Slow and steady"}, last.State.Proverbs)

		for i, f := range frames {
			assert.Equal(t, int64(i+1), f.Seq)
		}
		assert.Contains(t, types(frames), agent.EventTextDelta)
		assert.Contains(t, types(frames), agent.EventMessagesSnapshot)
	})

	t.Run("should hand caller actions back to the client", func(t *testing.T) {
		provider := agent.NewScriptedProvider(
			agent.Reply("", agent.ToolCall{ID: "call_1", Name: "set_theme", Arguments: json.RawMessage(`{"theme":"dark"}`)}),
		)
		_, ts := newTestServer(t, provider, Options{})

		in := RunInput{
			ThreadID: "t2",
			Messages: []agent.Message{{Role: agent.RoleUser, Content: "dark mode"}},
			Tools:    []agent.ToolSchema{{Name: "set_theme", Description: "Switch theme"}},
		}
		body, _ := json.Marshal(in)
		resp, err := http.Post(ts.URL+"/agent", "application/json", bytes.NewReader(body))
		require.NoError(t, err)
		defer resp.Body.Close()

		frames := readSSE(t, resp.Body)
		var started []Frame
		for _, f := range frames {
			if f.Type == agent.EventToolCallStart {
				started = append(started, f)
			}
		}
		require.Len(t, started, 1)
		assert.Equal(t, "set_theme", started[0].ToolCallName)
		last := frames[len(frames)-1]
		require.NotNil(t, last.State)
		assert.Len(t, last.State.Messages, 2)
		assert.NotEmpty(t, last.RunID)

		requests := provider.Requests()
		require.Len(t, requests, 1)
		assert.Equal(t, "set_theme", requests[0].Tools[0].Name)
	})

	t.Run("should replay a repeated run id without calling the model", func(t *testing.T) {
		provider := agent.NewScriptedProvider(agent.Reply("Hello!"))
		_, ts := newTestServer(t, provider, Options{})

		post := func() []Frame {
			resp, err := http.Post(ts.URL+"/agent", "application/json", strings.NewReader(runBody("t3", "r-same", "hi")))
			require.NoError(t, err)
			defer resp.Body.Close()
			return readSSE(t, resp.Body)
		}

		first := post()
		second := post()

		assert.Equal(t, types(first), types(second))
		assert.Len(t, provider.Requests(), 1)
		assert.Equal(t, agent.EventRunFinished, second[len(second)-1].Type)
	})

	t.Run("should call the model again after an upstream failure", func(t *testing.T) {
		provider := agent.NewScriptedProvider(
			agent.ScriptStep{Err: errors.New("upstream 503")},
			agent.Reply("Hello after recovery"),
		)
		_, ts := newTestServer(t, provider, Options{})

		post := func() []Frame {
			resp, err := http.Post(ts.URL+"/agent", "application/json", strings.NewReader(runBody("t9", "r9", "hi")))
			require.NoError(t, err)
			defer resp.Body.Close()
			return readSSE(t, resp.Body)
		}

		first := post()
		require.GreaterOrEqual(t, len(first), 2)
		assert.Equal(t, agent.EventRunError, first[len(first)-2].Type)
		assert.Equal(t, agent.ReasonCode("provider_call"), first[len(first)-2].Reason)
		assert.Equal(t, agent.EventRunFinished, first[len(first)-1].Type)
		assert.Len(t, framesOf(first, agent.EventRunError), 1)

		second := post()
		assert.Empty(t, framesOf(second, agent.EventRunError))
		last := second[len(second)-1]
		assert.Equal(t, agent.EventRunFinished, last.Type)
		require.NotNil(t, last.State)
		assert.Equal(t, "Hello after recovery", last.State.Messages[len(last.State.Messages)-1].Content)
		assert.Len(t, provider.Requests(), 2)
	})

	t.Run("should close the stream with run_error on a recovered failure", func(t *testing.T) {
		provider := agent.NewScriptedProvider(
			agent.Reply("", agent.ToolCall{ID: "call_1", Name: "generate_recipe", Arguments: json.RawMessage(`{"recipe":{}}`)}),
		)
		_, ts := newTestServer(t, provider, Options{})

		resp, err := http.Post(ts.URL+"/agent", "application/json", strings.NewReader(runBody("t4", "r4", "recipe")))
		require.NoError(t, err)
		defer resp.Body.Close()

		frames := readSSE(t, resp.Body)
		require.GreaterOrEqual(t, len(frames), 2)
		errFrame := frames[len(frames)-2]
		assert.Equal(t, agent.EventRunError, errFrame.Type)
		assert.Equal(t, agent.ReasonCode("validation"), errFrame.Reason)
		assert.Equal(t, agent.EventRunFinished, frames[len(frames)-1].Type)
		assert.Nil(t, frames[len(frames)-1].State.Recipe)
	})

	t.Run("should reject bad requests", func(t *testing.T) {
		_, ts := newTestServer(t, agent.NewScriptedProvider(), Options{})

		resp, err := http.Post(ts.URL+"/agent", "application/json", strings.NewReader(`{"messages": []}`))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		resp, err = http.Post(ts.URL+"/agent", "application/json", strings.NewReader(`{not json`))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		resp, err = http.Get(ts.URL + "/agent")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	})

}

func TestHandleWebSocket(t *testing.T) {
	t.Run("should stream run frames over the socket", func(t *testing.T) {
		provider := agent.NewScriptedProvider(agent.Reply("Hi there"))
		_, ts := newTestServer(t, provider, Options{})

		url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		require.NoError(t, err)
		defer conn.Close()

		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(runBody("ws-1", "r1", "hello"))))

		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		var frames []Frame
		for {
			var f Frame
			require.NoError(t, conn.ReadJSON(&f))
			frames = append(frames, f)
			if f.Type == agent.EventRunFinished {
				break
			}
		}

		assert.Equal(t, agent.EventRunStarted, frames[0].Type)
		last := frames[len(frames)-1]
		require.NotNil(t, last.State)
		assert.Equal(t, "Hi there", last.State.Messages[1].Content)
	})

	t.Run("should answer malformed frames with run_error", func(t *testing.T) {
		_, ts := newTestServer(t, agent.NewScriptedProvider(), Options{})

		url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		require.NoError(t, err)
		defer conn.Close()

		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"messages":[]}`)))
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

		var f Frame
		require.NoError(t, conn.ReadJSON(&f))
		assert.Equal(t, agent.EventRunError, f.Type)
		assert.Contains(t, f.Error, "messages")
	})

	t.Run("should refuse origins outside the allow list", func(t *testing.T) {
		_, ts := newTestServer(t, agent.NewScriptedProvider(), Options{AllowedOrigins: []string{"https://app.example"}})

		url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
		header := http.Header{"Origin": []string{"https://evil.example"}}
		_, resp, err := websocket.DefaultDialer.Dial(url, header)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})
}

func TestHealthAndMetrics(t *testing.T) {
	t.Run("should report ok", func(t *testing.T) {
		_, ts := newTestServer(t, agent.NewScriptedProvider(), Options{Metrics: true})

		resp, err := http.Get(ts.URL + "/health")
		require.NoError(t, err)
		defer resp.Body.Close()

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "ok", body["status"])
	})

	t.Run("should expose prometheus metrics", func(t *testing.T) {
		provider := agent.NewScriptedProvider(agent.Reply("hi"))
		_, ts := newTestServer(t, provider, Options{Metrics: true})

		resp, err := http.Post(ts.URL+"/agent", "application/json", strings.NewReader(runBody("m1", "m1", "hi")))
		require.NoError(t, err)
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		resp, err = http.Get(ts.URL + "/metrics")
		require.NoError(t, err)
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Contains(t, string(data), "agentbridge_turns_total")
	})

	t.Run("should not mount metrics when disabled", func(t *testing.T) {
		_, ts := newTestServer(t, agent.NewScriptedProvider(), Options{})

		resp, err := http.Get(ts.URL + "/metrics")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name      string
		remote    string
		forwarded string
		want      string
	}{
		{name: "should use the socket host", remote: "10.0.0.1:5555", want: "10.0.0.1"},
		{name: "should prefer the first forwarded hop", remote: "10.0.0.1:5555", forwarded: "203.0.113.7, 10.0.0.2", want: "203.0.113.7"},
		{name: "should accept a single forwarded hop", remote: "10.0.0.1:5555", forwarded: " 198.51.100.2 ", want: "198.51.100.2"},
		{name: "should fall back to the raw remote address", remote: "pipe", want: "pipe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/ws", nil)
			r.RemoteAddr = tt.remote
			if tt.forwarded != "" {
				r.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			assert.Equal(t, tt.want, clientIP(r))
		})
	}
}
