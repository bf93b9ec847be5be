package agent

import (
	"encoding/json"
	"os"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/harun/agentbridge/pkg/coretools"
)

type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) Emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *eventRecorder) OfType(t EventType) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stdout).Level(zerolog.ErrorLevel)
}

func newTestRouter(t *testing.T, provider LLMProvider, mutate func(*RouterConfig)) (*Router, *eventRecorder) {
	t.Helper()
	rec := &eventRecorder{}
	cfg := RouterConfig{
		Provider: provider,
		Model:    "test-model",
		Stream:   true,
		Features: coretools.Features{Recipe: true},
		Sink:     rec,
		Logger:   testLogger(),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	router, err := NewRouter(cfg)
	require.NoError(t, err)
	return router, rec
}

func call(id, name, args string) ToolCall {
	return ToolCall{ID: id, Name: name, Arguments: json.RawMessage(args)}
}

func userState(text string) *AgentState {
	return &AgentState{Messages: []Message{{ID: "m1", Role: RoleUser, Content: text}}}
}

const validRecipeArgs = `{"recipe": {
	"title": "Tomato Pasta",
	"skill_level": "Beginner",
	"cooking_time": "15 min",
	"dietary_preferences": ["Vegetarian"],
	"ingredients": [{"icon": "🍅", "name": "Tomato", "amount": "2"}],
	"instructions": ["Boil pasta", "Add sauce"]
}}`
