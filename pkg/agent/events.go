package agent

import "encoding/json"

// EventType names an event emitted while a run progresses.
type EventType string

const (
	EventRunStarted       EventType = "run_started"
	EventTextDelta        EventType = "text_delta"
	EventToolCallStart    EventType = "tool_call_start"
	EventToolCallArgs     EventType = "tool_call_args"
	EventToolCallEnd      EventType = "tool_call_end"
	EventStateSnapshot    EventType = "state_snapshot"
	EventMessagesSnapshot EventType = "messages_snapshot"
	EventRunFinished      EventType = "run_finished"
	EventRunError         EventType = "run_error"
)

// Event is one item of the run event stream.
type Event struct {
	Type     EventType `json:"type"`
	ThreadID string    `json:"thread_id,omitempty"`
	RunID    string    `json:"run_id,omitempty"`

	MessageID    string `json:"message_id,omitempty"`
	Delta        string `json:"delta,omitempty"`
	ToolCallID   string `json:"tool_call_id,omitempty"`
	ToolCallName string `json:"tool_call_name,omitempty"`

	// Snapshot is a predicted partial state such as {"recipe": {...}}.
	Snapshot json.RawMessage `json:"snapshot,omitempty"`
	Messages []Message       `json:"messages,omitempty"`
	State    *AgentState     `json:"state,omitempty"`

	Error  string     `json:"error,omitempty"`
	Reason ReasonCode `json:"reason,omitempty"`
}

// EventSink receives run events. Emit must not block for long; it is called
// from the turn goroutine.
type EventSink interface {
	Emit(event Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(event Event)

func (f EventSinkFunc) Emit(event Event) { f(event) }

type nopSink struct{}

func (nopSink) Emit(Event) {}
