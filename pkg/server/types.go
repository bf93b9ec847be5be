package server

import (
	"fmt"
	"strings"

	"github.com/harun/agentbridge/internal/tracing"
	"github.com/harun/agentbridge/pkg/agent"
)

// RunInput is the body of POST /agent and of every /ws request frame.
type RunInput struct {
	ThreadID string             `json:"thread_id"`
	RunID    string             `json:"run_id"`
	State    StateInput         `json:"state"`
	Messages []agent.Message    `json:"messages"`
	Tools    []agent.ToolSchema `json:"tools"`
}

// StateInput is the client-owned part of the shared state.
type StateInput struct {
	Proverbs []string         `json:"proverbs"`
	Steps    []agent.TaskStep `json:"steps"`
	Haiku    *agent.Haiku     `json:"haiku,omitempty"`
	Recipe   *agent.Recipe    `json:"recipe,omitempty"`
}

// Frame wraps an event with a per-stream sequence number.
type Frame struct {
	Seq       int64 `json:"seq"`
	Timestamp int64 `json:"timestamp"`
	agent.Event
}

func (in *RunInput) normalize() {
	in.ThreadID = strings.TrimSpace(in.ThreadID)
	in.RunID = strings.TrimSpace(in.RunID)
	if in.ThreadID == "" {
		in.ThreadID = tracing.NewThreadID()
	}
	if in.RunID == "" {
		in.RunID = tracing.NewRunID()
	}
}

func (in RunInput) validate() error {
	if len(in.Messages) == 0 {
		return fmt.Errorf("messages must not be empty")
	}
	for i, m := range in.Messages {
		switch m.Role {
		case agent.RoleSystem, agent.RoleUser, agent.RoleAssistant, agent.RoleTool:
		default:
			return fmt.Errorf("messages[%d]: unknown role %q", i, m.Role)
		}
	}
	for i, t := range in.Tools {
		if strings.TrimSpace(t.Name) == "" {
			return fmt.Errorf("tools[%d]: name is required", i)
		}
	}
	return nil
}

// agentState builds the per-run state. The input slices are copied so the
// run never aliases the decoded request.
func (in RunInput) agentState() *agent.AgentState {
	return &agent.AgentState{
		Messages: append([]agent.Message(nil), in.Messages...),
		Actions:  append([]agent.ToolSchema(nil), in.Tools...),
		Proverbs: append([]string(nil), in.State.Proverbs...),
		Steps:    append([]agent.TaskStep(nil), in.State.Steps...),
		Haiku:    in.State.Haiku,
		Recipe:   in.State.Recipe,
	}
}

// dedupKey scopes run ids to their thread.
func (in RunInput) dedupKey() string {
	return in.ThreadID + "/" + in.RunID
}
