package agent

import (
	"encoding/json"

	"github.com/harun/agentbridge/pkg/toolexecutor"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one entry of the conversation history.
type Message struct {
	ID         string     `json:"id,omitempty"`
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall represents a tool invocation requested by the model.
// Arguments hold the raw JSON text exactly as the provider produced it.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolSchema describes a callable tool.
type ToolSchema = toolexecutor.ToolSchema

// StepStatus is the user's decision on a task step.
type StepStatus string

const (
	StepEnabled  StepStatus = "enabled"
	StepDisabled StepStatus = "disabled"
)

type TaskStep struct {
	Description string     `json:"description"`
	Status      StepStatus `json:"status"`
}

type Haiku struct {
	Japanese      []string `json:"japanese"`
	English       []string `json:"english"`
	ImageNames    []string `json:"image_names"`
	SelectedImage string   `json:"selected_image,omitempty"`
}

type Ingredient struct {
	Icon   string `json:"icon"`
	Name   string `json:"name"`
	Amount string `json:"amount"`
}

type Recipe struct {
	Title              string       `json:"title"`
	SkillLevel         string       `json:"skill_level"`
	DietaryPreferences []string     `json:"dietary_preferences"`
	CookingTime        string       `json:"cooking_time"`
	Ingredients        []Ingredient `json:"ingredients"`
	Instructions       []string     `json:"instructions"`
}

// AgentState is the shared state of one conversation. The router mutates
// it in place across turns; there is a single writer per conversation.
type AgentState struct {
	Messages []Message `json:"messages"`

	// Actions are caller-supplied tools for this request only.
	Actions []ToolSchema `json:"-"`

	Proverbs []string   `json:"proverbs"`
	Steps    []TaskStep `json:"steps"`
	Haiku    *Haiku     `json:"haiku,omitempty"`
	Recipe   *Recipe    `json:"recipe,omitempty"`
}

// IsAction reports whether name matches a caller-supplied action.
func (s *AgentState) IsAction(name string) bool {
	for _, a := range s.Actions {
		if a.Name == name {
			return true
		}
	}
	return false
}

func (s *AgentState) appendMessage(msg Message) {
	if msg.ID == "" {
		msg.ID = newMessageID()
	}
	s.Messages = append(s.Messages, msg)
}

// Snapshot returns a deep copy of the serializable state.
func (s *AgentState) Snapshot() AgentState {
	out := AgentState{
		Messages: make([]Message, len(s.Messages)),
		Proverbs: append([]string(nil), s.Proverbs...),
		Steps:    append([]TaskStep(nil), s.Steps...),
	}
	for i, m := range s.Messages {
		m.ToolCalls = append([]ToolCall(nil), m.ToolCalls...)
		out.Messages[i] = m
	}
	if s.Haiku != nil {
		h := s.Haiku.clone()
		out.Haiku = &h
	}
	if s.Recipe != nil {
		r := s.Recipe.clone()
		out.Recipe = &r
	}
	return out
}

func (h Haiku) clone() Haiku {
	h.Japanese = append([]string(nil), h.Japanese...)
	h.English = append([]string(nil), h.English...)
	h.ImageNames = append([]string(nil), h.ImageNames...)
	return h
}

func (r Recipe) clone() Recipe {
	r.DietaryPreferences = append([]string(nil), r.DietaryPreferences...)
	r.Ingredients = append([]Ingredient(nil), r.Ingredients...)
	r.Instructions = append([]string(nil), r.Instructions...)
	return r
}
