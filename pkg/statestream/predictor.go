package statestream

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Rule maps one argument of a tool call onto a state key.
type Rule struct {
	StateKey     string `json:"state_key"`
	ToolName     string `json:"tool_name"`
	ToolArgument string `json:"tool_argument"`
}

// Snapshot is a predicted state fragment such as {"recipe": {...}}.
type Snapshot struct {
	ToolCallID string
	StateKey   string
	State      json.RawMessage
}

type callBuffer struct {
	rule Rule
	args strings.Builder
	last string
}

// Predictor follows in-flight tool calls and emits a snapshot whenever the
// projected value changes. It is safe for concurrent use.
type Predictor struct {
	mu    sync.Mutex
	rules map[string]Rule
	calls map[string]*callBuffer
}

func NewPredictor(rules ...Rule) *Predictor {
	p := &Predictor{
		rules: make(map[string]Rule, len(rules)),
		calls: make(map[string]*callBuffer),
	}
	for _, r := range rules {
		p.rules[r.ToolName] = r
	}
	return p
}

// Start begins tracking a tool call. It reports whether any rule applies.
func (p *Predictor) Start(callID, toolName string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	rule, ok := p.rules[toolName]
	if !ok {
		return false
	}
	p.calls[callID] = &callBuffer{rule: rule}
	return true
}

// Append adds an argument fragment and returns a snapshot when the
// projection changed since the last one.
func (p *Predictor) Append(callID, fragment string) (Snapshot, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	buf, ok := p.calls[callID]
	if !ok {
		return Snapshot{}, false
	}
	buf.args.WriteString(fragment)

	closed, ok := CloseJSON(buf.args.String())
	if !ok {
		return Snapshot{}, false
	}
	value := gjson.Get(closed, buf.rule.ToolArgument)
	if !value.Exists() {
		return Snapshot{}, false
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, []byte(value.Raw)); err != nil {
		return Snapshot{}, false
	}
	raw := compact.String()
	if raw == buf.last {
		return Snapshot{}, false
	}

	state, err := sjson.SetRaw("{}", buf.rule.StateKey, raw)
	if err != nil {
		return Snapshot{}, false
	}
	buf.last = raw

	return Snapshot{
		ToolCallID: callID,
		StateKey:   buf.rule.StateKey,
		State:      json.RawMessage(state),
	}, true
}

// End stops tracking a call and returns its accumulated arguments.
func (p *Predictor) End(callID string) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	buf, ok := p.calls[callID]
	if !ok {
		return ""
	}
	delete(p.calls, callID)
	return buf.args.String()
}

// Tracking reports whether callID is being projected.
func (p *Predictor) Tracking(callID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.calls[callID]
	return ok
}
