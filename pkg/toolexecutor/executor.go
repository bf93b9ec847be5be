package toolexecutor

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"
)

const (
	defaultTimeout = 30 * time.Second
	maxOutputSize  = 10 * 1024
)

// ToolSchema is the provider-neutral descriptor advertised to the model.
type ToolSchema struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// ToolHandler is the function signature for tool execution
type ToolHandler func(ctx context.Context, params map[string]interface{}) (interface{}, error)

// ToolDefinition pairs a schema with its local handler.
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"` // JSON schema object
	Handler     ToolHandler            `json:"-"`
}

func (d ToolDefinition) Schema() ToolSchema {
	return ToolSchema{Name: d.Name, Description: d.Description, Parameters: d.Parameters}
}

// UnhandledToolError is returned when no local handler exists for a name.
type UnhandledToolError struct {
	Name string
}

func (e *UnhandledToolError) Error() string {
	return fmt.Sprintf("no local handler for tool %q", e.Name)
}

// ParameterError reports arguments that failed decoding or schema validation.
type ParameterError struct {
	Tool     string
	Problems []string
}

func (e *ParameterError) Error() string {
	return fmt.Sprintf("parameter validation failed for %s: %s", e.Tool, strings.Join(e.Problems, "; "))
}

// ToolExecutor manages and executes tools
type ToolExecutor struct {
	tools   map[string]*ToolDefinition
	schemas map[string]*gojsonschema.Schema
	timeout time.Duration
	mu      sync.RWMutex
}

func New() *ToolExecutor {
	return &ToolExecutor{
		tools:   make(map[string]*ToolDefinition),
		schemas: make(map[string]*gojsonschema.Schema),
		timeout: defaultTimeout,
	}
}

// SetTimeout bounds every handler run. Non-positive values restore the default.
func (te *ToolExecutor) SetTimeout(timeout time.Duration) {
	te.mu.Lock()
	defer te.mu.Unlock()
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	te.timeout = timeout
}

// RegisterTool registers a new tool
func (te *ToolExecutor) RegisterTool(def ToolDefinition) error {
	if err := validateToolDefinition(def); err != nil {
		return fmt.Errorf("invalid tool definition: %w", err)
	}

	schema, err := compileSchema(def.Parameters)
	if err != nil {
		return fmt.Errorf("failed to compile schema for %s: %w", def.Name, err)
	}

	te.mu.Lock()
	defer te.mu.Unlock()

	if _, exists := te.tools[def.Name]; exists {
		return fmt.Errorf("tool %s already registered", def.Name)
	}
	te.tools[def.Name] = &def
	te.schemas[def.Name] = schema

	log.Debug().Str("tool", def.Name).Msg("Tool registered")
	return nil
}

func (te *ToolExecutor) UnregisterTool(name string) {
	te.mu.Lock()
	defer te.mu.Unlock()

	delete(te.tools, name)
	delete(te.schemas, name)
}

// GetTool returns a tool definition by name
func (te *ToolExecutor) GetTool(name string) *ToolDefinition {
	te.mu.RLock()
	defer te.mu.RUnlock()

	return te.tools[name]
}

func (te *ToolExecutor) Has(name string) bool {
	return te.GetTool(name) != nil
}

// ListTools returns registered tool names in sorted order.
func (te *ToolExecutor) ListTools() []string {
	te.mu.RLock()
	defer te.mu.RUnlock()

	names := make([]string, 0, len(te.tools))
	for name := range te.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Schemas returns the descriptors of every registered tool in name order.
func (te *ToolExecutor) Schemas() []ToolSchema {
	names := te.ListTools()

	te.mu.RLock()
	defer te.mu.RUnlock()

	out := make([]ToolSchema, 0, len(names))
	for _, name := range names {
		if def, ok := te.tools[name]; ok {
			out = append(out, def.Schema())
		}
	}
	return out
}

// Execute decodes raw JSON arguments and runs the named tool.
func (te *ToolExecutor) Execute(ctx context.Context, toolName string, args json.RawMessage) (string, error) {
	params := map[string]interface{}{}
	if trimmed := strings.TrimSpace(string(args)); trimmed != "" && trimmed != "null" {
		if err := json.Unmarshal([]byte(trimmed), &params); err != nil {
			return "", &ParameterError{Tool: toolName, Problems: []string{"arguments are not a JSON object: " + err.Error()}}
		}
	}
	return te.ExecuteParams(ctx, toolName, params)
}

// ExecuteParams runs the named tool synchronously and renders its output as a string.
func (te *ToolExecutor) ExecuteParams(ctx context.Context, toolName string, params map[string]interface{}) (string, error) {
	startTime := time.Now()

	te.mu.RLock()
	tool := te.tools[toolName]
	schema := te.schemas[toolName]
	timeout := te.timeout
	te.mu.RUnlock()

	if tool == nil {
		return "", &UnhandledToolError{Name: toolName}
	}

	if params == nil {
		params = map[string]interface{}{}
	}
	if err := validateParameters(toolName, schema, params); err != nil {
		log.Warn().Str("tool", toolName).Err(err).Msg("Parameter validation failed")
		return "", err
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		result interface{}
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		result, err := tool.Handler(timeoutCtx, params)
		done <- outcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		duration := time.Since(startTime)
		if out.err != nil {
			log.Error().
				Str("tool", toolName).
				Dur("duration", duration).
				Err(out.err).
				Msg("Tool execution failed")
			return "", fmt.Errorf("tool %s failed: %w", toolName, out.err)
		}

		text, err := renderOutput(out.result)
		if err != nil {
			return "", fmt.Errorf("tool %s returned unrenderable output: %w", toolName, err)
		}
		text, truncated := truncateOutput(text)

		log.Debug().
			Str("tool", toolName).
			Dur("duration", duration).
			Bool("truncated", truncated).
			Msg("Tool execution completed")
		return text, nil

	case <-timeoutCtx.Done():
		log.Error().
			Str("tool", toolName).
			Dur("duration", time.Since(startTime)).
			Msg("Tool execution timeout")
		if ctx.Err() != nil {
			return "", fmt.Errorf("tool %s cancelled: %w", toolName, ctx.Err())
		}
		return "", fmt.Errorf("tool %s execution timeout after %v", toolName, timeout)
	}
}

func validateToolDefinition(def ToolDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if def.Description == "" {
		return fmt.Errorf("tool description cannot be empty")
	}
	if def.Handler == nil {
		return fmt.Errorf("tool handler cannot be nil")
	}
	if def.Parameters != nil {
		if typ, _ := def.Parameters["type"].(string); typ != "object" {
			return fmt.Errorf("parameters of %s must be an object schema", def.Name)
		}
	}
	return nil
}

func compileSchema(parameters map[string]interface{}) (*gojsonschema.Schema, error) {
	if parameters == nil {
		return nil, nil
	}
	return gojsonschema.NewSchema(gojsonschema.NewGoLoader(parameters))
}

func validateParameters(toolName string, schema *gojsonschema.Schema, params map[string]interface{}) error {
	if schema == nil {
		return nil
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(params))
	if err != nil {
		return &ParameterError{Tool: toolName, Problems: []string{err.Error()}}
	}

	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			problems = append(problems, e.String())
		}
		return &ParameterError{Tool: toolName, Problems: problems}
	}
	return nil
}

func renderOutput(result interface{}) (string, error) {
	switch v := result.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case fmt.Stringer:
		return v.String(), nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
}

func truncateOutput(text string) (string, bool) {
	if len(text) <= maxOutputSize {
		return text, false
	}
	// Back off to a rune boundary so the result stays valid UTF-8.
	cut := maxOutputSize
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	log.Warn().
		Int("original", len(text)).
		Int("truncated", cut).
		Msg("Output truncated")
	return text[:cut] + "\n... [output truncated]", true
}
