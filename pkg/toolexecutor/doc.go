// Package toolexecutor runs tools that are answered locally, without a
// model round trip.
//
// Invariants:
// - Tool names are unique.
// - Arguments are validated against the tool's JSON schema before the handler runs.
// - An unregistered name yields *UnhandledToolError, never a panic.
//
// Usage:
//
//	exec := toolexecutor.New()
//	_ = exec.RegisterTool(toolexecutor.ToolDefinition{
//		Name:        "echo",
//		Description: "Echo input",
//		Parameters: map[string]interface{}{
//			"type":       "object",
//			"properties": map[string]interface{}{"text": map[string]interface{}{"type": "string"}},
//			"required":   []string{"text"},
//		},
//		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) { return params["text"], nil },
//	})
//	out, err := exec.Execute(ctx, "echo", json.RawMessage(`{"text":"hi"}`))
package toolexecutor
