package coretools

import (
	"errors"
	"fmt"

	"github.com/harun/agentbridge/pkg/toolexecutor"
)

// RegisterCoreTools registers the tools answered locally. Only get_weather
// has a local handler; the other registry tools are applied to shared state
// by the router.
func RegisterCoreTools(executor *toolexecutor.ToolExecutor) error {
	if executor == nil {
		return errors.New("tool executor is required")
	}

	tools := []toolexecutor.ToolDefinition{
		weatherTool(),
	}

	for _, tool := range tools {
		if err := executor.RegisterTool(tool); err != nil {
			return fmt.Errorf("failed to register tool %s: %w", tool.Name, err)
		}
	}
	return nil
}

// NewExecutor returns an executor with the core tools registered.
func NewExecutor() (*toolexecutor.ToolExecutor, error) {
	exec := toolexecutor.New()
	if err := RegisterCoreTools(exec); err != nil {
		return nil, err
	}
	return exec, nil
}
