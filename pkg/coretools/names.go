package coretools

// ToolName is one of the tools this package knows how to describe.
type ToolName string

const (
	GetWeather        ToolName = "get_weather"
	GenerateTaskSteps ToolName = "generate_task_steps"
	GenerateHaiku     ToolName = "generate_haiku"
	GenerateRecipe    ToolName = "generate_recipe"
)

func (n ToolName) String() string { return string(n) }

// Known reports whether name is a registry tool.
func Known(name string) bool {
	switch ToolName(name) {
	case GetWeather, GenerateTaskSteps, GenerateHaiku, GenerateRecipe:
		return true
	}
	return false
}

// Features toggles optional registry entries.
type Features struct {
	Recipe bool
}
