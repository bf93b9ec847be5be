package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/harun/agentbridge/pkg/imagecatalog"
)

// PromptOptions controls which sections the system prompt carries.
type PromptOptions struct {
	Recipe  bool
	Catalog *imagecatalog.Catalog
}

const taskInstructions = `You MUST call the ` + "`generate_task_steps`" + ` function when the user asks you to perform a task.
When the function ` + "`generate_task_steps`" + ` is called, the user will decide to enable or disable a step.
After the user has decided which steps to perform, provide a textual description of how you are performing the task.
If the user has disabled a step, you are not allowed to perform that step.
However, you should find a creative workaround to perform the task, and if an essential step is disabled, you can even use
some humor in the description of how you are performing the task.
Don't just repeat a list of steps, come up with a creative but short description (3 sentences max) of how you are performing the task.`

const haikuInstructions = `You assist the user in generating a haiku. When generating a haiku using the 'generate_haiku' tool, you MUST also select exactly %d image filenames from the following list that are most relevant to the haiku's content or theme. Return the filenames in the 'image_names' parameter. Don't provide the relevant image names in your final response to the user.
Available images: %s`

const recipeInstructions = `You are a helpful assistant for creating recipes.
This is the current state of the recipe: %s
You can modify the recipe by calling the 'generate_recipe' tool.
If you have just created or modified the recipe, just answer in one sentence what you did.`

// promptState is the part of AgentState rendered into the prompt.
type promptState struct {
	Proverbs []string   `json:"proverbs"`
	Steps    []TaskStep `json:"steps"`
	Haiku    *Haiku     `json:"haiku"`
	Recipe   *Recipe    `json:"recipe"`
}

// BuildSystemPrompt renders the system prompt for the current state.
func BuildSystemPrompt(state *AgentState, opts PromptOptions) (string, error) {
	catalog := opts.Catalog
	if catalog == nil {
		catalog = imagecatalog.Default()
	}

	proverbs, err := json.Marshal(nonNil(state.Proverbs))
	if err != nil {
		return "", fmt.Errorf("failed to render proverbs: %w", err)
	}
	images, err := json.Marshal(catalog.Names())
	if err != nil {
		return "", fmt.Errorf("failed to render image catalog: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are a helpful assistant. The current proverbs are %s.\n\n", proverbs)
	b.WriteString(taskInstructions)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, haikuInstructions, imagecatalog.HaikuImageCount, images)

	if opts.Recipe {
		view := promptState{
			Proverbs: nonNil(state.Proverbs),
			Steps:    state.Steps,
			Haiku:    state.Haiku,
			Recipe:   state.Recipe,
		}
		if view.Steps == nil {
			view.Steps = []TaskStep{}
		}
		data, err := json.MarshalIndent(view, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to render state: %w", err)
		}
		b.WriteString("\n\n")
		fmt.Fprintf(&b, recipeInstructions, data)
	}

	return b.String(), nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
