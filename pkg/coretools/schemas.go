package coretools

import (
	"github.com/harun/agentbridge/pkg/toolexecutor"
)

// Recipe enumerations shared with the recipe parser.
var (
	SkillLevels  = []string{"Beginner", "Intermediate", "Advanced"}
	CookingTimes = []string{"5 min", "15 min", "30 min", "45 min", "60+ min"}
)

// Schemas returns the registry descriptors in a stable order.
// generate_recipe is only present when the recipe feature is on.
func Schemas(features Features) []toolexecutor.ToolSchema {
	out := []toolexecutor.ToolSchema{
		WeatherSchema(),
		TaskStepsSchema(),
		HaikuSchema(),
	}
	if features.Recipe {
		out = append(out, RecipeSchema())
	}
	return out
}

func WeatherSchema() toolexecutor.ToolSchema {
	return toolexecutor.ToolSchema{
		Name:        GetWeather.String(),
		Description: "Get the current weather in a given location",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"location": map[string]interface{}{
					"type":        "string",
					"description": "The city and state, e.g. San Francisco, CA",
				},
			},
			"required": []string{"location"},
		},
	}
}

func TaskStepsSchema() toolexecutor.ToolSchema {
	return toolexecutor.ToolSchema{
		Name: GenerateTaskSteps.String(),
		Description: "Make up 10 steps (only a couple of words per step) that are required for a task. " +
			"The step should be in imperative form (i.e. Dig hole, Open door, ...)",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"steps": map[string]interface{}{
					"type": "array",
					"items": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"description": map[string]interface{}{
								"type":        "string",
								"description": "The text of the step in imperative form",
							},
							"status": map[string]interface{}{
								"type":        "string",
								"enum":        []string{"enabled"},
								"description": "The status of the step, always 'enabled'",
							},
						},
						"required": []string{"description", "status"},
					},
					"description": "An array of 10 step objects, each containing text and status",
				},
			},
			"required": []string{"steps"},
		},
	}
}

func HaikuSchema() toolexecutor.ToolSchema {
	stringArray := func(description string) map[string]interface{} {
		return map[string]interface{}{
			"type":        "array",
			"items":       map[string]interface{}{"type": "string"},
			"description": description,
		}
	}
	return toolexecutor.ToolSchema{
		Name:        GenerateHaiku.String(),
		Description: "Generate a haiku in Japanese and its English translation",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"japanese":    stringArray("An array of three lines of the haiku in Japanese"),
				"english":     stringArray("An array of three lines of the haiku in English"),
				"image_names": stringArray("Names of 3 relevant images from the provided list"),
			},
			"required": []string{"japanese", "english", "image_names"},
		},
	}
}

func RecipeSchema() toolexecutor.ToolSchema {
	return toolexecutor.ToolSchema{
		Name: GenerateRecipe.String(),
		Description: "Generate or modify an existing recipe. When creating a new recipe, specify all fields. " +
			"When modifying, only fill optional fields if they need changes; otherwise, leave them empty.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"recipe": map[string]interface{}{
					"description": "The recipe object containing all details.",
					"type":        "object",
					"properties": map[string]interface{}{
						"title": map[string]interface{}{
							"type":        "string",
							"description": "The title of the recipe.",
						},
						"skill_level": map[string]interface{}{
							"type":        "string",
							"enum":        SkillLevels,
							"description": "The skill level required for the recipe.",
						},
						"dietary_preferences": map[string]interface{}{
							"type":        "array",
							"items":       map[string]interface{}{"type": "string"},
							"description": "A list of dietary preferences (e.g., Vegetarian, Gluten-free).",
						},
						"cooking_time": map[string]interface{}{
							"type":        "string",
							"enum":        CookingTimes,
							"description": "The estimated cooking time for the recipe.",
						},
						"ingredients": map[string]interface{}{
							"type": "array",
							"items": map[string]interface{}{
								"type": "object",
								"properties": map[string]interface{}{
									"icon":   map[string]interface{}{"type": "string", "description": "Emoji icon for the ingredient."},
									"name":   map[string]interface{}{"type": "string", "description": "Name of the ingredient."},
									"amount": map[string]interface{}{"type": "string", "description": "Amount/quantity of the ingredient."},
								},
								"required": []string{"icon", "name", "amount"},
							},
							"description": "A list of ingredients required for the recipe.",
						},
						"instructions": map[string]interface{}{
							"type":        "array",
							"items":       map[string]interface{}{"type": "string"},
							"description": "Step-by-step instructions for preparing the recipe.",
						},
					},
					"required": []string{"title", "skill_level", "cooking_time", "dietary_preferences", "ingredients", "instructions"},
				},
			},
			"required": []string{"recipe"},
		},
	}
}
