package agent

import (
	"encoding/json"
	"slices"
	"strings"

	"github.com/harun/agentbridge/pkg/coretools"
)

// Recipe payloads are patches: title, skill_level and cooking_time must be
// present on every call, list fields are optional and keep their previous
// value when absent or empty.
var recipePatchSchema = mustSchema(map[string]interface{}{
	"type":     "object",
	"required": []string{"recipe"},
	"properties": map[string]interface{}{
		"recipe": map[string]interface{}{
			"type":     "object",
			"required": []string{"title", "skill_level", "cooking_time"},
			"properties": map[string]interface{}{
				"title":               nonEmptyString(),
				"skill_level":         map[string]interface{}{"type": "string", "enum": coretools.SkillLevels},
				"cooking_time":        map[string]interface{}{"type": "string", "enum": coretools.CookingTimes},
				"dietary_preferences": nullable(stringArray(0)),
				"instructions":        nullable(stringArray(0)),
				"ingredients": nullable(map[string]interface{}{
					"type": "array",
					"items": map[string]interface{}{
						"type":     "object",
						"required": []string{"icon", "name", "amount"},
						"properties": map[string]interface{}{
							"icon":   map[string]interface{}{"type": "string"},
							"name":   nonEmptyString(),
							"amount": map[string]interface{}{"type": "string"},
						},
					},
				}),
			},
		},
	},
})

type recipeArgs struct {
	Recipe Recipe `json:"recipe"`
}

// ParseRecipe validates a generate_recipe payload and merges it onto prev.
// prev is never modified; on error the caller keeps prev unchanged.
func ParseRecipe(raw json.RawMessage, prev *Recipe) (*Recipe, error) {
	var args recipeArgs
	if err := validatePayload(coretools.GenerateRecipe.String(), recipePatchSchema, raw, &args); err != nil {
		return nil, err
	}
	merged := mergeRecipe(prev, args.Recipe)
	return &merged, nil
}

func mergeRecipe(prev *Recipe, patch Recipe) Recipe {
	var out Recipe
	if prev != nil {
		out = prev.clone()
	}

	out.Title = strings.TrimSpace(patch.Title)
	out.SkillLevel = patch.SkillLevel
	out.CookingTime = patch.CookingTime

	if len(patch.DietaryPreferences) > 0 {
		out.DietaryPreferences = append([]string(nil), patch.DietaryPreferences...)
	}
	if len(patch.Ingredients) > 0 {
		out.Ingredients = append([]Ingredient(nil), patch.Ingredients...)
	}
	if len(patch.Instructions) > 0 {
		out.Instructions = append([]string(nil), patch.Instructions...)
	}

	if out.DietaryPreferences == nil {
		out.DietaryPreferences = []string{}
	}
	if out.Ingredients == nil {
		out.Ingredients = []Ingredient{}
	}
	if out.Instructions == nil {
		out.Instructions = []string{}
	}
	return out
}

// recipeChanges names the fields of next that differ from prev. Every
// field counts as changed when there was no previous recipe.
func recipeChanges(prev, next *Recipe) []string {
	var before Recipe
	if prev != nil {
		before = *prev
	}
	var changed []string
	add := func(field string, same bool) {
		if prev == nil || !same {
			changed = append(changed, field)
		}
	}
	add("title", before.Title == next.Title)
	add("skill_level", before.SkillLevel == next.SkillLevel)
	add("cooking_time", before.CookingTime == next.CookingTime)
	add("dietary_preferences", slices.Equal(before.DietaryPreferences, next.DietaryPreferences))
	add("ingredients", slices.Equal(before.Ingredients, next.Ingredients))
	add("instructions", slices.Equal(before.Instructions, next.Instructions))
	return changed
}

func nullable(schema map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"anyOf": []interface{}{schema, map[string]interface{}{"type": "null"}},
	}
}
