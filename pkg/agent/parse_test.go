package agent

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/agentbridge/pkg/errorsx"
	"github.com/harun/agentbridge/pkg/imagecatalog"
)

func TestParseRecipe(t *testing.T) {
	t.Run("should accept a complete recipe", func(t *testing.T) {
		recipe, err := ParseRecipe(json.RawMessage(validRecipeArgs), nil)

		require.NoError(t, err)
		assert.Equal(t, "Tomato Pasta", recipe.Title)
		assert.Equal(t, "Beginner", recipe.SkillLevel)
		assert.Equal(t, "15 min", recipe.CookingTime)
		assert.Equal(t, []string{"Vegetarian"}, recipe.DietaryPreferences)
		assert.Equal(t, []Ingredient{{Icon: "🍅", Name: "Tomato", Amount: "2"}}, recipe.Ingredients)
	})

	t.Run("should keep previous lists when the patch omits them", func(t *testing.T) {
		prev, err := ParseRecipe(json.RawMessage(validRecipeArgs), nil)
		require.NoError(t, err)

		next, err := ParseRecipe(json.RawMessage(`{"recipe": {
			"title": "Spicy Tomato Pasta",
			"skill_level": "Intermediate",
			"cooking_time": "30 min",
			"ingredients": null,
			"instructions": []
		}}`), prev)

		require.NoError(t, err)
		assert.Equal(t, "Spicy Tomato Pasta", next.Title)
		assert.Equal(t, "30 min", next.CookingTime)
		assert.Equal(t, prev.Ingredients, next.Ingredients)
		assert.Equal(t, prev.Instructions, next.Instructions)
		assert.Equal(t, prev.DietaryPreferences, next.DietaryPreferences)
		assert.Equal(t, "Tomato Pasta", prev.Title)
	})

	t.Run("should be idempotent", func(t *testing.T) {
		once, err := ParseRecipe(json.RawMessage(validRecipeArgs), nil)
		require.NoError(t, err)
		twice, err := ParseRecipe(json.RawMessage(validRecipeArgs), once)
		require.NoError(t, err)
		assert.Equal(t, once, twice)
	})

	t.Run("should normalize missing lists to empty", func(t *testing.T) {
		recipe, err := ParseRecipe(json.RawMessage(`{"recipe":{"title":"Toast","skill_level":"Beginner","cooking_time":"5 min"}}`), nil)
		require.NoError(t, err)
		assert.NotNil(t, recipe.Ingredients)
		assert.NotNil(t, recipe.Instructions)
		assert.NotNil(t, recipe.DietaryPreferences)
	})

	cases := []struct {
		name  string
		raw   string
		field string
	}{
		{"missing title", `{"recipe":{"skill_level":"Beginner","cooking_time":"5 min"}}`, "recipe.title"},
		{"blank title", `{"recipe":{"title":"  ","skill_level":"Beginner","cooking_time":"5 min"}}`, "recipe.title"},
		{"bad skill level", `{"recipe":{"title":"X","skill_level":"Expert","cooking_time":"5 min"}}`, "recipe.skill_level"},
		{"bad cooking time", `{"recipe":{"title":"X","skill_level":"Beginner","cooking_time":"2 hours"}}`, "recipe.cooking_time"},
		{"missing recipe", `{"title":"X"}`, "recipe"},
	}
	for _, tc := range cases {
		t.Run("should reject "+tc.name, func(t *testing.T) {
			_, err := ParseRecipe(json.RawMessage(tc.raw), nil)

			var vErr *ValidationError
			require.True(t, errors.As(err, &vErr), "got %v", err)
			assert.True(t, vErr.HasField(tc.field), "fields: %+v", vErr.Fields)
			assert.Equal(t, errorsx.ReasonValidation, Reason(err))
		})
	}

	t.Run("should reject malformed json", func(t *testing.T) {
		_, err := ParseRecipe(json.RawMessage(`{"recipe":`), nil)
		assert.Equal(t, errorsx.ReasonValidation, Reason(err))
	})

	t.Run("should reject empty arguments", func(t *testing.T) {
		_, err := ParseRecipe(nil, nil)
		assert.Equal(t, errorsx.ReasonValidation, Reason(err))
	})
}

func TestParseTaskSteps(t *testing.T) {
	t.Run("should parse and trim steps", func(t *testing.T) {
		steps, err := ParseTaskSteps(json.RawMessage(`{"steps":[{"description":" Mix ","status":"enabled"},{"description":"Bake","status":"disabled"}]}`))
		require.NoError(t, err)
		assert.Equal(t, []TaskStep{{Description: "Mix", Status: StepEnabled}, {Description: "Bake", Status: StepDisabled}}, steps)
	})

	t.Run("should reject an empty list", func(t *testing.T) {
		_, err := ParseTaskSteps(json.RawMessage(`{"steps":[]}`))
		assert.Equal(t, errorsx.ReasonValidation, Reason(err))
	})

	t.Run("should reject an unknown status", func(t *testing.T) {
		_, err := ParseTaskSteps(json.RawMessage(`{"steps":[{"description":"Mix","status":"done"}]}`))
		assert.Equal(t, errorsx.ReasonValidation, Reason(err))
	})
}

func TestParseHaiku(t *testing.T) {
	catalog := imagecatalog.New([]string{"a.jpg", "b.jpg", "c.jpg"})

	t.Run("should keep valid images and select the first", func(t *testing.T) {
		haiku, err := ParseHaiku(json.RawMessage(`{"japanese":["一"],"english":["one"],"image_names":["b.jpg","a.jpg","c.jpg"]}`), catalog)
		require.NoError(t, err)
		assert.Equal(t, []string{"b.jpg", "a.jpg", "c.jpg"}, haiku.ImageNames)
		assert.Equal(t, "b.jpg", haiku.SelectedImage)
	})

	t.Run("should fill missing images from the catalog", func(t *testing.T) {
		haiku, err := ParseHaiku(json.RawMessage(`{"japanese":["一"],"english":["one"]}`), catalog)
		require.NoError(t, err)
		assert.Equal(t, []string{"a.jpg", "b.jpg", "c.jpg"}, haiku.ImageNames)
		assert.Equal(t, "a.jpg", haiku.SelectedImage)
	})

	t.Run("should reject a haiku without lines", func(t *testing.T) {
		_, err := ParseHaiku(json.RawMessage(`{"japanese":[],"english":["one"]}`), catalog)
		assert.Equal(t, errorsx.ReasonValidation, Reason(err))
	})
}
