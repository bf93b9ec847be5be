package agent

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/harun/agentbridge/internal/observability"
	"github.com/harun/agentbridge/internal/tracing"
	"github.com/harun/agentbridge/pkg/coretools"
	"github.com/harun/agentbridge/pkg/errorsx"
	"github.com/harun/agentbridge/pkg/imagecatalog"
)

func TestNewRouter(t *testing.T) {
	t.Run("should require a provider", func(t *testing.T) {
		_, err := NewRouter(RouterConfig{})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "provider")
	})

	t.Run("should default executor and catalog", func(t *testing.T) {
		router, err := NewRouter(RouterConfig{Provider: NewScriptedProvider()})
		require.NoError(t, err)
		assert.True(t, router.executor.Has("get_weather"))
		assert.Equal(t, len(imagecatalog.DefaultNames), router.catalog.Len())
	})
}

func TestRouterTools(t *testing.T) {
	t.Run("should list caller actions before registry tools", func(t *testing.T) {
		router, _ := newTestRouter(t, NewScriptedProvider(), nil)
		state := &AgentState{Actions: []ToolSchema{{Name: "change_background", Description: "bg"}}}

		tools := router.Tools(state)
		require.Len(t, tools, 5)
		assert.Equal(t, "change_background", tools[0].Name)
		assert.Equal(t, "generate_recipe", tools[4].Name)
	})

	t.Run("should resolve duplicate names in favor of the caller", func(t *testing.T) {
		router, _ := newTestRouter(t, NewScriptedProvider(), nil)
		state := &AgentState{Actions: []ToolSchema{{Name: "get_weather", Description: "client weather"}}}

		tools := router.Tools(state)
		require.Len(t, tools, 4)
		assert.Equal(t, "client weather", tools[0].Description)
		for _, tool := range tools[1:] {
			assert.NotEqual(t, "get_weather", tool.Name)
		}
	})

	t.Run("should omit recipe tool when the feature is off", func(t *testing.T) {
		router, _ := newTestRouter(t, NewScriptedProvider(), func(c *RouterConfig) {
			c.Features = coretools.Features{}
		})
		for _, tool := range router.Tools(&AgentState{}) {
			assert.NotEqual(t, "generate_recipe", tool.Name)
		}
	})
}

func TestRouterTurn(t *testing.T) {
	ctx := context.Background()

	t.Run("should end when the model answers without a tool call", func(t *testing.T) {
		provider := NewScriptedProvider(Reply("Hello there"))
		router, _ := newTestRouter(t, provider, nil)
		state := userState("hi")
		state.Proverbs = []string{"A stitch in time"}

		result := router.Turn(ctx, state)

		assert.Equal(t, SignalEnd, result.Signal)
		assert.NoError(t, result.Err)
		assert.Nil(t, result.ToolCall)
		require.Len(t, state.Messages, 2)
		assert.Equal(t, RoleAssistant, state.Messages[1].Role)
		assert.Equal(t, "Hello there", state.Messages[1].Content)
		assert.NotEmpty(t, state.Messages[1].ID)
		assert.Equal(t, []string{"A stitch in time"}, state.Proverbs)
		assert.Nil(t, state.Recipe)
		assert.Nil(t, state.Steps)
	})

	t.Run("should answer the Boston weather request locally", func(t *testing.T) {
		provider := NewScriptedProvider(Reply("", call("call_1", "get_weather", `{"location":"Boston"}`)))
		router, _ := newTestRouter(t, provider, nil)
		state := userState("What's the weather in Boston?")

		result := router.Turn(ctx, state)

		assert.Equal(t, SignalFollowUp, result.Signal)
		assert.NoError(t, result.Err)
		require.Len(t, state.Messages, 3)
		assert.Len(t, state.Messages[1].ToolCalls, 1)
		tool := state.Messages[2]
		assert.Equal(t, RoleTool, tool.Role)
		assert.Equal(t, "call_1", tool.ToolCallID)
		assert.Equal(t,
			"The weather for Boston is 70 degrees, clear skies, 45% humidity, 5 mph wind, and feels like 72 degrees.",
			tool.Content)
	})

	t.Run("should hand caller actions back without a tool result", func(t *testing.T) {
		provider := NewScriptedProvider(Reply("", call("call_1", "change_background", `{"background":"blue"}`)))
		router, _ := newTestRouter(t, provider, nil)
		state := userState("make it blue")
		state.Actions = []ToolSchema{{Name: "change_background", Description: "Change the background"}}

		result := router.Turn(ctx, state)

		assert.Equal(t, SignalEnd, result.Signal)
		assert.NoError(t, result.Err)
		require.NotNil(t, result.ToolCall)
		assert.Equal(t, "change_background", result.ToolCall.Name)
		require.Len(t, state.Messages, 2)
		assert.Equal(t, RoleAssistant, state.Messages[1].Role)
	})

	t.Run("should not execute a registry tool shadowed by a caller action", func(t *testing.T) {
		provider := NewScriptedProvider(Reply("", call("call_1", "get_weather", `{"location":"Boston"}`)))
		router, _ := newTestRouter(t, provider, nil)
		state := userState("weather?")
		state.Actions = []ToolSchema{{Name: "get_weather", Description: "client side"}}

		result := router.Turn(ctx, state)

		assert.Equal(t, SignalEnd, result.Signal)
		assert.Len(t, state.Messages, 2)
	})

	t.Run("should apply a valid recipe and follow up", func(t *testing.T) {
		provider := NewScriptedProvider(Reply("", call("call_1", "generate_recipe", validRecipeArgs)))
		router, _ := newTestRouter(t, provider, nil)
		state := userState("pasta please")

		result := router.Turn(ctx, state)

		assert.Equal(t, SignalFollowUp, result.Signal)
		assert.NoError(t, result.Err)
		require.NotNil(t, state.Recipe)
		assert.Equal(t, "Tomato Pasta", state.Recipe.Title)
		assert.Equal(t, []string{"Boil pasta", "Add sauce"}, state.Recipe.Instructions)
		require.Len(t, state.Messages, 3)
		assert.Equal(t, "Recipe updated.", state.Messages[2].Content)
	})

	t.Run("should leave the recipe unchanged when title is missing", func(t *testing.T) {
		existing := &Recipe{Title: "Soup", SkillLevel: "Beginner", CookingTime: "30 min"}
		provider := NewScriptedProvider(Reply("", call("call_1", "generate_recipe",
			`{"recipe": {"skill_level": "Advanced", "cooking_time": "5 min"}}`)))
		router, _ := newTestRouter(t, provider, nil)
		state := userState("change it")
		state.Recipe = existing

		result := router.Turn(ctx, state)

		assert.Equal(t, SignalEnd, result.Signal)
		require.Error(t, result.Err)
		assert.Equal(t, errorsx.ReasonValidation, Reason(result.Err))
		var vErr *ValidationError
		require.True(t, errors.As(result.Err, &vErr))
		assert.True(t, vErr.HasField("recipe.title"))
		assert.Same(t, existing, state.Recipe)
		assert.Equal(t, "Soup", state.Recipe.Title)
		assert.Len(t, state.Messages, 2)
	})

	t.Run("should keep the recipe nil when the first payload is invalid", func(t *testing.T) {
		provider := NewScriptedProvider(Reply("", call("call_1", "generate_recipe", `{"recipe": {"title": "X", "skill_level": "Expert", "cooking_time": "5 min"}}`)))
		router, _ := newTestRouter(t, provider, nil)
		state := userState("recipe")

		result := router.Turn(ctx, state)

		assert.Equal(t, SignalEnd, result.Signal)
		assert.Nil(t, state.Recipe)
		assert.Equal(t, errorsx.ReasonValidation, Reason(result.Err))
	})

	t.Run("should treat generate_recipe as unknown when the feature is off", func(t *testing.T) {
		provider := NewScriptedProvider(Reply("", call("call_1", "generate_recipe", validRecipeArgs)))
		router, _ := newTestRouter(t, provider, func(c *RouterConfig) { c.Features = coretools.Features{} })
		state := userState("recipe")

		result := router.Turn(ctx, state)

		assert.Equal(t, SignalEnd, result.Signal)
		assert.Nil(t, state.Recipe)
		assert.Equal(t, errorsx.ReasonUnknownTool, Reason(result.Err))
	})

	t.Run("should process only the first of several tool calls", func(t *testing.T) {
		provider := NewScriptedProvider(Reply("",
			call("call_1", "get_weather", `{"location":"Boston"}`),
			call("call_2", "generate_haiku", `{"japanese":["a"],"english":["b"],"image_names":[]}`),
		))
		router, _ := newTestRouter(t, provider, nil)
		state := userState("both")

		result := router.Turn(ctx, state)

		assert.Equal(t, SignalFollowUp, result.Signal)
		require.Len(t, state.Messages, 3)
		require.Len(t, state.Messages[1].ToolCalls, 1)
		assert.Equal(t, "call_1", state.Messages[1].ToolCalls[0].ID)
		assert.Equal(t, "call_1", state.Messages[2].ToolCallID)
		assert.Nil(t, state.Haiku)
	})

	t.Run("should record an unknown tool without crashing", func(t *testing.T) {
		provider := NewScriptedProvider(Reply("", call("call_1", "launch_rocket", `{}`)))
		router, _ := newTestRouter(t, provider, nil)
		state := userState("go")

		result := router.Turn(ctx, state)

		assert.Equal(t, SignalEnd, result.Signal)
		var unknown *UnknownToolError
		require.True(t, errors.As(result.Err, &unknown))
		assert.Equal(t, "launch_rocket", unknown.Name)
		assert.Equal(t, errorsx.ReasonUnknownTool, Reason(result.Err))
		assert.Len(t, state.Messages, 2)
	})

	t.Run("should replace steps from generate_task_steps", func(t *testing.T) {
		provider := NewScriptedProvider(Reply("", call("call_1", "generate_task_steps",
			`{"steps":[{"description":"Dig hole","status":"enabled"},{"description":"Plant tree","status":"enabled"}]}`)))
		router, _ := newTestRouter(t, provider, nil)
		state := userState("plant a tree")
		state.Steps = []TaskStep{{Description: "Old", Status: StepDisabled}}

		result := router.Turn(ctx, state)

		assert.Equal(t, SignalFollowUp, result.Signal)
		assert.Equal(t, []TaskStep{
			{Description: "Dig hole", Status: StepEnabled},
			{Description: "Plant tree", Status: StepEnabled},
		}, state.Steps)
		assert.Equal(t, "Steps updated.", state.Messages[2].Content)
	})

	t.Run("should store a haiku with corrected images", func(t *testing.T) {
		catalog := imagecatalog.New([]string{"a.jpg", "b.jpg", "c.jpg", "d.jpg"})
		provider := NewScriptedProvider(Reply("", call("call_1", "generate_haiku",
			`{"japanese":["古池や"],"english":["An old pond"],"image_names":["c.jpg","nope.jpg","c.jpg"]}`)))
		router, _ := newTestRouter(t, provider, func(c *RouterConfig) { c.Catalog = catalog })
		state := userState("haiku")

		result := router.Turn(ctx, state)

		assert.Equal(t, SignalFollowUp, result.Signal)
		require.NotNil(t, state.Haiku)
		assert.Equal(t, []string{"c.jpg", "a.jpg", "b.jpg"}, state.Haiku.ImageNames)
		assert.Equal(t, "c.jpg", state.Haiku.SelectedImage)
		assert.Equal(t, "Haiku generated.", state.Messages[2].Content)
	})

	t.Run("should end with a validation error for bad local tool args", func(t *testing.T) {
		provider := NewScriptedProvider(Reply("", call("call_1", "get_weather", `{"city":"Boston"}`)))
		router, _ := newTestRouter(t, provider, nil)
		state := userState("weather")

		result := router.Turn(ctx, state)

		assert.Equal(t, SignalEnd, result.Signal)
		assert.Equal(t, errorsx.ReasonValidation, Reason(result.Err))
		assert.Len(t, state.Messages, 2)
	})

	t.Run("should end with provider_call when the provider fails", func(t *testing.T) {
		provider := NewScriptedProvider(ScriptStep{Err: errors.New("boom")})
		router, _ := newTestRouter(t, provider, nil)
		state := userState("hi")

		result := router.Turn(ctx, state)

		assert.Equal(t, SignalEnd, result.Signal)
		assert.Equal(t, errorsx.ReasonProviderCall, Reason(result.Err))
		assert.Len(t, state.Messages, 1)
	})

	t.Run("should end with provider_timeout when the call is too slow", func(t *testing.T) {
		provider := NewScriptedProvider(ScriptStep{Delay: 2 * time.Second, Response: &LLMResponse{Content: "late"}})
		router, _ := newTestRouter(t, provider, func(c *RouterConfig) { c.ProviderTimeout = 20 * time.Millisecond })
		state := userState("hi")

		result := router.Turn(ctx, state)

		assert.Equal(t, SignalEnd, result.Signal)
		assert.Equal(t, errorsx.ReasonProviderTimeout, Reason(result.Err))
		assert.Len(t, state.Messages, 1)
	})

	t.Run("should leave state untouched when cancelled mid call", func(t *testing.T) {
		provider := NewScriptedProvider(ScriptStep{Delay: 2 * time.Second, Response: &LLMResponse{Content: "late"}})
		router, _ := newTestRouter(t, provider, nil)
		state := userState("hi")

		cctx, cancel := context.WithCancel(ctx)
		go func() {
			time.Sleep(20 * time.Millisecond)
			cancel()
		}()
		result := router.Turn(cctx, state)

		assert.Equal(t, SignalEnd, result.Signal)
		assert.Equal(t, errorsx.ReasonCancelled, Reason(result.Err))
		assert.Len(t, state.Messages, 1)
	})

	t.Run("should send prompt, history and merged tools to the provider", func(t *testing.T) {
		provider := NewScriptedProvider(Reply("ok"))
		router, _ := newTestRouter(t, provider, nil)
		state := userState("hi")
		state.Proverbs = []string{"Measure twice"}

		router.Turn(ctx, state)

		requests := provider.Requests()
		require.Len(t, requests, 1)
		req := requests[0]
		assert.False(t, req.ParallelToolCalls)
		assert.True(t, req.Stream)
		assert.Equal(t, "test-model", req.Model)
		assert.Contains(t, req.SystemPrompt, `["Measure twice"]`)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "hi", req.Messages[0].Content)
		assert.Len(t, req.Tools, 4)
	})
}

func TestRouterRecipeIdempotence(t *testing.T) {
	t.Run("should yield the same recipe when a payload is replayed", func(t *testing.T) {
		provider := NewScriptedProvider(
			Reply("", call("call_1", "generate_recipe", validRecipeArgs)),
			Reply("", call("call_2", "generate_recipe", validRecipeArgs)),
		)
		router, _ := newTestRouter(t, provider, nil)
		state := userState("pasta")

		router.Turn(context.Background(), state)
		first := *state.Recipe
		router.Turn(context.Background(), state)

		assert.Equal(t, first, *state.Recipe)
	})
}

func TestRouterStreaming(t *testing.T) {
	t.Run("should stream text and tool events for the first call only", func(t *testing.T) {
		provider := NewScriptedProvider(Reply("Checking",
			call("call_1", "get_weather", `{"location":"Paris"}`),
			call("call_2", "get_weather", `{"location":"Rome"}`),
		))
		router, rec := newTestRouter(t, provider, nil)
		ctx := tracing.NewRunContext(context.Background(), "thread-1", "run-1")

		router.Turn(ctx, userState("weather"))

		text := rec.OfType(EventTextDelta)
		require.Len(t, text, 1)
		assert.Equal(t, "Checking", text[0].Delta)
		assert.Equal(t, "thread-1", text[0].ThreadID)
		assert.Equal(t, "run-1", text[0].RunID)

		starts := rec.OfType(EventToolCallStart)
		require.Len(t, starts, 1)
		assert.Equal(t, "call_1", starts[0].ToolCallID)
		assert.Len(t, rec.OfType(EventToolCallEnd), 1)

		snapshots := rec.OfType(EventMessagesSnapshot)
		require.Len(t, snapshots, 1)
		assert.Len(t, snapshots[0].Messages, 3)
	})

	t.Run("should predict recipe state while arguments stream", func(t *testing.T) {
		provider := NewScriptedProvider(ScriptStep{
			Response: &LLMResponse{ToolCalls: []ToolCall{call("call_1", "generate_recipe",
				`{"recipe": {"title": "Pasta", "skill_level": "Beginner", "cooking_time": "15 min"}}`)}},
			Deltas: []StreamDelta{
				{Kind: DeltaToolStart, ToolCallID: "call_1", ToolName: "generate_recipe"},
				{Kind: DeltaToolArgs, ToolCallID: "call_1", Arguments: `{"recipe": {"title": "Pas`},
				{Kind: DeltaToolArgs, ToolCallID: "call_1", Arguments: `ta", "skill_level": "Beginner"`},
				{Kind: DeltaToolArgs, ToolCallID: "call_1", Arguments: `, "cooking_time": "15 min"}}`},
				{Kind: DeltaToolEnd, ToolCallID: "call_1"},
			},
		})
		router, rec := newTestRouter(t, provider, nil)
		state := userState("pasta")

		router.Turn(context.Background(), state)

		var predicted []Event
		for _, e := range rec.OfType(EventStateSnapshot) {
			if e.ToolCallID == "call_1" {
				predicted = append(predicted, e)
			}
		}
		require.NotEmpty(t, predicted)
		assert.Contains(t, gjson.GetBytes(predicted[0].Snapshot, "recipe.title").String(), "Pas")
		last := predicted[len(predicted)-1]
		assert.Equal(t, "15 min", gjson.GetBytes(last.Snapshot, "recipe.cooking_time").String())

		require.NotNil(t, state.Recipe)
		assert.Equal(t, "Pasta", state.Recipe.Title)
	})

	t.Run("should not predict state when the recipe feature is off", func(t *testing.T) {
		provider := NewScriptedProvider(Reply("", call("call_1", "generate_recipe", validRecipeArgs)))
		router, rec := newTestRouter(t, provider, func(c *RouterConfig) { c.Features = coretools.Features{} })

		router.Turn(context.Background(), userState("pasta"))

		assert.Empty(t, rec.OfType(EventStateSnapshot))
	})

	t.Run("should not emit deltas when streaming is disabled", func(t *testing.T) {
		provider := NewScriptedProvider(Reply("Hi"))
		router, rec := newTestRouter(t, provider, func(c *RouterConfig) { c.Stream = false })

		router.Turn(context.Background(), userState("hi"))

		assert.Empty(t, rec.OfType(EventTextDelta))
		assert.Nil(t, provider.Requests()[0].OnDelta)
	})
}

func TestRouterAppliersFailClosed(t *testing.T) {
	ctx := context.Background()
	seededSteps := []TaskStep{{Description: "Keep me", Status: StepEnabled}}
	seededHaiku := &Haiku{
		Japanese:      []string{"古池や"},
		English:       []string{"An old pond"},
		ImageNames:    []string{"a.jpg"},
		SelectedImage: "a.jpg",
	}

	tests := []struct {
		name  string
		tool  string
		args  string
		check func(t *testing.T, state *AgentState)
	}{
		{
			name: "should keep steps on an empty step list",
			tool: "generate_task_steps",
			args: `{"steps":[]}`,
			check: func(t *testing.T, state *AgentState) {
				assert.Equal(t, seededSteps, state.Steps)
			},
		},
		{
			name: "should keep steps on an unknown status",
			tool: "generate_task_steps",
			args: `{"steps":[{"description":"Dig","status":"maybe"}]}`,
			check: func(t *testing.T, state *AgentState) {
				assert.Equal(t, seededSteps, state.Steps)
			},
		},
		{
			name: "should keep the haiku when a verse is missing",
			tool: "generate_haiku",
			args: `{"japanese":[],"english":["A frog jumps"]}`,
			check: func(t *testing.T, state *AgentState) {
				assert.Equal(t, seededHaiku, state.Haiku)
			},
		},
		{
			name: "should keep the haiku on malformed arguments",
			tool: "generate_haiku",
			args: `{"japanese":["蛙"`,
			check: func(t *testing.T, state *AgentState) {
				assert.Equal(t, seededHaiku, state.Haiku)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := NewScriptedProvider(Reply("", call("call_1", tt.tool, tt.args)))
			router, rec := newTestRouter(t, provider, nil)
			state := userState("go")
			state.Steps = append([]TaskStep(nil), seededSteps...)
			h := seededHaiku.clone()
			state.Haiku = &h

			result := router.Turn(ctx, state)

			assert.Equal(t, SignalEnd, result.Signal)
			assert.Equal(t, errorsx.ReasonValidation, Reason(result.Err))
			tt.check(t, state)
			require.Len(t, state.Messages, 2)
			for _, m := range state.Messages {
				assert.NotEqual(t, RoleTool, m.Role)
			}
			assert.Empty(t, rec.OfType(EventStateSnapshot))
		})
	}
}

func captureAudit(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := observability.GetAuditLogger()
	observability.SetAuditLogger(observability.NewAuditLogger(zerolog.New(&buf), nil))
	t.Cleanup(func() { observability.SetAuditLogger(prev) })
	return &buf
}

func auditEntries(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var entries []map[string]interface{}
	scanner := bufio.NewScanner(bytes.NewReader(buf.Bytes()))
	for scanner.Scan() {
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
		entries = append(entries, entry)
	}
	return entries
}

func TestRouterAudit(t *testing.T) {
	ctx := tracing.NewRunContext(context.Background(), "thread-a", "run-a")

	t.Run("should record the changed recipe fields", func(t *testing.T) {
		buf := captureAudit(t)
		provider := NewScriptedProvider(
			Reply("", call("c1", "generate_recipe", validRecipeArgs)),
			Reply("", call("c2", "generate_recipe",
				`{"recipe":{"title":"Spicy Tomato Pasta","skill_level":"Beginner","cooking_time":"15 min"}}`)),
		)
		router, _ := newTestRouter(t, provider, nil)
		state := userState("pasta")

		require.Equal(t, SignalFollowUp, router.Turn(ctx, state).Signal)
		require.Equal(t, SignalFollowUp, router.Turn(ctx, state).Signal)

		entries := auditEntries(t, buf)
		require.Len(t, entries, 2)

		first := entries[0]
		assert.Equal(t, "apply:generate_recipe", first["action"])
		assert.Equal(t, "applied", first["status"])
		assert.Equal(t, "thread-a", first["thread_id"])
		assert.Equal(t, "run-a", first["run_id"])
		meta := first["metadata"].(map[string]interface{})
		assert.Equal(t, "c1", meta["tool_call_id"])
		assert.Equal(t, []interface{}{"recipe"}, meta["keys"])
		assert.Equal(t, []interface{}{
			"title", "skill_level", "cooking_time", "dietary_preferences", "ingredients", "instructions",
		}, meta["fields"])

		meta = entries[1]["metadata"].(map[string]interface{})
		assert.Equal(t, "c2", meta["tool_call_id"])
		assert.Equal(t, []interface{}{"title"}, meta["fields"])
	})

	t.Run("should record the state key for steps and haiku", func(t *testing.T) {
		buf := captureAudit(t)
		provider := NewScriptedProvider(
			Reply("", call("c1", "generate_task_steps", `{"steps":[{"description":"Dig","status":"enabled"}]}`)),
			Reply("", call("c2", "generate_haiku", `{"japanese":["古池や"],"english":["An old pond"]}`)),
		)
		router, _ := newTestRouter(t, provider, nil)
		state := userState("go")

		router.Turn(ctx, state)
		router.Turn(ctx, state)

		entries := auditEntries(t, buf)
		require.Len(t, entries, 2)
		assert.Equal(t, []interface{}{"steps"}, entries[0]["metadata"].(map[string]interface{})["keys"])
		assert.Equal(t, []interface{}{"haiku"}, entries[1]["metadata"].(map[string]interface{})["keys"])
		assert.NotContains(t, entries[1]["metadata"], "fields")
	})

	t.Run("should record rejected payloads with the error", func(t *testing.T) {
		buf := captureAudit(t)
		provider := NewScriptedProvider(Reply("", call("c9", "generate_task_steps", `{"steps":[]}`)))
		router, _ := newTestRouter(t, provider, nil)

		router.Turn(ctx, userState("go"))

		entries := auditEntries(t, buf)
		require.Len(t, entries, 1)
		assert.Equal(t, "rejected", entries[0]["status"])
		meta := entries[0]["metadata"].(map[string]interface{})
		assert.Equal(t, "c9", meta["tool_call_id"])
		assert.Contains(t, meta["error"], "generate_task_steps")
	})
}
