package coretools

import (
	"context"
	"fmt"

	"github.com/mitchellh/mapstructure"
	"github.com/rs/zerolog/log"

	"github.com/harun/agentbridge/pkg/toolexecutor"
)

type weatherArgs struct {
	Location string `mapstructure:"location"`
}

// WeatherReport is the canned answer get_weather gives for any location.
func WeatherReport(location string) string {
	return fmt.Sprintf("The weather for %s is 70 degrees, clear skies, 45%% humidity, 5 mph wind, and feels like 72 degrees.", location)
}

func weatherTool() toolexecutor.ToolDefinition {
	schema := WeatherSchema()
	return toolexecutor.ToolDefinition{
		Name:        schema.Name,
		Description: schema.Description,
		Parameters:  schema.Parameters,
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			var args weatherArgs
			if err := mapstructure.Decode(params, &args); err != nil {
				return nil, fmt.Errorf("decode weather args: %w", err)
			}

			ev := log.Debug().Str("location", args.Location)
			if call := toolexecutor.CallInfoFrom(ctx); call != nil {
				ev = ev.Str("thread_id", call.ThreadID).Str("tool_call_id", call.ToolCallID)
			}
			ev.Msg("Answering weather request")

			return WeatherReport(args.Location), nil
		},
	}
}
