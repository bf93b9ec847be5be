package agent

import (
	"encoding/json"
	"strings"

	"github.com/harun/agentbridge/pkg/coretools"
)

var taskStepsSchema = mustSchema(map[string]interface{}{
	"type":     "object",
	"required": []string{"steps"},
	"properties": map[string]interface{}{
		"steps": map[string]interface{}{
			"type":     "array",
			"minItems": 1,
			"items": map[string]interface{}{
				"type":     "object",
				"required": []string{"description", "status"},
				"properties": map[string]interface{}{
					"description": nonEmptyString(),
					"status": map[string]interface{}{
						"type": "string",
						"enum": []string{string(StepEnabled), string(StepDisabled)},
					},
				},
			},
		},
	},
})

type taskStepsArgs struct {
	Steps []TaskStep `json:"steps"`
}

// ParseTaskSteps validates a generate_task_steps payload.
func ParseTaskSteps(raw json.RawMessage) ([]TaskStep, error) {
	var args taskStepsArgs
	if err := validatePayload(coretools.GenerateTaskSteps.String(), taskStepsSchema, raw, &args); err != nil {
		return nil, err
	}
	for i := range args.Steps {
		args.Steps[i].Description = strings.TrimSpace(args.Steps[i].Description)
	}
	return args.Steps, nil
}
