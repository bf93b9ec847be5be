package agent

import (
	"encoding/json"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const rootField = "(root)"

func mustSchema(schema map[string]interface{}) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schema))
	if err != nil {
		panic("agent: invalid payload schema: " + err.Error())
	}
	return s
}

// validatePayload checks raw arguments against schema and decodes them into out.
func validatePayload(tool string, schema *gojsonschema.Schema, raw json.RawMessage, out interface{}) error {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return invalid(tool, FieldError{Field: rootField, Message: "arguments are empty"})
	}
	if !json.Valid([]byte(trimmed)) {
		return invalid(tool, FieldError{Field: rootField, Message: "arguments are not valid JSON"})
	}

	result, err := schema.Validate(gojsonschema.NewStringLoader(trimmed))
	if err != nil {
		return invalid(tool, FieldError{Field: rootField, Message: err.Error()})
	}
	if !result.Valid() {
		return invalid(tool, fieldErrors(result)...)
	}

	if err := json.Unmarshal([]byte(trimmed), out); err != nil {
		return invalid(tool, FieldError{Field: rootField, Message: err.Error()})
	}
	return nil
}

func fieldErrors(result *gojsonschema.Result) []FieldError {
	out := make([]FieldError, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		field := e.Field()
		if e.Type() == "required" {
			if prop, ok := e.Details()["property"].(string); ok {
				if field == rootField {
					field = prop
				} else {
					field = field + "." + prop
				}
			}
		}
		out = append(out, FieldError{Field: field, Message: e.Description()})
	}
	return out
}

func stringArray(minItems int) map[string]interface{} {
	s := map[string]interface{}{
		"type":  "array",
		"items": map[string]interface{}{"type": "string"},
	}
	if minItems > 0 {
		s["minItems"] = minItems
	}
	return s
}

func nonEmptyString() map[string]interface{} {
	return map[string]interface{}{"type": "string", "minLength": 1, "pattern": `\S`}
}
