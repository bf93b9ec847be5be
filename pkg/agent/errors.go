package agent

import (
	"errors"
	"fmt"
	"strings"

	"github.com/harun/agentbridge/pkg/errorsx"
)

// ReasonCode classifies a recovered turn error.
type ReasonCode = errorsx.ReasonCode

// ErrMaxTurns is returned by Runner.Run when the turn bound is hit.
var ErrMaxTurns = errors.New("maximum turns exceeded")

// WrapReason attaches a reason code to err. An existing code wins.
func WrapReason(err error, reason ReasonCode) error {
	return errorsx.Wrap(err, reason)
}

// Reason returns the reason code carried by err, or "" for nil.
func Reason(err error) ReasonCode {
	return errorsx.Reason(err)
}

// UnknownToolError is recorded when the model calls a tool that is neither
// a caller action, a state applier nor a local handler.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool: %s", e.Name)
}

// FieldError names one offending field of a tool payload.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError is returned by the payload parsers.
type ValidationError struct {
	Tool   string       `json:"tool"`
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return fmt.Sprintf("invalid %s payload: %s", e.Tool, strings.Join(parts, "; "))
}

// HasField reports whether field is among the offending fields.
func (e *ValidationError) HasField(field string) bool {
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

func invalid(tool string, fields ...FieldError) error {
	return errorsx.Wrap(&ValidationError{Tool: tool, Fields: fields}, errorsx.ReasonValidation)
}
