package errorsx

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	ReasonProviderCall    ReasonCode = "provider_call"
	ReasonProviderTimeout ReasonCode = "provider_timeout"
	ReasonProviderSetup   ReasonCode = "provider_setup"

	ReasonUnknownTool   ReasonCode = "unknown_tool"
	ReasonValidation    ReasonCode = "validation"
	ReasonToolExecution ReasonCode = "tool_execution"

	ReasonMaxTurns  ReasonCode = "max_turns"
	ReasonCancelled ReasonCode = "cancelled"

	ReasonTransportSend ReasonCode = "transport_send"
)
