package toolexecutor

import "context"

// CallInfo identifies the conversation and tool call a handler serves.
type CallInfo struct {
	ThreadID   string
	RunID      string
	ToolCallID string
}

type callInfoKey struct{}

// WithCallInfo returns ctx carrying info. A nil info leaves ctx unchanged.
func WithCallInfo(ctx context.Context, info *CallInfo) context.Context {
	if info == nil {
		return ctx
	}
	return context.WithValue(ctx, callInfoKey{}, info)
}

// CallInfoFrom returns the call attached by WithCallInfo, or nil.
func CallInfoFrom(ctx context.Context) *CallInfo {
	info, _ := ctx.Value(callInfoKey{}).(*CallInfo)
	return info
}
