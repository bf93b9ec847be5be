// Package agent runs the model/tool control loop over a shared conversation state.
//
// Invariants:
// - Each turn appends at most one assistant message carrying at most one tool call.
// - State is mutated only after the provider call returns; a failed payload leaves it untouched.
// - Tool calls named by caller actions are never executed locally.
// - Turns of one conversation are sequential; hosts serialize runs per thread through commandqueue.
//
// Usage:
//
//	router, _ := agent.NewRouter(agent.RouterConfig{Provider: provider, Model: "gpt-4o"})
//	runner, _ := agent.NewRunner(agent.Config{Router: router})
//	result, err := runner.Run(ctx, &agent.AgentState{Messages: history})
//	_, _ = result, err
package agent
