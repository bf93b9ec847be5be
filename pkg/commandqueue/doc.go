// Package commandqueue serializes work per lane. Hosts use one lane per
// conversation thread so turns of a thread never overlap while different
// threads run concurrently.
//
// Invariants:
// - Tasks in the same lane execute in FIFO order.
// - Tasks in different lanes may execute concurrently.
// - Idle lanes are dropped; a later enqueue recreates them.
// - A task carrying a RequestID seen within the dedup TTL returns the cached result.
//
// Usage:
//
//	queue := commandqueue.New(commandqueue.Options{})
//	defer queue.Close()
//	result, err := queue.EnqueueWithContext(ctx, commandqueue.ThreadLane("abc"), func(ctx context.Context) (interface{}, error) {
//		return runner.Run(ctx, state)
//	}, nil)
package commandqueue
