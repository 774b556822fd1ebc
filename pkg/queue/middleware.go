package queue

import "context"

// EnqueueFunc stores a fully built task.
type EnqueueFunc func(ctx context.Context, task *Task) error

// EnqueueMiddleware wraps the enqueue path, typically to add stamps.
type EnqueueMiddleware func(next EnqueueFunc) EnqueueFunc

// HandleFunc processes a claimed task.
type HandleFunc func(ctx context.Context, task *Task) error

// HandlerMiddleware wraps task processing, typically to restore state from stamps.
type HandlerMiddleware func(next HandleFunc) HandleFunc

// chainEnqueue applies middlewares so that the first one listed runs first.
func chainEnqueue(final EnqueueFunc, mws []EnqueueMiddleware) EnqueueFunc {
	for i := len(mws) - 1; i >= 0; i-- {
		final = mws[i](final)
	}
	return final
}

// chainHandle applies middlewares so that the first one listed runs first.
func chainHandle(final HandleFunc, mws []HandlerMiddleware) HandleFunc {
	for i := len(mws) - 1; i >= 0; i-- {
		final = mws[i](final)
	}
	return final
}
