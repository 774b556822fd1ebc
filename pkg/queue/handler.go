package queue

import (
	"context"
	"encoding/json"
)

// Handler processes the payload of tasks whose TaskName equals Name().
type Handler interface {
	Name() string
	Handle(ctx context.Context, payload json.RawMessage) error
}

// TaskHandlerFunc handles a decoded payload.
type TaskHandlerFunc[T any] func(ctx context.Context, payload T) error

// NewTaskHandler derives the task name from the payload type, matching Enqueue.
func NewTaskHandler[T any](handler TaskHandlerFunc[T]) Handler {
	var payload T
	return &taskHandler[T]{
		name:    qualifiedStructName(payload),
		handler: handler,
	}
}

// NewNamedTaskHandler registers handler under an explicit name (see WithTaskName).
func NewNamedTaskHandler[T any](name string, handler TaskHandlerFunc[T]) Handler {
	return &taskHandler[T]{name: name, handler: handler}
}

type taskHandler[T any] struct {
	name    string
	handler TaskHandlerFunc[T]
}

func (h *taskHandler[T]) Name() string {
	return h.name
}

func (h *taskHandler[T]) Handle(ctx context.Context, payload json.RawMessage) error {
	var t T
	if err := json.Unmarshal(payload, &t); err != nil {
		return err
	}
	return h.handler(ctx, t)
}
