package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EnqueuerRepository stores new tasks.
type EnqueuerRepository interface {
	CreateTask(ctx context.Context, task *Task) error
}

// Enqueuer builds tasks, passes them through the enqueue middlewares and stores them.
type Enqueuer struct {
	repo     EnqueuerRepository
	defaults enqueueOptions
	send     EnqueueFunc
}

func NewEnqueuer(repo EnqueuerRepository, opts ...EnqueuerOption) (*Enqueuer, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}

	e := &Enqueuer{
		repo: repo,
		defaults: enqueueOptions{
			queue:      DefaultQueueName,
			priority:   PriorityDefault,
			maxRetries: 3,
		},
	}
	var mws []EnqueueMiddleware
	for _, opt := range opts {
		opt(&e.defaults, &mws)
	}
	e.send = chainEnqueue(e.store, mws)
	return e, nil
}

// Enqueue marshals payload into a new pending task. The task name defaults
// to the payload's qualified type name, which is what NewTaskHandler registers.
func (e *Enqueuer) Enqueue(ctx context.Context, payload any, opts ...EnqueueOption) error {
	if payload == nil {
		return ErrPayloadNil
	}

	o := e.defaults
	o.stamps = nil
	for _, opt := range opts {
		opt(&o)
	}
	if !o.priority.Valid() {
		return ErrInvalidPriority
	}

	task, err := newTask(payload, o, time.Now())
	if err != nil {
		return err
	}
	return e.send(ctx, task)
}

func (e *Enqueuer) store(ctx context.Context, task *Task) error {
	if err := e.repo.CreateTask(ctx, task); err != nil {
		return fmt.Errorf("create task %q in queue %q: %w", task.TaskName, task.Queue, err)
	}
	return nil
}

func newTask(payload any, o enqueueOptions, now time.Time) (*Task, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %T payload: %w", payload, err)
	}

	name := o.taskName
	if name == "" {
		name = qualifiedStructName(payload)
	}

	due := now
	switch {
	case !o.scheduledAt.IsZero():
		due = o.scheduledAt
	case o.delay > 0:
		due = now.Add(o.delay)
	}

	return &Task{
		ID:          uuid.New(),
		Queue:       o.queue,
		TaskName:    name,
		Payload:     raw,
		Stamps:      o.stamps,
		Status:      TaskStatusPending,
		Priority:    o.priority,
		MaxRetries:  o.maxRetries,
		ScheduledAt: due,
		CreatedAt:   now,
	}, nil
}
