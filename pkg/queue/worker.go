package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// WorkerRepository is the storage side of a Worker.
type WorkerRepository interface {
	// ClaimTask locks the next due task for workerID.
	// It returns ErrNoTaskToClaim when nothing is due.
	ClaimTask(ctx context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*Task, error)
	CompleteTask(ctx context.Context, taskID uuid.UUID) error
	// FailTask records errorMsg and either reschedules the task or marks it failed.
	FailTask(ctx context.Context, taskID uuid.UUID, errorMsg string) error
	MoveToDLQ(ctx context.Context, taskID uuid.UUID) error
	ExtendLock(ctx context.Context, taskID uuid.UUID, duration time.Duration) error
}

// Worker claims due tasks and dispatches them, through the handler
// middlewares, to the Handler registered under the task name.
type Worker struct {
	repo    WorkerRepository
	id      uuid.UUID
	opts    workerOptions
	log     *slog.Logger
	running atomic.Bool

	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewWorker creates a worker on repo.
func NewWorker(repo WorkerRepository, opts ...WorkerOption) (*Worker, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}

	o := workerOptions{
		queues:             []string{DefaultQueueName},
		pullInterval:       5 * time.Second,
		lockTimeout:        5 * time.Minute,
		maxConcurrentTasks: 1,
		logger:             slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.taskTimeout <= 0 {
		o.taskTimeout = o.lockTimeout
	}

	id := uuid.New()
	return &Worker{
		repo:     repo,
		id:       id,
		opts:     o,
		log:      o.logger.With(slog.String("worker_id", id.String())),
		handlers: make(map[string]Handler),
	}, nil
}

// ID identifies the worker in task locks.
func (w *Worker) ID() uuid.UUID {
	return w.id
}

// RegisterHandlers adds handlers; a later handler with the same name replaces the earlier one.
func (w *Worker) RegisterHandlers(handlers ...Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, h := range handlers {
		if h != nil {
			w.handlers[h.Name()] = h
		}
	}
}

// Run returns a function for errgroup.Group.Go. The function polls until ctx
// is done, then waits for in-flight tasks and returns nil.
func (w *Worker) Run(ctx context.Context) func() error {
	return func() error {
		if !w.running.CompareAndSwap(false, true) {
			return ErrWorkerAlreadyStarted
		}
		defer w.running.Store(false)

		w.mu.RLock()
		registered := len(w.handlers)
		w.mu.RUnlock()
		if registered == 0 {
			return ErrNoHandlers
		}

		w.log.InfoContext(ctx, "worker started",
			slog.Any("queues", w.opts.queues),
			slog.Int("max_concurrent", w.opts.maxConcurrentTasks))

		g := new(errgroup.Group)
		g.SetLimit(w.opts.maxConcurrentTasks)

		ticker := time.NewTicker(w.opts.pullInterval)
		defer ticker.Stop()

	poll:
		for {
			select {
			case <-ctx.Done():
				break poll
			case <-ticker.C:
				if !g.TryGo(w.drain(ctx, g)) {
					w.log.DebugContext(ctx, "all worker slots busy, skipping tick")
				}
			}
		}

		_ = g.Wait()
		w.log.Info("worker stopped")
		return nil
	}
}

// drain keeps claiming tasks until the queue is empty. Every claim offers a
// free slot to another drainer, so a backlog spreads over the pool.
func (w *Worker) drain(ctx context.Context, g *errgroup.Group) func() error {
	return func() error {
		for ctx.Err() == nil {
			claimed, err := w.ProcessNext(ctx)
			if err != nil && !errors.Is(err, ErrHandlerNotFound) {
				w.log.ErrorContext(ctx, "failed to process task", slog.String("error", err.Error()))
				return nil
			}
			if !claimed {
				return nil
			}
			g.TryGo(w.drain(ctx, g))
		}
		return nil
	}
}

// ProcessNext claims and processes at most one task. It reports whether a task was claimed.
// Handler errors are recorded on the task and not returned.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	task, err := w.repo.ClaimTask(ctx, w.id, w.opts.queues, w.opts.lockTimeout)
	switch {
	case errors.Is(err, ErrNoTaskToClaim):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("claim task: %w", err)
	case task == nil:
		return false, nil
	}

	log := w.log.With(
		slog.String("task_id", task.ID.String()),
		slog.String("task_name", task.TaskName),
		slog.String("queue", task.Queue))
	log.DebugContext(ctx, "claimed task")

	return true, w.process(ctx, task, log)
}

func (w *Worker) process(ctx context.Context, task *Task, log *slog.Logger) error {
	start := time.Now()
	// A claimed task is finished even during shutdown: keep ctx values, drop its cancellation.
	ctx = context.WithoutCancel(ctx)

	w.mu.RLock()
	handler, ok := w.handlers[task.TaskName]
	w.mu.RUnlock()
	if !ok {
		return w.deadLetter(ctx, task, log)
	}

	taskCtx, cancel := context.WithTimeout(ctx, w.opts.taskTimeout)
	defer cancel()

	stopHeartbeat := w.heartbeat(taskCtx, task.ID, log)
	defer stopHeartbeat()

	handle := chainHandle(func(ctx context.Context, t *Task) error {
		return handler.Handle(ctx, t.Payload)
	}, w.opts.middlewares)

	if herr := safeHandle(taskCtx, handle, task); herr != nil {
		return w.fail(ctx, task, herr, time.Since(start), log)
	}

	if err := w.repo.CompleteTask(ctx, task.ID); err != nil {
		return fmt.Errorf("complete task %s: %w", task.ID, err)
	}
	log.InfoContext(ctx, "task completed", slog.Duration("duration", time.Since(start)))
	return nil
}

func safeHandle(ctx context.Context, handle HandleFunc, task *Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in handler: %v", r)
		}
	}()
	return handle(ctx, task)
}

// heartbeat extends the task lock at half the lock timeout until stopped,
// so handlers running longer than the lock keep ownership.
func (w *Worker) heartbeat(ctx context.Context, taskID uuid.UUID, log *slog.Logger) func() {
	every := w.opts.lockTimeout / 2
	if every <= 0 || w.opts.taskTimeout <= every {
		return func() {}
	}

	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := w.repo.ExtendLock(ctx, taskID, w.opts.lockTimeout); err != nil {
					log.WarnContext(ctx, "failed to extend task lock", slog.String("error", err.Error()))
				}
			}
		}
	}()
	return func() {
		close(done)
		<-stopped
	}
}

// deadLetter sends a task without handler straight to the DLQ: retrying cannot help.
func (w *Worker) deadLetter(ctx context.Context, task *Task, log *slog.Logger) error {
	log.ErrorContext(ctx, "no handler registered for task type")

	if err := w.repo.FailTask(ctx, task.ID, ErrHandlerNotFound.Error()+": "+task.TaskName); err != nil {
		return fmt.Errorf("fail task %s: %w", task.ID, err)
	}
	if err := w.repo.MoveToDLQ(ctx, task.ID); err != nil {
		return fmt.Errorf("move task %s to DLQ: %w", task.ID, err)
	}
	return ErrHandlerNotFound
}

func (w *Worker) fail(ctx context.Context, task *Task, cause error, took time.Duration, log *slog.Logger) error {
	log.ErrorContext(ctx, "task failed",
		slog.Int("retry_count", int(task.RetryCount)),
		slog.Int("max_retries", int(task.MaxRetries)),
		slog.Duration("duration", took),
		slog.String("error", cause.Error()))

	if err := w.repo.FailTask(ctx, task.ID, cause.Error()); err != nil {
		return fmt.Errorf("fail task %s: %w", task.ID, err)
	}

	// task is the pre-failure snapshot, so the attempt just made is RetryCount+1.
	if task.RetryCount+1 < task.MaxRetries {
		return nil
	}
	if err := w.repo.MoveToDLQ(ctx, task.ID); err != nil {
		return fmt.Errorf("move task %s to DLQ: %w", task.ID, err)
	}
	log.WarnContext(ctx, "task moved to dead letter queue")
	return nil
}
