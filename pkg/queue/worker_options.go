package queue

import (
	"log/slog"
	"time"
)

// WorkerOption configures a Worker.
type WorkerOption func(*workerOptions)

type workerOptions struct {
	queues             []string
	pullInterval       time.Duration
	lockTimeout        time.Duration
	taskTimeout        time.Duration
	maxConcurrentTasks int
	logger             *slog.Logger
	middlewares        []HandlerMiddleware
}

// WithQueues limits the worker to the named queues.
func WithQueues(queues ...string) WorkerOption {
	return func(o *workerOptions) {
		if len(queues) > 0 {
			o.queues = queues
		}
	}
}

// WithPullInterval sets how often an idle worker polls for due tasks.
func WithPullInterval(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.pullInterval = d
		}
	}
}

// WithLockTimeout sets how long a claim holds a task before another worker
// may take it over.
func WithLockTimeout(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.lockTimeout = d
		}
	}
}

// WithTaskTimeout bounds a single handler call. It defaults to the lock
// timeout; longer values keep the lock alive with a heartbeat.
func WithTaskTimeout(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.taskTimeout = d
		}
	}
}

func WithMaxConcurrentTasks(n int) WorkerOption {
	return func(o *workerOptions) {
		if n > 0 {
			o.maxConcurrentTasks = n
		}
	}
}

func WithWorkerLogger(logger *slog.Logger) WorkerOption {
	return func(o *workerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithHandlerMiddleware appends middlewares around every handler call.
// They run in the order given.
func WithHandlerMiddleware(mws ...HandlerMiddleware) WorkerOption {
	return func(o *workerOptions) {
		o.middlewares = append(o.middlewares, mws...)
	}
}
