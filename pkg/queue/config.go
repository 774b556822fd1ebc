package queue

import "time"

// Config holds worker settings loaded from QUEUE_* variables.
type Config struct {
	Queues             []string      `env:"QUEUE_NAMES" envSeparator:"," envDefault:"default"`
	PollInterval       time.Duration `env:"QUEUE_POLL_INTERVAL" envDefault:"5s"`
	LockTimeout        time.Duration `env:"QUEUE_LOCK_TIMEOUT" envDefault:"5m"`
	TaskTimeout        time.Duration `env:"QUEUE_TASK_TIMEOUT"`
	MaxConcurrentTasks int           `env:"QUEUE_MAX_CONCURRENT_TASKS" envDefault:"10"`
}

// WorkerOptions converts the config into worker options.
func (c Config) WorkerOptions() []WorkerOption {
	return []WorkerOption{
		WithQueues(c.Queues...),
		WithPullInterval(c.PollInterval),
		WithLockTimeout(c.LockTimeout),
		WithTaskTimeout(c.TaskTimeout),
		WithMaxConcurrentTasks(c.MaxConcurrentTasks),
	}
}
