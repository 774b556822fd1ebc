package queue

import "time"

// EnqueuerOption sets Enqueuer defaults or adds enqueue middlewares.
type EnqueuerOption func(defaults *enqueueOptions, mws *[]EnqueueMiddleware)

// WithDefaultQueue sets the queue used when Enqueue is not given WithQueue.
func WithDefaultQueue(queue string) EnqueuerOption {
	return func(d *enqueueOptions, _ *[]EnqueueMiddleware) {
		WithQueue(queue)(d)
	}
}

func WithDefaultPriority(priority Priority) EnqueuerOption {
	return func(d *enqueueOptions, _ *[]EnqueueMiddleware) {
		if priority.Valid() {
			d.priority = priority
		}
	}
}

func WithDefaultMaxRetries(n int8) EnqueuerOption {
	return func(d *enqueueOptions, _ *[]EnqueueMiddleware) {
		WithMaxRetries(n)(d)
	}
}

// WithEnqueueMiddleware appends middlewares to the enqueue path.
// They run in the order given, before the task is stored.
func WithEnqueueMiddleware(mws ...EnqueueMiddleware) EnqueuerOption {
	return func(_ *enqueueOptions, chain *[]EnqueueMiddleware) {
		*chain = append(*chain, mws...)
	}
}

// EnqueueOption adjusts a single Enqueue call.
type EnqueueOption func(*enqueueOptions)

type enqueueOptions struct {
	queue       string
	taskName    string
	priority    Priority
	maxRetries  int8
	delay       time.Duration
	scheduledAt time.Time
	stamps      []Stamp
}

func WithQueue(queue string) EnqueueOption {
	return func(o *enqueueOptions) {
		if queue != "" {
			o.queue = queue
		}
	}
}

// WithPriority overrides the priority; Enqueue rejects values outside 0..100.
func WithPriority(priority Priority) EnqueueOption {
	return func(o *enqueueOptions) {
		o.priority = priority
	}
}

// WithMaxRetries sets the attempt budget. Values outside 0..10 are ignored.
func WithMaxRetries(n int8) EnqueueOption {
	return func(o *enqueueOptions) {
		if n >= 0 && n <= 10 {
			o.maxRetries = n
		}
	}
}

// WithDelay makes the task due after d. WithScheduledAt takes precedence.
func WithDelay(d time.Duration) EnqueueOption {
	return func(o *enqueueOptions) {
		if d > 0 {
			o.delay = d
		}
	}
}

func WithScheduledAt(at time.Time) EnqueueOption {
	return func(o *enqueueOptions) {
		o.scheduledAt = at
	}
}

// WithTaskName overrides the type-derived name. Register the handler with
// NewNamedTaskHandler under the same name.
func WithTaskName(name string) EnqueueOption {
	return func(o *enqueueOptions) {
		if name != "" {
			o.taskName = name
		}
	}
}

// WithStamps attaches stamps before enqueue middlewares run.
func WithStamps(stamps ...Stamp) EnqueueOption {
	return func(o *enqueueOptions) {
		o.stamps = append(o.stamps, stamps...)
	}
}
