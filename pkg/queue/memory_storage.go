package queue

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// retryBackoff is multiplied by the retry count to delay the next attempt.
const retryBackoff = 30 * time.Second

// MemoryStorage implements EnqueuerRepository and WorkerRepository in memory,
// for tests, local development and console runs.
type MemoryStorage struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*Task
	dlq   []*TasksDlq

	stop      chan struct{}
	closeOnce sync.Once
}

// NewMemoryStorage creates the storage and starts the lock-expiry sweeper.
func NewMemoryStorage() *MemoryStorage {
	ms := &MemoryStorage{
		tasks: make(map[uuid.UUID]*Task),
		stop:  make(chan struct{}),
	}
	go ms.sweep(time.Second)
	return ms
}

// Close stops the sweeper. Safe to call more than once.
func (ms *MemoryStorage) Close() error {
	ms.closeOnce.Do(func() { close(ms.stop) })
	return nil
}

func (ms *MemoryStorage) CreateTask(_ context.Context, task *Task) error {
	if task == nil {
		return errors.New("task cannot be nil")
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, exists := ms.tasks[task.ID]; exists {
		return fmt.Errorf("task with ID %s already exists", task.ID)
	}
	ms.tasks[task.ID] = task.clone()
	return nil
}

// ClaimTask picks the due pending task with the highest priority, oldest first.
func (ms *MemoryStorage) ClaimTask(_ context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*Task, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := time.Now()
	var best *Task
	for _, task := range ms.tasks {
		if task.Status != TaskStatusPending || task.ScheduledAt.After(now) || !slices.Contains(queues, task.Queue) {
			continue
		}
		if best == nil ||
			task.Priority > best.Priority ||
			(task.Priority == best.Priority && task.CreatedAt.Before(best.CreatedAt)) {
			best = task
		}
	}
	if best == nil {
		return nil, ErrNoTaskToClaim
	}

	lockedUntil := now.Add(lockDuration)
	best.Status = TaskStatusProcessing
	best.LockedUntil = &lockedUntil
	best.LockedBy = &workerID

	return best.clone(), nil
}

func (ms *MemoryStorage) CompleteTask(_ context.Context, taskID uuid.UUID) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	task, err := ms.processing(taskID)
	if err != nil {
		return err
	}

	now := time.Now()
	task.Status = TaskStatusCompleted
	task.ProcessedAt = &now
	task.LockedUntil = nil
	task.LockedBy = nil
	return nil
}

// FailTask increments the retry count and either reschedules the task with
// linear backoff or marks it failed once MaxRetries is reached.
func (ms *MemoryStorage) FailTask(_ context.Context, taskID uuid.UUID, errorMsg string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	task, err := ms.processing(taskID)
	if err != nil {
		return err
	}

	task.RetryCount++
	task.Error = &errorMsg
	task.LockedUntil = nil
	task.LockedBy = nil

	if task.RetryCount >= task.MaxRetries {
		task.Status = TaskStatusFailed
		return nil
	}
	task.Status = TaskStatusPending
	task.ScheduledAt = time.Now().Add(time.Duration(task.RetryCount) * retryBackoff)
	return nil
}

func (ms *MemoryStorage) MoveToDLQ(_ context.Context, taskID uuid.UUID) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	task, ok := ms.tasks[taskID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}

	entry := &TasksDlq{
		ID:         uuid.New(),
		TaskID:     task.ID,
		Queue:      task.Queue,
		TaskName:   task.TaskName,
		Payload:    task.Payload,
		Stamps:     task.Stamps,
		Priority:   task.Priority,
		RetryCount: task.RetryCount,
		FailedAt:   time.Now(),
		CreatedAt:  task.CreatedAt,
	}
	if task.Error != nil {
		entry.Error = *task.Error
	}

	ms.dlq = append(ms.dlq, entry)
	delete(ms.tasks, taskID)
	return nil
}

func (ms *MemoryStorage) ExtendLock(_ context.Context, taskID uuid.UUID, duration time.Duration) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	task, err := ms.processing(taskID)
	if err != nil {
		return err
	}
	lockedUntil := time.Now().Add(duration)
	task.LockedUntil = &lockedUntil
	return nil
}

// GetTask returns a copy of a stored task.
func (ms *MemoryStorage) GetTask(_ context.Context, taskID uuid.UUID) (*Task, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	task, ok := ms.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	return task.clone(), nil
}

// Tasks returns copies of all stored tasks, oldest first.
func (ms *MemoryStorage) Tasks() []*Task {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	out := make([]*Task, 0, len(ms.tasks))
	for _, t := range ms.tasks {
		out = append(out, t.clone())
	}
	slices.SortFunc(out, func(a, b *Task) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out
}

// DeadLetters returns the DLQ entries in insertion order.
func (ms *MemoryStorage) DeadLetters() []*TasksDlq {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return slices.Clone(ms.dlq)
}

func (ms *MemoryStorage) processing(taskID uuid.UUID) (*Task, error) {
	task, ok := ms.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	if task.Status != TaskStatusProcessing {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotProcessing, taskID)
	}
	return task, nil
}

// sweep returns tasks whose lock expired (crashed worker) to pending.
func (ms *MemoryStorage) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ms.stop:
			return
		case <-ticker.C:
			ms.expireLocks(time.Now())
		}
	}
}

func (ms *MemoryStorage) expireLocks(now time.Time) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	for _, task := range ms.tasks {
		if task.Status == TaskStatusProcessing && task.LockedUntil != nil && task.LockedUntil.Before(now) {
			task.Status = TaskStatusPending
			task.LockedUntil = nil
			task.LockedBy = nil
		}
	}
}
