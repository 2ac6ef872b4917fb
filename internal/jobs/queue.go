// Package jobs provides background job implementations for the bridge:
// the sequential task queue shared by push triggers and the periodic
// GitBucket link check.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrQueueClosed is returned by Execute after Shutdown has been called
var ErrQueueClosed = errors.New("queue is shut down")

// Task is a unit of work run by a SequentialQueue
type Task struct {
	ID   string
	Name string
	Run  func(ctx context.Context) error
}

// ErrorHandler receives the error of a failed task
type ErrorHandler func(task Task, err error)

// SequentialQueue runs tasks one at a time in submission order.
// The worker goroutine is started on demand and exits when the queue is
// empty, so an idle queue holds no goroutine.
type SequentialQueue struct {
	mu      sync.Mutex
	pending []Task
	running bool
	closed  bool
	idle    chan struct{}

	ctx     context.Context
	cancel  context.CancelFunc
	logger  *slog.Logger
	onError ErrorHandler
}

// NewSequentialQueue creates an empty queue. Tasks receive a context that is
// cancelled only when Shutdown gives up waiting.
func NewSequentialQueue(logger *slog.Logger) *SequentialQueue {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &SequentialQueue{
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
		idle:   make(chan struct{}),
	}
	close(q.idle)
	q.onError = q.logError
	return q
}

// OnError replaces the handler invoked for failed tasks
func (q *SequentialQueue) OnError(h ErrorHandler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onError = h
}

// Execute appends a task to the queue
func (q *SequentialQueue) Execute(task Task) error {
	if task.Run == nil {
		return fmt.Errorf("task %q has no Run function", task.Name)
	}
	if task.ID == "" {
		task.ID = uuid.New().String()
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	q.pending = append(q.pending, task)
	if !q.running {
		q.running = true
		q.idle = make(chan struct{})
		go q.work()
	}
	return nil
}

// Len returns the number of tasks waiting to run
func (q *SequentialQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// InProgress reports whether a task is running or waiting
func (q *SequentialQueue) InProgress() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running
}

// Shutdown stops accepting tasks and waits for queued tasks to finish.
// If ctx expires first, the running task's context is cancelled.
func (q *SequentialQueue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	idle := q.idle
	q.mu.Unlock()

	select {
	case <-idle:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		return ctx.Err()
	}
}

func (q *SequentialQueue) work() {
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.running = false
			close(q.idle)
			q.mu.Unlock()
			return
		}
		task := q.pending[0]
		q.pending[0] = Task{}
		q.pending = q.pending[1:]
		onError := q.onError
		q.mu.Unlock()

		if err := q.run(task); err != nil && onError != nil {
			onError(task, err)
		}
	}
}

func (q *SequentialQueue) run(task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v\n%s", task.Name, r, debug.Stack())
		}
	}()

	start := time.Now()
	q.logger.Debug("task started", "task", task.Name, "task_id", task.ID)
	err = task.Run(q.ctx)
	q.logger.Debug("task finished", "task", task.Name, "task_id", task.ID, "duration", time.Since(start))
	return err
}

func (q *SequentialQueue) logError(task Task, err error) {
	q.logger.Error("task failed", "task", task.Name, "task_id", task.ID, "error", err)
}
