package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

var (
	ErrQueueFull   = errors.New("generation queue is full")
	ErrQueueClosed = errors.New("generation queue is shut down")
)

// Task is one unit of background work. Fail is called if Run panics, so the
// owner can record the failure.
type Task struct {
	JobID string
	Run   func(ctx context.Context)
	Fail  func(ctx context.Context, err error)
}

// Queue is a bounded task queue drained by a fixed pool of workers.
type Queue struct {
	tasks   chan Task
	workers int
	onDepth func(n int)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	started bool
	closed  bool
}

// NewQueue creates a queue with the given worker count and buffer size.
// onDepth, if non-nil, is called with the backlog after every change.
func NewQueue(workers, size int, onDepth func(n int)) *Queue {
	if workers < 1 {
		workers = 1
	}
	if size < 1 {
		size = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		tasks:   make(chan Task, size),
		workers: workers,
		onDepth: onDepth,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the workers. Calling it more than once has no effect.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.closed {
		return
	}
	q.started = true
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
}

// Enqueue adds t without blocking.
func (q *Queue) Enqueue(t Task) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.tasks <- t:
		q.reportDepth()
		return nil
	default:
		return ErrQueueFull
	}
}

// Len returns the number of tasks waiting for a worker.
func (q *Queue) Len() int {
	return len(q.tasks)
}

// Shutdown stops accepting tasks and waits for queued and running tasks to
// finish. If ctx expires first, running tasks are cancelled and ctx.Err() is
// returned once they exit.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.tasks)
	}
	started := q.started
	q.mu.Unlock()

	if !started {
		// Nothing will drain the buffer; fail what is left.
		for t := range q.tasks {
			if t.Fail != nil {
				t.Fail(q.ctx, ErrQueueClosed)
			}
		}
		q.cancel()
		return nil
	}

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		<-done
		return ctx.Err()
	}
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for t := range q.tasks {
		q.reportDepth()
		q.run(t)
	}
}

func (q *Queue) run(t Task) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in generation task", "error", r, "job_id", t.JobID)
			if t.Fail != nil {
				t.Fail(q.ctx, fmt.Errorf("panic: %v", r))
			}
		}
	}()
	t.Run(q.ctx)
}

func (q *Queue) reportDepth() {
	if q.onDepth != nil {
		q.onDepth(len(q.tasks))
	}
}
