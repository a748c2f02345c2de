package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/cuongbtq/docconv/internal/domain"
)

// ErrClosed is returned by Put and Get once the queue is closed and drained
var ErrClosed = errors.New("queue closed")

// Queue is the bounded in-memory hand-off between the dispatcher and the
// workers. Put blocks while the queue is full.
type Queue struct {
	ch chan domain.Job

	mu         sync.Mutex
	closed     bool
	unfinished int
}

// New creates a queue holding at most capacity jobs
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{ch: make(chan domain.Job, capacity)}
}

// Put enqueues job, blocking until there is room or ctx is done
func (q *Queue) Put(ctx context.Context, job domain.Job) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.unfinished++
	q.mu.Unlock()

	select {
	case q.ch <- job:
		return nil
	case <-ctx.Done():
		q.TaskDone()
		return ctx.Err()
	}
}

// Get dequeues the next job, blocking until one is available or ctx is done
func (q *Queue) Get(ctx context.Context) (domain.Job, error) {
	select {
	case job, ok := <-q.ch:
		if !ok {
			return domain.Job{}, ErrClosed
		}
		return job, nil
	case <-ctx.Done():
		return domain.Job{}, ctx.Err()
	}
}

// TaskDone marks one dequeued job as fully handled
func (q *Queue) TaskDone() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.unfinished > 0 {
		q.unfinished--
	}
}

// Len returns the number of jobs waiting in the queue
func (q *Queue) Len() int {
	return len(q.ch)
}

// Cap returns the queue capacity
func (q *Queue) Cap() int {
	return cap(q.ch)
}

// Unfinished returns the number of enqueued jobs not yet marked done
func (q *Queue) Unfinished() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.unfinished
}

// Close stops accepting new jobs. Jobs already queued can still be read.
// Close must not race with a blocked Put.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.ch)
}
