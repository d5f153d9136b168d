package batch

import (
	"errors"
	"fmt"
	"sync"

	"github.com/book-expert/regen-service/internal/core"
)

// ErrQueueClosed indicates a submission after Close.
var ErrQueueClosed = errors.New("queue closed")

type job struct {
	run  func()
	done chan struct{}
}

// Queue runs submitted jobs one at a time on a single worker goroutine. A
// submission is rejected while a previous job is still active.
type Queue struct {
	name string

	mu     sync.Mutex
	active bool
	closed bool
	jobs   chan job
	wg     sync.WaitGroup
}

// NewQueue creates a queue and starts its worker.
func NewQueue(name string) *Queue {
	q := &Queue{
		name: name,
		jobs: make(chan job, 1),
	}

	q.wg.Add(1)

	go q.work()

	return q
}

// Submit schedules run and returns a channel closed when it has finished.
func (q *Queue) Submit(run func()) (<-chan struct{}, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, fmt.Errorf("%s: %w", q.name, ErrQueueClosed)
	}

	if q.active {
		return nil, fmt.Errorf("%w: %s", core.ErrBatchRunning, q.name)
	}

	q.active = true
	submitted := job{run: run, done: make(chan struct{})}
	q.jobs <- submitted

	return submitted.done, nil
}

// Busy reports whether a job is queued or running.
func (q *Queue) Busy() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.active
}

// Close stops accepting jobs and waits for the active one to finish.
func (q *Queue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()

	q.wg.Wait()
}

func (q *Queue) work() {
	defer q.wg.Done()

	for next := range q.jobs {
		next.run()

		q.mu.Lock()
		q.active = false
		q.mu.Unlock()

		close(next.done)
	}
}
