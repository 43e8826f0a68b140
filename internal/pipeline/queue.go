package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"readingnotes/internal/logger"
)

var (
	ErrQueueFull   = errors.New("resolve queue is full")
	ErrQueueClosed = errors.New("resolve queue is closed")
)

// ResolveFunc handles one queued note.
type ResolveFunc func(ctx context.Context, noteID int64) error

type taskState int

const (
	taskQueued taskState = iota
	taskRunning
	taskRerun
)

// Queue runs resolve tasks on a fixed set of workers. Tasks are keyed by
// note id: a note is never handled by two workers at once, and submits that
// arrive while it is queued or running collapse into one follow-up run.
type Queue struct {
	handle ResolveFunc
	log    *logger.Logger

	tasks  chan int64
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	state  map[int64]taskState
	closed bool
}

func NewQueue(size, workers int, handle ResolveFunc, log *logger.Logger) *Queue {
	if size <= 0 {
		size = 1
	}
	if workers <= 0 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		handle: handle,
		log:    log.With("component", "resolveQueue"),
		tasks:  make(chan int64, size),
		ctx:    ctx,
		cancel: cancel,
		state:  map[int64]taskState{},
	}
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.work()
	}
	return q
}

// Submit never blocks. A note that cannot be queued stays PENDING and is
// picked up by the next backfill.
func (q *Queue) Submit(noteID int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	switch st, ok := q.state[noteID]; {
	case ok && st == taskQueued, ok && st == taskRerun:
		return nil
	case ok && st == taskRunning:
		q.state[noteID] = taskRerun
		return nil
	}
	return q.enqueueLocked(noteID)
}

func (q *Queue) enqueueLocked(noteID int64) error {
	select {
	case q.tasks <- noteID:
		q.state[noteID] = taskQueued
		return nil
	default:
		return ErrQueueFull
	}
}

// Pending is the number of notes queued or running.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.state)
}

// Close stops intake and waits for queued and running tasks. When ctx ends
// first the remaining tasks see a cancelled context.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.tasks)
	}
	q.mu.Unlock()

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

func (q *Queue) work() {
	defer q.wg.Done()
	for noteID := range q.tasks {
		q.mu.Lock()
		q.state[noteID] = taskRunning
		q.mu.Unlock()

		if err := q.run(noteID); err != nil {
			q.log.Debug("resolve task ended with error", "noteId", noteID, "error", err)
		}

		q.mu.Lock()
		rerun := q.state[noteID] == taskRerun
		delete(q.state, noteID)
		if rerun && !q.closed {
			if err := q.enqueueLocked(noteID); err != nil {
				q.log.Warn("follow-up resolve dropped", "noteId", noteID, "error", err)
			}
		}
		q.mu.Unlock()
	}
}

func (q *Queue) run(noteID int64) (err error) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Error("resolve task panic", "noteId", noteID, "panic", r)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return q.handle(q.ctx, noteID)
}
