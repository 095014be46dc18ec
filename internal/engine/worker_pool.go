package engine

import (
	"context"
	"errors"
	"sync"
)

// ErrPoolStopped is returned when submitting to a stopped pool
var ErrPoolStopped = errors.New("worker pool stopped")

// WorkerPool runs batch evaluations on a fixed set of goroutines. The queue
// holds ten tasks per worker.
type WorkerPool struct {
	workers int
	queue   chan func()
	done    sync.WaitGroup

	// closed is guarded by mu; senders hold the read lock so the queue is
	// never closed under them
	mu     sync.RWMutex
	closed bool
}

// NewWorkerPool starts a pool with the given number of workers (16 when not
// positive)
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = 16
	}

	p := &WorkerPool{
		workers: workers,
		queue:   make(chan func(), workers*10),
	}
	p.done.Add(workers)
	for i := 0; i < workers; i++ {
		go p.run()
	}
	return p
}

func (p *WorkerPool) run() {
	defer p.done.Done()
	for task := range p.queue {
		task()
	}
}

// Submit queues a task, blocking while the queue is full until ctx is done
func (p *WorkerPool) Submit(ctx context.Context, task func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolStopped
	}

	select {
	case p.queue <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop runs the queued tasks to completion and waits for the workers to exit.
// Stopping twice is a no-op.
func (p *WorkerPool) Stop() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.done.Wait()
}

// Workers returns the number of workers
func (p *WorkerPool) Workers() int {
	return p.workers
}
