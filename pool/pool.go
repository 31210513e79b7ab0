// Package pool runs fire-and-forget tasks on a fixed number of goroutines fed
// by a bounded queue. Submission never blocks: a full queue rejects the task.
package pool

import (
	"context"
	"sync"
)

const (
	DefaultWorkers = 10
	DefaultQueue   = 1024
)

type Pool struct {
	q       chan func()
	wg      sync.WaitGroup
	mu      sync.RWMutex // guards closed against concurrent TrySubmit
	closed  bool
	once    sync.Once
	onPanic func(recovered any)
}

type Option func(*Pool)

// WithPanicHandler is called (on the worker goroutine) with the value of any
// task panic. The worker survives and keeps serving the queue.
func WithPanicHandler(fn func(recovered any)) Option {
	return func(p *Pool) { p.onPanic = fn }
}

func New(workers, qlen int, opts ...Option) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if qlen <= 0 {
		qlen = DefaultQueue
	}

	p := &Pool{q: make(chan func(), qlen)}
	for _, o := range opts {
		o(p)
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer p.wg.Done()
			for f := range p.q {
				p.run(f)
			}
		}()
	}
	return p
}

func (p *Pool) run(f func()) {
	defer func() {
		if r := recover(); r != nil && p.onPanic != nil {
			p.onPanic(r)
		}
	}()
	f()
}

// TrySubmit enqueues task without blocking. It reports false when the queue
// is full or the pool is shut down; the task is then not run.
func (p *Pool) TrySubmit(task func()) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	select {
	case p.q <- task:
		return true
	default: // full
		return false
	}
}

// Shutdown stops accepting tasks and waits for queued and running tasks to
// finish, or for ctx to end. Safe to call multiple times.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.q)
		p.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
