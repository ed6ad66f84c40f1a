package ingest

import (
	"context"
	"sync"
)

// Job is a unit of fetch work submitted to the FetchPool. Outcomes travel
// through the orchestrator's result channel, so jobs report nothing here.
type Job func(ctx context.Context)

// FetchPool runs fetch jobs on a fixed number of goroutines. Network calls
// are the only operation the pipeline parallelizes; each job backs off
// independently inside the retry client.
type FetchPool struct {
	jobs    chan Job
	wg      sync.WaitGroup
	workers int
	closeMu sync.Mutex
	closed  bool
}

// NewFetchPool creates a pool with the specified worker count and job
// queue capacity.
func NewFetchPool(workers, queue int) *FetchPool {
	if workers <= 0 {
		workers = 1
	}
	if queue <= 0 {
		queue = workers * 2
	}
	return &FetchPool{
		jobs:    make(chan Job, queue),
		workers: workers,
	}
}

// Start begins the worker goroutines; they drain jobs until ctx is done or
// Close is called.
func (p *FetchPool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case job, ok := <-p.jobs:
					if !ok {
						return
					}
					job(ctx)
				}
			}
		}()
	}
}

// Submit enqueues a job, returning promptly if ctx is canceled while the
// queue is full. Returns ErrPoolClosed after Close.
func (p *FetchPool) Submit(ctx context.Context, job Job) error {
	p.closeMu.Lock()
	defer p.closeMu.Unlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting new jobs and waits for in-flight jobs to finish.
func (p *FetchPool) Close() {
	p.closeMu.Lock()
	if p.closed {
		p.closeMu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.closeMu.Unlock()
	p.wg.Wait()
}

// ErrPoolClosed is returned if a Submit is attempted after Close.
var ErrPoolClosed = &PoolError{"fetch pool closed"}

// PoolError provides a simple typed error for pool operations.
type PoolError struct{ msg string }

func (e *PoolError) Error() string { return e.msg }
