// File: internal/infra/worker/pool.go
package worker

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	ErrQueueFull   = errors.New("worker queue full")
	ErrPoolStopped = errors.New("worker pool stopped")
)

// A small pool for fire-and-forget background work such as admin-triggered
// sweeps.

type Task func(ctx context.Context) error

type job struct {
	name string
	fn   Task
}

type Pool struct {
	wg   sync.WaitGroup
	jobs chan job
	quit chan struct{}
	once sync.Once
	n    int
	log  zerolog.Logger

	mu      sync.Mutex
	stopped bool
}

func NewPool(workers int, logger *zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Pool{
		jobs: make(chan job, workers*4),
		quit: make(chan struct{}),
		n:    workers,
		log:  logger.With().Str("component", "WorkerPool").Logger(),
	}
}

func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.n; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case <-p.quit:
					return
				case j := <-p.jobs:
					p.run(ctx, id, j)
				}
			}
		}(i)
	}
}

func (p *Pool) run(ctx context.Context, id int, j job) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Interface("panic", r).Int("worker", id).Str("task", j.name).Msg("task panicked")
		}
	}()
	start := time.Now()
	if err := j.fn(ctx); err != nil {
		p.log.Error().Err(err).Int("worker", id).Str("task", j.name).Msg("task failed")
		return
	}
	p.log.Debug().Int("worker", id).Str("task", j.name).Dur("took", time.Since(start)).Msg("task done")
}

// Stop signals workers to exit and waits for running tasks. Queued tasks are
// dropped.
func (p *Pool) Stop() {
	p.once.Do(func() {
		p.mu.Lock()
		p.stopped = true
		p.mu.Unlock()
		close(p.quit)
	})
	p.wg.Wait()
}

// Submit queues a task without blocking.
func (p *Pool) Submit(name string, task Task) error {
	if task == nil {
		return errors.New("nil task")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return ErrPoolStopped
	}
	select {
	case p.jobs <- job{name: name, fn: task}:
		return nil
	default:
		return ErrQueueFull
	}
}
