package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/leexhwhy/edal-multiglobe-desktop/pkg/logging"
	"github.com/leexhwhy/edal-multiglobe-desktop/pkg/metrics"
)

// Priority classifies submitted tasks. Interactive tasks (tile renders for
// visible tiles, feature-info queries) are always drained before background
// tasks (cache pre-warming), so pre-warm work can never starve the
// interactive path.
type Priority string

const (
	PriorityInteractive Priority = "interactive"
	PriorityBackground  Priority = "background"
)

// Task is a unit of work executed on the pool
type Task func(ctx context.Context)

// Pool is a bounded worker pool with two priority queues
type Pool struct {
	interactive chan Task
	background  chan Task

	logger  *logging.StructuredLogger
	metrics *metrics.Collector

	workers int
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewPool creates a pool with the given worker count and queue capacity
func NewPool(workers, queueSize int, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		interactive: make(chan Task, queueSize),
		background:  make(chan Task, queueSize),
		logger:      logger,
		metrics:     metricsCollector,
		workers:     workers,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start launches the workers
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	p.logger.Info(p.ctx, "[POOL_START] Worker pool started", logging.Fields{
		"workers":    p.workers,
		"queue_size": cap(p.interactive),
	})
}

// Stop signals the workers to halt and waits for completion
func (p *Pool) Stop(ctx context.Context) error {
	p.cancel()
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

// Submit enqueues a task at the given priority without blocking.
// Returns an error when the queue is full.
func (p *Pool) Submit(priority Priority, task Task) error {
	queue := p.interactive
	if priority == PriorityBackground {
		queue = p.background
	}

	select {
	case queue <- task:
		p.metrics.WorkerQueueDepth.WithLabelValues(string(priority)).Set(float64(len(queue)))
		return nil
	default:
		return fmt.Errorf("%s queue full", priority)
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		// Drain interactive work first
		select {
		case <-p.ctx.Done():
			return
		case task := <-p.interactive:
			p.run(PriorityInteractive, task)
			continue
		default:
		}

		select {
		case <-p.ctx.Done():
			return
		case task := <-p.interactive:
			p.run(PriorityInteractive, task)
		case task := <-p.background:
			p.run(PriorityBackground, task)
		}
	}
}

func (p *Pool) run(priority Priority, task Task) {
	task(p.ctx)
	p.metrics.TasksTotal.WithLabelValues(string(priority)).Inc()
	queue := p.interactive
	if priority == PriorityBackground {
		queue = p.background
	}
	p.metrics.WorkerQueueDepth.WithLabelValues(string(priority)).Set(float64(len(queue)))
}
