package core

import (
	"context"
	"errors"
	"sync"

	"threatharvest/metrics"

	"go.uber.org/zap"
)

// WorkerPool provides a bounded worker pool for parallel task processing.
// Tasks are plain closures; the pool guarantees that every submitted task
// runs exactly once before Wait returns, which gives batch callers their
// join barrier.
type WorkerPool struct {
	workers  int
	taskCh   chan func()
	wg       sync.WaitGroup
	logger   *zap.SugaredLogger
	ctx      context.Context
	poolType string
	running  bool
	mu       sync.RWMutex
}

// Errors
var (
	ErrWorkerPoolNotRunning = errors.New("worker pool is not running")
)

// NewWorkerPool creates a worker pool with the given parallelism. Workers
// are not started until Start is called. poolType identifies the pool in
// metrics.
func NewWorkerPool(ctx context.Context, workers, queueSize int, poolType string, logger *zap.SugaredLogger) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	if poolType == "" {
		poolType = "default"
	}
	return &WorkerPool{
		workers:  workers,
		taskCh:   make(chan func(), queueSize),
		logger:   logger,
		ctx:      ctx,
		poolType: poolType,
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start() {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	if wp.running {
		return
	}
	wp.running = true

	wp.logger.Debugw("Starting worker pool", "pool", wp.poolType, "workers", wp.workers)
	metrics.WorkerPoolActiveWorkers.WithLabelValues(wp.poolType).Set(float64(wp.workers))

	for i := 0; i < wp.workers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Submit queues a task for execution. It blocks when the queue is full
// and returns an error only if the pool is not running.
func (wp *WorkerPool) Submit(task func()) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()

	if !wp.running {
		return ErrWorkerPoolNotRunning
	}
	wp.taskCh <- task
	return nil
}

// Wait closes the task queue, drains it, and blocks until every worker
// has exited. The pool cannot be reused afterwards.
func (wp *WorkerPool) Wait() {
	wp.mu.Lock()
	if !wp.running {
		wp.mu.Unlock()
		return
	}
	wp.running = false
	close(wp.taskCh)
	wp.mu.Unlock()

	wp.wg.Wait()
	metrics.WorkerPoolActiveWorkers.WithLabelValues(wp.poolType).Set(0)
	wp.logger.Debugw("Worker pool drained", "pool", wp.poolType)
}

// worker is the main worker goroutine. The queue is always drained even
// when the pool context is cancelled: cancellation stops new submissions
// at the caller, not tasks already accepted.
func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	for task := range wp.taskCh {
		func() {
			defer func() {
				if r := recover(); r != nil {
					wp.logger.Errorw("Task panicked in worker",
						"pool", wp.poolType,
						"worker_id", id,
						"panic", r)
				}
			}()
			task()
			metrics.WorkerPoolTasksProcessed.WithLabelValues(wp.poolType).Inc()
		}()
	}
}
