package hooks

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

var (
	// ErrQueueNotStarted is returned by Enqueue before Start
	ErrQueueNotStarted = errors.New("async hook queue not started")
	// ErrQueueClosed is returned by Enqueue after Shutdown or Stop
	ErrQueueClosed = errors.New("async hook queue closed")
)

// AsyncTask is one async hook invocation
type AsyncTask struct {
	Name string
	Fn   func(ctx context.Context) error
}

type queueState int

const (
	queueIdle queueState = iota
	queueRunning
	queueClosed
)

// AsyncQueue runs async hook invocations on a fixed pool of workers. Task
// failures and panics are logged and never reach the saving caller.
type AsyncQueue struct {
	workers int
	tasks   chan AsyncTask
	logger  *zap.Logger

	// ctx is handed to every task; Stop cancels it
	ctx    context.Context
	cancel context.CancelFunc

	// mu is held for reading while a task is sent so Shutdown never closes
	// tasks under a sender
	mu    sync.RWMutex
	state queueState
	wg    sync.WaitGroup
}

// NewAsyncQueue creates a queue with the given number of workers, 4 when
// workers is not positive
func NewAsyncQueue(workers int, logger *zap.Logger) *AsyncQueue {
	if workers <= 0 {
		workers = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &AsyncQueue{
		workers: workers,
		tasks:   make(chan AsyncTask, workers*16),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the workers. Starting twice is a no-op.
func (q *AsyncQueue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.state != queueIdle {
		return
	}
	q.state = queueRunning
	q.wg.Add(q.workers)
	for i := 0; i < q.workers; i++ {
		go q.work(i)
	}
}

func (q *AsyncQueue) work(worker int) {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case task, ok := <-q.tasks:
			if !ok {
				return
			}
			q.run(worker, task)
		}
	}
}

func (q *AsyncQueue) run(worker int, task AsyncTask) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("panic in async task",
				zap.Int("worker", worker), zap.String("task", task.Name), zap.Any("panic", r))
		}
	}()
	if err := task.Fn(q.ctx); err != nil {
		q.logger.Warn("async task failed",
			zap.Int("worker", worker), zap.String("task", task.Name), zap.Error(err))
	}
}

// Enqueue hands a task to the workers, blocking while the buffer is full
func (q *AsyncQueue) Enqueue(task AsyncTask) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	switch q.state {
	case queueIdle:
		return ErrQueueNotStarted
	case queueClosed:
		return ErrQueueClosed
	}
	select {
	case q.tasks <- task:
		return nil
	case <-q.ctx.Done():
		return ErrQueueClosed
	}
}

// Shutdown stops accepting tasks and waits until the queued ones have run
func (q *AsyncQueue) Shutdown() {
	q.mu.Lock()
	if q.state != queueRunning {
		q.mu.Unlock()
		return
	}
	q.state = queueClosed
	close(q.tasks)
	q.mu.Unlock()

	q.wg.Wait()
	q.cancel()
}

// Stop cancels running tasks, drops queued ones and waits for the workers
func (q *AsyncQueue) Stop() {
	q.cancel()
	q.mu.Lock()
	q.state = queueClosed
	q.mu.Unlock()
	q.wg.Wait()
}
