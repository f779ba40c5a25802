package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	domain "github.com/yanqian/qa-trainer/internal/domain/training"
)

// HandlerQueue supports setting a handler for job delivery.
type HandlerQueue interface {
	domain.JobQueue
	SetHandler(handler Handler)
	Close() error
}

// Handler executes one job.
type Handler func(ctx context.Context, name string, payload map[string]any) error

// ErrClosed is returned by Enqueue after Close.
var ErrClosed = errors.New("queue closed")

// ImmediateQueue runs each job in its own goroutine as soon as it is enqueued.
type ImmediateQueue struct {
	mu      sync.RWMutex
	handler Handler
	logger  *slog.Logger
	wg      sync.WaitGroup

	// workers is cancelled by Close; every job context derives from it.
	workers context.Context
	stop    context.CancelFunc
}

// NewImmediateQueue constructs the queue.
func NewImmediateQueue(handler Handler, logger *slog.Logger) *ImmediateQueue {
	if logger == nil {
		logger = slog.Default()
	}
	workers, stop := context.WithCancel(context.Background())
	return &ImmediateQueue{
		handler: handler,
		logger:  logger.With("component", "queue.immediate"),
		workers: workers,
		stop:    stop,
	}
}

// SetHandler replaces the handler used for queued jobs.
func (q *ImmediateQueue) SetHandler(handler Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handler = handler
}

// Enqueue invokes the handler asynchronously. The job keeps the caller's
// context values but not its deadline; it is cancelled only by Close.
func (q *ImmediateQueue) Enqueue(ctx context.Context, name string, payload any) error {
	typed, ok := payload.(map[string]any)
	if !ok {
		typed = map[string]any{}
	}
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.workers.Err() != nil {
		return ErrClosed
	}
	handler := q.handler
	if handler == nil {
		return nil
	}
	jobCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	release := context.AfterFunc(q.workers, cancel)
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		defer cancel()
		defer release()
		if err := handler(jobCtx, name, typed); err != nil {
			q.logger.Warn("job failed", "job", name, "error", err)
		}
	}()
	return nil
}

// Close cancels running jobs and waits for their handlers to return.
func (q *ImmediateQueue) Close() error {
	q.mu.Lock()
	q.stop()
	q.mu.Unlock()
	q.wg.Wait()
	return nil
}

var _ HandlerQueue = (*ImmediateQueue)(nil)
