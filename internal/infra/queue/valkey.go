package queue

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/valkey-io/valkey-go"
)

// DefaultKey is the list holding pending jobs.
const DefaultKey = "qa-trainer:jobs"

type jobEnvelope struct {
	Name       string         `json:"name"`
	Payload    map[string]any `json:"payload"`
	EnqueuedAt time.Time      `json:"enqueued_at"`
}

// ValkeyQueue persists jobs in a Valkey list and delivers them to a
// handler from a single consumer goroutine.
type ValkeyQueue struct {
	client      valkey.Client
	queueKey    string
	logger      *slog.Logger
	pollTimeout time.Duration

	mu      sync.Mutex
	handler Handler
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewValkeyQueue constructs a Valkey-backed queue.
func NewValkeyQueue(client valkey.Client, queueKey string, logger *slog.Logger) *ValkeyQueue {
	if queueKey == "" {
		queueKey = DefaultKey
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ValkeyQueue{
		client:      client,
		queueKey:    queueKey,
		logger:      logger.With("component", "queue.valkey"),
		pollTimeout: 5 * time.Second,
	}
}

// SetHandler starts the worker loop that pops jobs and invokes the handler.
// Calling it again swaps the handler without starting a second consumer.
func (q *ValkeyQueue) SetHandler(handler Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handler = handler
	if handler == nil || q.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel
	q.done = make(chan struct{})
	go q.consume(ctx)
}

// Enqueue pushes a job onto the queue.
func (q *ValkeyQueue) Enqueue(ctx context.Context, name string, payload any) error {
	typed, ok := payload.(map[string]any)
	if !ok {
		typed = map[string]any{}
	}
	encoded, err := json.Marshal(jobEnvelope{Name: name, Payload: typed, EnqueuedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	cmd := q.client.B().Lpush().Key(q.queueKey).Element(string(encoded)).Build()
	return q.client.Do(ctx, cmd).Error()
}

// Close stops the consumer and cancels the job in progress, if any.
func (q *ValkeyQueue) Close() error {
	q.mu.Lock()
	cancel, done := q.cancel, q.done
	q.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

func (q *ValkeyQueue) consume(ctx context.Context) {
	defer close(q.done)
	for ctx.Err() == nil {
		resp := q.client.Do(ctx, q.client.B().Brpop().Key(q.queueKey).Timeout(q.pollTimeout.Seconds()).Build())
		values, err := resp.ToArray()
		if err != nil {
			if !valkey.IsValkeyNil(err) && ctx.Err() == nil {
				q.logger.Warn("valkey queue pop failed", "error", err)
				time.Sleep(time.Second)
			}
			continue
		}
		if len(values) < 2 {
			continue
		}
		raw, err := values[1].ToString()
		if err != nil {
			q.logger.Warn("valkey queue payload decode failed", "error", err)
			continue
		}
		job, err := decodeJob(raw)
		if err != nil {
			q.logger.Warn("valkey queue unmarshal failed", "error", err)
			continue
		}
		q.mu.Lock()
		handler := q.handler
		q.mu.Unlock()
		if handler == nil {
			continue
		}
		q.logger.Debug("job received", "job", job.Name, "waited", time.Since(job.EnqueuedAt))
		if err := handler(ctx, job.Name, job.Payload); err != nil {
			q.logger.Warn("job failed", "job", job.Name, "error", err)
		}
	}
}

func decodeJob(raw string) (jobEnvelope, error) {
	var job jobEnvelope
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return jobEnvelope{}, err
	}
	if job.Payload == nil {
		job.Payload = map[string]any{}
	}
	return job, nil
}

var _ HandlerQueue = (*ValkeyQueue)(nil)
