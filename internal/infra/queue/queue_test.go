package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ctxKey struct{}

func TestImmediateQueue_RunsJobsDetachedFromCaller(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []string
	)
	release := make(chan struct{})
	handled := make(chan struct{})
	q := NewImmediateQueue(nil, nil)
	q.SetHandler(func(ctx context.Context, name string, payload map[string]any) error {
		defer close(handled)
		<-release
		assert.NoError(t, ctx.Err(), "job context survives the request")
		assert.Equal(t, "trace", ctx.Value(ctxKey{}))
		mu.Lock()
		seen = append(seen, name+":"+payload["run_id"].(string))
		mu.Unlock()
		return errors.New("logged, not returned")
	})

	ctx, cancel := context.WithCancel(context.WithValue(context.Background(), ctxKey{}, "trace"))
	require.NoError(t, q.Enqueue(ctx, "train_run", map[string]any{"run_id": "abc"}))
	cancel()
	close(release)
	<-handled
	require.NoError(t, q.Close())
	require.Equal(t, []string{"train_run:abc"}, seen)
}

func TestImmediateQueue_CloseCancelsRunningJobs(t *testing.T) {
	started := make(chan struct{})
	q := NewImmediateQueue(func(ctx context.Context, name string, payload map[string]any) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}, nil)
	require.NoError(t, q.Enqueue(context.Background(), "train_run", nil))
	<-started

	closed := make(chan struct{})
	go func() {
		assert.NoError(t, q.Close())
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not cancel the running job")
	}
	require.ErrorIs(t, q.Enqueue(context.Background(), "train_run", nil), ErrClosed)
}

func TestImmediateQueue_NoHandler(t *testing.T) {
	q := NewImmediateQueue(nil, nil)
	require.NoError(t, q.Enqueue(context.Background(), "train_run", "not a map"))
	require.NoError(t, q.Close())
}

func TestDecodeJob(t *testing.T) {
	job, err := decodeJob(`{"name":"train_run","payload":{"run_id":"x"},"enqueued_at":"2024-01-01T00:00:00Z"}`)
	require.NoError(t, err)
	require.Equal(t, "train_run", job.Name)
	require.Equal(t, "x", job.Payload["run_id"])

	job, err = decodeJob(`{"name":"train_run"}`)
	require.NoError(t, err)
	require.NotNil(t, job.Payload)

	_, err = decodeJob(`not json`)
	require.Error(t, err)
}

func TestValkeyQueue_CloseWithoutConsumer(t *testing.T) {
	q := NewValkeyQueue(nil, "", nil)
	require.Equal(t, DefaultKey, q.queueKey)
	require.NoError(t, q.Close())
}
