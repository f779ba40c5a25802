package bootstrap

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/yanqian/qa-trainer/internal/domain/dataset"
	"github.com/yanqian/qa-trainer/internal/domain/embedding"
	"github.com/yanqian/qa-trainer/internal/domain/training"
	"github.com/yanqian/qa-trainer/internal/infra/config"
	"github.com/yanqian/qa-trainer/internal/infra/embedcache"
	"github.com/yanqian/qa-trainer/internal/infra/queue"
	"github.com/yanqian/qa-trainer/internal/infra/runrepo"
	"github.com/yanqian/qa-trainer/internal/infra/storage"
	httpiface "github.com/yanqian/qa-trainer/internal/interface/http"
	"github.com/yanqian/qa-trainer/pkg/metrics"
)

func TestApp_SubmittedRunIsTrainedByWorker(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		return path
	}
	train := write("train.tsv", "cats purr\t1\ndogs bark\t1\nfish fly\t0\n")
	dev := write("dev.tsv", "cats sleep\t1\nbirds swim\t0\n")
	body := fmt.Sprintf(`{
		// comments are allowed
		"model_class": "MajorityClassifier",
		"model_serialization_prefix": %q,
		"num_epochs": 3,
		"batch_size": 2,
		"train_files": [%q],
		"validation_files": [%q],
	}`, filepath.Join(dir, "model"), train, dev)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &config.Config{HTTP: config.HTTPConfig{Address: ":0", MaxBodyBytes: 1 << 20}}
	jobs := queue.NewImmediateQueue(nil, logger)
	svc := training.NewService(
		training.Config{Seed: 7},
		runrepo.NewMemoryRepository(),
		storage.NewMemoryStorage(),
		jobs,
		embedding.NewLoader(embedcache.NewMemoryCache(), logger),
		training.DefaultRegistry(),
		logger,
	)
	jobs.SetHandler(JobHandler(svc, logger))
	t.Cleanup(func() { _ = jobs.Close() })
	server := httpiface.NewRouter(cfg, httpiface.NewRunHandler(svc, cfg.HTTP.MaxBodyBytes, logger), logger)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs?name=majority", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	server.Handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var submitted training.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &submitted))
	require.Equal(t, "majority", submitted.Name)

	require.Eventually(t, func() bool {
		run, err := svc.Get(context.Background(), submitted.ID)
		return err == nil && run.Status.Terminal()
	}, 5*time.Second, 10*time.Millisecond)

	run, err := svc.Get(context.Background(), submitted.ID)
	require.NoError(t, err)
	require.NotEqual(t, training.RunStatusFailed, run.Status, "failure: %v", run.FailureReason)
	require.NotEmpty(t, run.Epochs)
	require.NotNil(t, run.BestEpoch)
}

type blockingModel struct {
	started chan struct{}
}

func (m *blockingModel) Fit(ctx context.Context, _ []dataset.Batch) (metrics.EpochMetrics, error) {
	close(m.started)
	<-ctx.Done()
	return metrics.EpochMetrics{}, ctx.Err()
}

func (m *blockingModel) Evaluate(context.Context, []dataset.Batch) (metrics.EpochMetrics, error) {
	return metrics.EpochMetrics{}, nil
}

func (m *blockingModel) Weights() ([]byte, error) { return []byte(`{}`), nil }

func TestApp_ShutdownCancelsRunningTraining(t *testing.T) {
	dir := t.TempDir()
	train := filepath.Join(dir, "train.tsv")
	require.NoError(t, os.WriteFile(train, []byte("cats purr\t1\n"), 0o644))

	model := &blockingModel{started: make(chan struct{})}
	registry := training.NewRegistry()
	registry.Register("Blocking", training.Factory{
		InstanceKind: dataset.KindTextClassification,
		New:          func(training.ModelSpec) (training.Model, error) { return model, nil },
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &config.Config{HTTP: config.HTTPConfig{Address: "127.0.0.1:0", MaxBodyBytes: 1 << 20}}
	jobs := queue.NewImmediateQueue(nil, logger)
	svc := training.NewService(training.Config{}, runrepo.NewMemoryRepository(), storage.NewMemoryStorage(), jobs,
		embedding.NewLoader(nil, logger), registry, logger)
	server := httpiface.NewRouter(cfg, httpiface.NewRunHandler(svc, cfg.HTTP.MaxBodyBytes, logger), logger)
	app := NewApp(cfg, logger, server, svc, jobs)

	// set before Run so the submit below cannot race the worker registration
	jobs.SetHandler(JobHandler(svc, logger))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stopped := make(chan error, 1)
	go func() { stopped <- app.Run(ctx) }()

	run, err := svc.Submit(context.Background(), training.SubmitRequest{Config: []byte(fmt.Sprintf(`{
		"model_class": "Blocking",
		"model_serialization_prefix": %q,
		"num_epochs": 100,
		"train_files": [%q],
		"save_models": false
	}`, filepath.Join(dir, "model"), train))})
	require.NoError(t, err)

	select {
	case <-model.started:
	case <-time.After(5 * time.Second):
		t.Fatal("training never started")
	}
	cancel()

	select {
	case err := <-stopped:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown waited for the training run")
	}

	got, err := svc.Get(context.Background(), run.ID)
	require.NoError(t, err)
	require.Equal(t, training.RunStatusFailed, got.Status)
	require.NotNil(t, got.FailureReason)
}

func TestJobHandler_RejectsBadPayloads(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := training.NewService(training.Config{}, runrepo.NewMemoryRepository(), storage.NewMemoryStorage(), nil, embedding.NewLoader(nil, logger), nil, logger)
	handler := JobHandler(svc, logger)

	require.Error(t, handler(context.Background(), "resize_image", nil))
	require.Error(t, handler(context.Background(), training.JobTrainRun, map[string]any{"run_id": "nope"}))
	require.Error(t, handler(context.Background(), training.JobTrainRun, map[string]any{"run_id": uuid.NewString()}))
}
