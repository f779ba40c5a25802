package training

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/yanqian/qa-trainer/internal/domain/embedding"
	apperrors "github.com/yanqian/qa-trainer/pkg/errors"
)

type fixture struct {
	dir     string
	runs    *fakeRuns
	storage *fakeStorage
	queue   *fakeQueue
	svc     *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		dir:     t.TempDir(),
		runs:    newFakeRuns(),
		storage: newFakeStorage(),
		queue:   &fakeQueue{},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.svc = NewService(Config{Seed: 1}, f.runs, f.storage, f.queue, embedding.NewLoader(nil, logger), DefaultRegistry(), logger)
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return f
}

func (f *fixture) file(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(f.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func (f *fixture) classificationConfig(t *testing.T, modelClass string, extra string) []byte {
	train := f.file(t, "train.tsv", "cats purr\t1\ndogs bark\t1\nfish fly\t0\n")
	validation := f.file(t, "dev.tsv", "cats sleep\t1\nbirds swim\t0\n")
	return []byte(fmt.Sprintf(`{
		"model_class": %q,
		"model_serialization_prefix": %q,
		"num_epochs": 5,
		"batch_size": 2,
		"train_files": [%q],
		"validation_files": [%q],
		%s
	}`, modelClass, filepath.Join(f.dir, "model"), train, validation, extra))
}

func TestService_TrainStopsEarlyAndWritesCheckpoints(t *testing.T) {
	f := newFixture(t)
	run, err := f.svc.Train(context.Background(), SubmitRequest{Name: "baseline", Config: f.classificationConfig(t, "MajorityClassifier", "")})
	require.NoError(t, err)

	require.Equal(t, RunStatusStoppedEarly, run.Status)
	require.Len(t, run.Epochs, 2)
	require.True(t, run.Epochs[0].Improved)
	require.False(t, run.Epochs[1].Improved)
	require.Equal(t, 0, *run.BestEpoch)
	require.InDelta(t, 0.5, run.Epochs[0].Metric, 1e-9, "majority label true scores half of dev")
	require.Empty(t, f.queue.jobs, "Train does not enqueue")

	prefix := filepath.Join(f.dir, "model")
	for _, key := range []string{
		EpochWeightsKey(prefix, 0),
		EpochWeightsKey(prefix, 1),
		BestWeightsKey(prefix),
		ConfigKey(prefix),
		IndexerKey(prefix),
	} {
		require.True(t, f.storage.has(key), key)
	}
	reader, err := f.storage.Get(context.Background(), BestWeightsKey(prefix))
	require.NoError(t, err)
	ckpt, err := DecodeCheckpoint(reader)
	require.NoError(t, err)
	require.Equal(t, "MajorityClassifier", ckpt.ModelClass)
	require.Equal(t, 0, ckpt.Epoch)
	require.JSONEq(t, `{"label_counts":[1,2]}`, string(ckpt.Weights))
}

func TestService_SaveModelsFalseSkipsArtifacts(t *testing.T) {
	f := newFixture(t)
	run, err := f.svc.Train(context.Background(), SubmitRequest{Config: f.classificationConfig(t, "MajorityClassifier", `"save_models": false, "patience": 10`)})
	require.NoError(t, err)
	require.Equal(t, RunStatusCompleted, run.Status)
	require.Len(t, run.Epochs, 5)
	require.Equal(t, "MajorityClassifier", run.Name)
	require.False(t, f.storage.has(BestWeightsKey(filepath.Join(f.dir, "model"))))
}

func TestService_SubmitEnqueuesPendingRun(t *testing.T) {
	f := newFixture(t)
	run, err := f.svc.Submit(context.Background(), SubmitRequest{Name: " first ", Config: f.classificationConfig(t, "MajorityClassifier", "")})
	require.NoError(t, err)
	require.Equal(t, RunStatusPending, run.Status)
	require.Equal(t, "first", run.Name)
	require.True(t, f.storage.has(run.ConfigKey))

	require.Len(t, f.queue.jobs, 1)
	require.Equal(t, JobTrainRun, f.queue.jobs[0].name)
	require.Equal(t, run.ID.String(), f.queue.jobs[0].payload["run_id"])

	require.NoError(t, f.svc.ProcessRun(context.Background(), run.ID))
	stored, err := f.svc.Get(context.Background(), run.ID)
	require.NoError(t, err)
	require.Equal(t, RunStatusStoppedEarly, stored.Status)

	require.NoError(t, f.svc.ProcessRun(context.Background(), run.ID), "terminal runs are skipped")

	second, err := f.svc.Submit(context.Background(), SubmitRequest{Config: f.classificationConfig(t, "MajorityClassifier", "")})
	require.NoError(t, err)
	runs, err := f.svc.List(context.Background(), RunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, second.ID, runs[0].ID)
}

func TestService_ProcessRunRestartsInterruptedRun(t *testing.T) {
	f := newFixture(t)
	run, err := f.svc.Submit(context.Background(), SubmitRequest{Config: f.classificationConfig(t, "MajorityClassifier", `"patience": 10`)})
	require.NoError(t, err)

	// a worker died after two epochs and left the run in running
	stale := run
	stale.Status = RunStatusRunning
	stale.Epochs = []EpochResult{{Epoch: 0, Metric: 0.1}, {Epoch: 1, Metric: 0.2}}
	best := 1
	stale.BestEpoch = &best
	reason := "worker lost"
	stale.FailureReason = &reason
	require.NoError(t, f.runs.Update(context.Background(), stale))

	require.NoError(t, f.svc.ProcessRun(context.Background(), run.ID))
	stored, err := f.svc.Get(context.Background(), run.ID)
	require.NoError(t, err)
	require.Equal(t, RunStatusCompleted, stored.Status)
	require.Len(t, stored.Epochs, 5)
	for i, epoch := range stored.Epochs {
		require.Equal(t, i, epoch.Epoch)
	}
	require.Equal(t, 0, *stored.BestEpoch)
	require.Nil(t, stored.FailureReason)
}

func TestService_SubmitRejectsMalformedConfig(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Submit(context.Background(), SubmitRequest{Config: []byte(`{"num_epochs": 1}`)})
	require.True(t, apperrors.IsCode(err, apperrors.CodeMalformedConfig))
	require.Empty(t, f.storage.blobs)
	require.Empty(t, f.queue.jobs)
}

func TestService_ProcessRunFailures(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, f *fixture) []byte
		code  string
	}{
		{
			name: "unknown model class",
			setup: func(t *testing.T, f *fixture) []byte {
				return f.classificationConfig(t, "BidirectionalAttentionFlow", "")
			},
			code: apperrors.CodeUnsupportedModel,
		},
		{
			name: "missing train file",
			setup: func(t *testing.T, f *fixture) []byte {
				return []byte(fmt.Sprintf(`{"model_class": "MajorityClassifier", "model_serialization_prefix": "m",
					"num_epochs": 1, "train_files": [%q]}`, filepath.Join(f.dir, "absent.tsv")))
			},
			code: apperrors.CodeMissingDependency,
		},
		{
			name: "embedding dimension mismatch",
			setup: func(t *testing.T, f *fixture) []byte {
				vectors := f.file(t, "vectors.txt", "cats 1 2 3\ndogs 4 5 6\n")
				return f.classificationConfig(t, "MajorityClassifier",
					fmt.Sprintf(`"embeddings": {"words": {"dimension": 5, "pretrained_file": %q}}`, vectors))
			},
			code: apperrors.CodeEmbeddingMismatch,
		},
		{
			name: "bad training line",
			setup: func(t *testing.T, f *fixture) []byte {
				train := f.file(t, "broken.tsv", "good line\t1\nbad\tline\n")
				return []byte(fmt.Sprintf(`{"model_class": "MajorityClassifier", "model_serialization_prefix": "m",
					"num_epochs": 1, "train_files": [%q]}`, train))
			},
			code: apperrors.CodeInvalidInput,
		},
		{
			name: "background on logical forms",
			setup: func(t *testing.T, f *fixture) []byte {
				train := f.file(t, "forms.tsv", "1\tis(sky, blue)\t1\n")
				background := f.file(t, "bg.tsv", "1\tthe sky is blue\n")
				return []byte(fmt.Sprintf(`{"model_class": "LogicalFormMajorityClassifier", "model_serialization_prefix": "m",
					"num_epochs": 1, "train_files": [%q], "train_background": %q}`, train, background))
			},
			code: apperrors.CodeInvalidInput,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			run, err := f.svc.Submit(context.Background(), SubmitRequest{Config: tt.setup(t, f)})
			require.NoError(t, err)

			err = f.svc.ProcessRun(context.Background(), run.ID)
			require.True(t, apperrors.IsCode(err, tt.code), "got %v", err)

			stored, err := f.svc.Get(context.Background(), run.ID)
			require.NoError(t, err)
			require.Equal(t, RunStatusFailed, stored.Status)
			require.NotNil(t, stored.FailureReason)
		})
	}
}

func TestService_ProjectedEmbeddingsAllowMismatch(t *testing.T) {
	f := newFixture(t)
	vectors := f.file(t, "vectors.txt", "cats 1 2 3\ndogs 4 5 6\n")
	cfg := f.classificationConfig(t, "MajorityClassifier",
		fmt.Sprintf(`"embeddings": {"words": {"dimension": 5, "pretrained_file": %q, "project": true}}`, vectors))
	run, err := f.svc.Train(context.Background(), SubmitRequest{Config: cfg})
	require.NoError(t, err)
	require.Equal(t, RunStatusStoppedEarly, run.Status)
}

func TestService_TrainsSpanReader(t *testing.T) {
	f := newFixture(t)
	train := f.file(t, "squad.tsv", "who ran home?\tjohn ran home quickly.\t0,4\nwho sat down?\tmary sat down slowly.\t0,4\n")
	cfg := []byte(fmt.Sprintf(`{
		"model_class": "SlidingWindowReader",
		"model_serialization_prefix": %q,
		"num_epochs": 2,
		"patience": 3,
		"train_files": [%q],
		"data_generator": {"dynamic_padding": true, "adaptive_batch_sizes": true, "adaptive_memory_usage_constant": 100},
	}`, filepath.Join(f.dir, "reader"), train))
	run, err := f.svc.Train(context.Background(), SubmitRequest{Config: cfg})
	require.NoError(t, err)
	require.Equal(t, RunStatusCompleted, run.Status)
	require.Len(t, run.Epochs, 2)
	require.Equal(t, 2, run.Epochs[0].Train.Instances)
}

func TestService_TrainsOtherInstanceKinds(t *testing.T) {
	tests := []struct {
		modelClass string
		data       string
	}{
		{
			modelClass: "MultipleChoiceMajorityClassifier",
			data: "0\tplants need light\t0\n0\tplants need water\t1\n" +
				"1\tfish need air\t0\n1\tfish need water\t1\n" +
				"2\tbirds fly\t1\n2\tbirds swim\t0\n",
		},
		{
			modelClass: "LogicalFormMajorityClassifier",
			data:       "for(depend_on(human, plant), oxygen)\t1\nis(sky, blue)\t1\nis(grass, red)\t0\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.modelClass, func(t *testing.T) {
			f := newFixture(t)
			train := f.file(t, "train.tsv", tt.data)
			prefix := filepath.Join(f.dir, "model")
			cfg := []byte(fmt.Sprintf(`{"model_class": %q, "model_serialization_prefix": %q,
				"num_epochs": 2, "patience": 3, "train_files": [%q]}`, tt.modelClass, prefix, train))
			run, err := f.svc.Train(context.Background(), SubmitRequest{Config: cfg})
			require.NoError(t, err)
			require.Equal(t, RunStatusCompleted, run.Status)
			require.Len(t, run.Epochs, 2)
			require.Equal(t, 3, run.Epochs[0].Train.Instances)
			require.InDelta(t, 2.0/3.0, run.Epochs[0].Train.Accuracy, 1e-9)

			reader, err := f.storage.Get(context.Background(), BestWeightsKey(prefix))
			require.NoError(t, err)
			ckpt, err := DecodeCheckpoint(reader)
			require.NoError(t, err)
			require.Equal(t, tt.modelClass, ckpt.ModelClass)
			require.JSONEq(t, `{"label_counts":[1,2]}`, string(ckpt.Weights))
		})
	}
}

func TestService_BackgroundAndTokenizer(t *testing.T) {
	vocabulary := func(t *testing.T, f *fixture) map[string][]string {
		t.Helper()
		reader, err := f.storage.Get(context.Background(), IndexerKey(filepath.Join(f.dir, "model")))
		require.NoError(t, err)
		var vocab map[string][]string
		require.NoError(t, json.NewDecoder(reader).Decode(&vocab))
		return vocab
	}

	t.Run("background sentences join the vocabulary", func(t *testing.T) {
		f := newFixture(t)
		train := f.file(t, "indexed.tsv", "1\tcats purr\t1\n2\tdogs bark\t1\n3\tfish fly\t0\n")
		background := f.file(t, "bg.tsv", "1\tcats are pets\n2\tdogs guard houses\tdogs fetch\n")
		cfg := []byte(fmt.Sprintf(`{"model_class": "MajorityClassifier", "model_serialization_prefix": %q,
			"num_epochs": 1, "train_files": [%q], "train_background": %q}`, filepath.Join(f.dir, "model"), train, background))
		run, err := f.svc.Train(context.Background(), SubmitRequest{Config: cfg})
		require.NoError(t, err)
		require.Equal(t, RunStatusCompleted, run.Status)
		require.Equal(t, 3, run.Epochs[0].Train.Instances)
		words := vocabulary(t, f)["words"]
		require.Contains(t, words, "pets")
		require.Contains(t, words, "houses")
		require.Contains(t, words, "fetch")
	})

	t.Run("configured character tokenizer", func(t *testing.T) {
		f := newFixture(t)
		cfg := f.classificationConfig(t, "MajorityClassifier", `"tokenizer": "characters"`)
		run, err := f.svc.Train(context.Background(), SubmitRequest{Config: cfg})
		require.NoError(t, err)
		require.Equal(t, RunStatusStoppedEarly, run.Status)
		vocab := vocabulary(t, f)
		require.Contains(t, vocab["characters"], "c")
		require.NotContains(t, vocab["words"], "cats")
	})
}

func TestService_GetUnknownRun(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Get(context.Background(), uuid.New())
	require.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
	err = f.svc.ProcessRun(context.Background(), uuid.New())
	require.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
}

func TestService_Validate(t *testing.T) {
	f := newFixture(t)
	cfg := []byte(`{"model_class": "MajorityClassifier", "model_serialization_prefix": "m", "num_epochs": 1, "train_files": ["/no/such/file.tsv"]}`)

	parsed, err := f.svc.Validate(context.Background(), cfg, false)
	require.NoError(t, err)
	require.Equal(t, "MajorityClassifier", parsed.ModelClass)

	_, err = f.svc.Validate(context.Background(), cfg, true)
	require.True(t, apperrors.IsCode(err, apperrors.CodeMissingDependency))

	_, err = f.svc.Validate(context.Background(), bytes.TrimSuffix(cfg, []byte("}")), false)
	require.True(t, apperrors.IsCode(err, apperrors.CodeMalformedConfig))
}
