package training

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yanqian/qa-trainer/internal/domain/dataset"
	"github.com/yanqian/qa-trainer/internal/domain/embedding"
	"github.com/yanqian/qa-trainer/internal/domain/experiment"
	apperrors "github.com/yanqian/qa-trainer/pkg/errors"
	"github.com/yanqian/qa-trainer/pkg/metrics"
	"github.com/yanqian/qa-trainer/pkg/util"
)

// JobTrainRun is the queue job that processes a pending run.
const JobTrainRun = "train_run"

// Config tunes the run service.
type Config struct {
	// Seed drives sort noise, batch shuffling and embedding init.
	Seed int64
	// MinWordCount drops rarer words from the vocabulary.
	MinWordCount int
	// ListLimit caps List results when the filter sets none.
	ListLimit int
}

// Service manages training runs.
type Service struct {
	cfg        Config
	runs       RunRepository
	storage    ObjectStorage
	queue      JobQueue
	embeddings EmbeddingLoader
	registry   *Registry
	now        func() time.Time
	logger     *slog.Logger
}

// NewService constructs a Service. queue may be nil, in which case runs
// are only processed through Train or an explicit ProcessRun.
func NewService(cfg Config, runs RunRepository, storage ObjectStorage, queue JobQueue, embeddings EmbeddingLoader, registry *Registry, logger *slog.Logger) *Service {
	if cfg.MinWordCount <= 0 {
		cfg.MinWordCount = 1
	}
	if cfg.ListLimit <= 0 {
		cfg.ListLimit = 100
	}
	if registry == nil {
		registry = DefaultRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cfg:        cfg,
		runs:       runs,
		storage:    storage,
		queue:      queue,
		embeddings: embeddings,
		registry:   registry,
		now:        util.NowUTC,
		logger:     logger.With("component", "training.service"),
	}
}

// SubmitRequest carries the raw configuration text of a new run.
type SubmitRequest struct {
	Name   string
	Config []byte
}

// Validate parses a configuration and, when checkPaths is set, verifies
// that every referenced file is present.
func (s *Service) Validate(_ context.Context, data []byte, checkPaths bool) (experiment.Config, error) {
	cfg, err := experiment.Parse(data)
	if err != nil {
		return experiment.Config{}, err
	}
	if checkPaths {
		if err := cfg.VerifyPaths(); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

// Submit stores a pending run and enqueues it for processing.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (Run, error) {
	run, err := s.create(ctx, req)
	if err != nil {
		return Run{}, err
	}
	if s.queue != nil {
		if err := s.queue.Enqueue(ctx, JobTrainRun, map[string]any{"run_id": run.ID.String()}); err != nil {
			s.logger.Warn("enqueue train_run failed", "run_id", run.ID, "error", err)
		}
	}
	return run, nil
}

// Train submits a run and processes it before returning.
func (s *Service) Train(ctx context.Context, req SubmitRequest) (Run, error) {
	run, err := s.create(ctx, req)
	if err != nil {
		return Run{}, err
	}
	if err := s.ProcessRun(ctx, run.ID); err != nil {
		if stored, getErr := s.Get(ctx, run.ID); getErr == nil {
			return stored, err
		}
		return run, err
	}
	return s.Get(ctx, run.ID)
}

// Get returns a run by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Run, error) {
	run, found, err := s.runs.Get(ctx, id)
	if err != nil {
		return Run{}, apperrors.Wrap(apperrors.CodeStorage, "failed to load run", err)
	}
	if !found {
		return Run{}, apperrors.Wrap(apperrors.CodeNotFound, "run not found", nil)
	}
	return run, nil
}

// List returns runs, newest first.
func (s *Service) List(ctx context.Context, filter RunFilter) ([]Run, error) {
	if filter.Limit <= 0 || filter.Limit > s.cfg.ListLimit {
		filter.Limit = s.cfg.ListLimit
	}
	runs, err := s.runs.List(ctx, filter)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorage, "failed to list runs", err)
	}
	return runs, nil
}

func (s *Service) create(ctx context.Context, req SubmitRequest) (Run, error) {
	cfg, err := experiment.Parse(req.Config)
	if err != nil {
		return Run{}, err
	}
	snapshot, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return Run{}, apperrors.Wrap(apperrors.CodeMalformedConfig, "failed to encode configuration", err)
	}
	now := s.now()
	run := Run{
		ID:                  uuid.New(),
		Name:                strings.TrimSpace(req.Name),
		ModelClass:          cfg.ModelClass,
		Status:              RunStatusPending,
		SerializationPrefix: cfg.SerializationPrefix,
		Epochs:              []EpochResult{},
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if run.Name == "" {
		run.Name = cfg.ModelClass
	}
	run.ConfigKey = fmt.Sprintf("runs/%s/config.json", run.ID)
	if _, err := s.storage.Put(ctx, run.ConfigKey, snapshot, "application/json"); err != nil {
		return Run{}, apperrors.Wrap(apperrors.CodeStorage, "failed to store configuration", err)
	}
	if err := s.runs.Create(ctx, run); err != nil {
		return Run{}, apperrors.Wrap(apperrors.CodeStorage, "failed to persist run", err)
	}
	s.logger.Info("run submitted", "run_id", run.ID, "model_class", run.ModelClass)
	return run, nil
}

// ProcessRun trains a pending run: it reads the data, builds the
// vocabulary and embeddings, then runs epochs until num_epochs or early
// stopping, writing checkpoints under the serialization prefix.
func (s *Service) ProcessRun(ctx context.Context, id uuid.UUID) error {
	run, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if run.Status.Terminal() {
		return nil
	}
	if run.Status == RunStatusRunning {
		s.logger.Warn("restarting interrupted run", "run_id", id, "stale_epochs", len(run.Epochs))
	}
	s.logger.Info("train_run start", "run_id", id)
	run.Status = RunStatusRunning
	run.Epochs = []EpochResult{}
	run.BestEpoch = nil
	run.FailureReason = nil
	if err := s.save(ctx, &run); err != nil {
		return err
	}
	if err := s.train(ctx, &run); err != nil {
		reason := err.Error()
		run.Status = RunStatusFailed
		run.FailureReason = &reason
		if saveErr := s.save(context.WithoutCancel(ctx), &run); saveErr != nil {
			s.logger.Error("failed to record run failure", "run_id", id, "error", saveErr)
		}
		s.logger.Warn("train_run failed", "run_id", id, "error", err)
		return err
	}
	s.logger.Info("train_run complete", "run_id", id, "status", run.Status, "epochs", len(run.Epochs))
	return nil
}

func (s *Service) train(ctx context.Context, run *Run) error {
	cfg, err := s.loadConfig(ctx, run.ConfigKey)
	if err != nil {
		return err
	}
	if err := cfg.VerifyPaths(); err != nil {
		return err
	}
	factory, err := s.registry.Lookup(cfg.ModelClass)
	if err != nil {
		return err
	}

	tokenizer, err := tokenizerFor(cfg)
	if err != nil {
		return err
	}
	trainData, err := readData(ctx, cfg.TrainFiles, cfg.TrainBackground, factory.InstanceKind, tokenizer)
	if err != nil {
		return err
	}
	if len(trainData) == 0 {
		return apperrors.Wrap(apperrors.CodeInvalidInput, "train_files contain no instances", nil)
	}
	var validationData []dataset.Instance
	if len(cfg.ValidationFiles) > 0 {
		if validationData, err = readData(ctx, cfg.ValidationFiles, cfg.ValidationBackground, factory.InstanceKind, tokenizer); err != nil {
			return err
		}
	}

	indexer := dataset.NewDataIndexer()
	indexer.Fit(trainData, s.cfg.MinWordCount)
	matrices, err := s.buildEmbeddings(ctx, cfg, indexer)
	if err != nil {
		return err
	}
	model, err := factory.New(ModelSpec{Config: cfg, Indexer: indexer, Embeddings: matrices})
	if err != nil {
		return apperrors.Wrap(apperrors.CodeTraining, "failed to build model", err)
	}

	trainIndexed, err := dataset.IndexAll(trainData, indexer)
	if err != nil {
		return err
	}
	validationIndexed, err := dataset.IndexAll(validationData, indexer)
	if err != nil {
		return err
	}
	trainGen := dataset.NewGenerator(cfg.DataGenerator, cfg.BatchSize, trainIndexed, s.cfg.Seed)
	var validationGen *dataset.Generator
	if len(validationIndexed) > 0 {
		validationGen = dataset.NewGenerator(cfg.DataGenerator, cfg.BatchSize, validationIndexed, s.cfg.Seed+1)
	}

	save := cfg.SaveModels
	if save {
		if err := s.saveArtifacts(ctx, cfg, indexer); err != nil {
			return err
		}
	}

	_, higherIsBetter := metrics.Get(metrics.EpochMetrics{}, metrics.EpochMetrics{}, cfg.ValidationMetric)
	stopper := NewEarlyStopping(cfg.Patience, higherIsBetter)
	logger := s.logger.With("run_id", run.ID)
	status := RunStatusCompleted
	for epoch := 0; epoch < cfg.NumEpochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return apperrors.Wrap(apperrors.CodeTraining, "training cancelled", err)
		}
		trainMetrics, err := model.Fit(ctx, trainGen.Epoch())
		if err != nil {
			return apperrors.Wrapf(apperrors.CodeTraining, err, "epoch %d failed", epoch)
		}
		var validationMetrics metrics.EpochMetrics
		if validationGen != nil {
			if validationMetrics, err = model.Evaluate(ctx, validationGen.Epoch()); err != nil {
				return apperrors.Wrapf(apperrors.CodeTraining, err, "epoch %d validation failed", epoch)
			}
		}
		value, _ := metrics.Get(trainMetrics, validationMetrics, cfg.ValidationMetric)
		improved, stop := stopper.Observe(epoch, value)
		result := EpochResult{
			Epoch:      epoch,
			Train:      trainMetrics,
			Validation: validationMetrics,
			Metric:     value,
			Improved:   improved,
		}
		if save {
			if result.Checkpoint, err = s.saveWeights(ctx, cfg, model, epoch, value, improved); err != nil {
				return err
			}
		}
		run.Epochs = append(run.Epochs, result)
		best := stopper.BestEpoch()
		run.BestEpoch = &best
		if err := s.save(ctx, run); err != nil {
			return err
		}
		logger.Info("epoch complete", "epoch", epoch, cfg.ValidationMetric, value, "improved", improved,
			"loss", trainMetrics.Loss, "acc", trainMetrics.Accuracy)
		if stop && epoch < cfg.NumEpochs-1 {
			status = RunStatusStoppedEarly
			logger.Info("early stopping", "epoch", epoch, "best_epoch", best, "patience", cfg.Patience)
			break
		}
	}
	run.Status = status
	return s.save(ctx, run)
}

func (s *Service) loadConfig(ctx context.Context, key string) (experiment.Config, error) {
	reader, err := s.storage.Get(ctx, key)
	if err != nil {
		return experiment.Config{}, apperrors.Wrap(apperrors.CodeStorage, "failed to fetch configuration", err)
	}
	defer reader.Close()
	raw, err := io.ReadAll(reader)
	if err != nil {
		return experiment.Config{}, apperrors.Wrap(apperrors.CodeStorage, "failed to read configuration", err)
	}
	return experiment.Parse(raw)
}

// buildEmbeddings creates one matrix per configured embedding, checking
// pretrained file widths against the configured dimension.
func (s *Service) buildEmbeddings(ctx context.Context, cfg experiment.Config, indexer *dataset.DataIndexer) (map[string]*embedding.Matrix, error) {
	names := make([]string, 0, len(cfg.Embeddings))
	for name := range cfg.Embeddings {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make(map[string]*embedding.Matrix, len(names))
	for i, name := range names {
		spec := cfg.Embeddings[name]
		var vectors *embedding.Vectors
		if spec.PretrainedFile != "" {
			if s.embeddings == nil {
				return nil, apperrors.Wrap(apperrors.CodeMissingDependency, "no embedding loader configured", nil)
			}
			loaded, err := s.embeddings.Load(ctx, spec.PretrainedFile, indexer.Vocabulary(name))
			if err != nil {
				return nil, err
			}
			if err := embedding.CheckDimension(name, spec, loaded.Dim); err != nil {
				return nil, err
			}
			vectors = loaded
		}
		m := embedding.NewMatrix(indexer, name, spec.Dimension, vectors, s.cfg.Seed+int64(i))
		out[name] = m
		s.logger.Debug("embedding ready", "name", name, "rows", m.Rows(), "dim", m.Dim(), "pretrained", m.Pretrained())
	}
	return out, nil
}

func (s *Service) saveArtifacts(ctx context.Context, cfg experiment.Config, indexer *dataset.DataIndexer) error {
	configJSON, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return apperrors.Wrap(apperrors.CodeTraining, "failed to encode configuration", err)
	}
	if _, err := s.storage.Put(ctx, ConfigKey(cfg.SerializationPrefix), configJSON, "application/json"); err != nil {
		return apperrors.Wrap(apperrors.CodeStorage, "failed to save configuration", err)
	}
	indexerJSON, err := json.Marshal(indexer)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeTraining, "failed to encode data indexer", err)
	}
	if _, err := s.storage.Put(ctx, IndexerKey(cfg.SerializationPrefix), indexerJSON, "application/json"); err != nil {
		return apperrors.Wrap(apperrors.CodeStorage, "failed to save data indexer", err)
	}
	return nil
}

func (s *Service) saveWeights(ctx context.Context, cfg experiment.Config, model Model, epoch int, metric float64, best bool) (string, error) {
	weights, err := model.Weights()
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeTraining, "failed to read model weights", err)
	}
	data, err := EncodeCheckpoint(Checkpoint{ModelClass: cfg.ModelClass, Epoch: epoch, Metric: metric, Weights: weights})
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeTraining, "failed to encode checkpoint", err)
	}
	key := EpochWeightsKey(cfg.SerializationPrefix, epoch)
	if _, err := s.storage.Put(ctx, key, data, "application/zlib"); err != nil {
		return "", apperrors.Wrap(apperrors.CodeStorage, "failed to save checkpoint", err)
	}
	if best {
		if _, err := s.storage.Put(ctx, BestWeightsKey(cfg.SerializationPrefix), data, "application/zlib"); err != nil {
			return "", apperrors.Wrap(apperrors.CodeStorage, "failed to save best weights", err)
		}
	}
	return key, nil
}

func (s *Service) save(ctx context.Context, run *Run) error {
	run.UpdatedAt = s.now()
	if err := s.runs.Update(ctx, *run); err != nil {
		return apperrors.Wrap(apperrors.CodeStorage, "failed to update run", err)
	}
	return nil
}

// tokenizerFor resolves the configured tokenizer. Without one it picks the
// word tokenizer, adding characters when any encoder reads the characters
// embedding.
func tokenizerFor(cfg experiment.Config) (dataset.Tokenizer, error) {
	if cfg.Tokenizer != "" {
		tokenizer, err := dataset.NewTokenizer(cfg.Tokenizer)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeMalformedConfig, "tokenizer", err)
		}
		return tokenizer, nil
	}
	for name := range cfg.Encoders {
		if experiment.EmbeddingFor(name) == dataset.NamespaceCharacters {
			return dataset.WordAndCharacterTokenizer{}, nil
		}
	}
	return dataset.WordTokenizer{}, nil
}

// readData reads the data files and, when a background file is set, pairs
// each instance with its background sentences.
func readData(ctx context.Context, paths []string, backgroundPath, kind string, tokenizer dataset.Tokenizer) ([]dataset.Instance, error) {
	instances, err := dataset.ReadFiles(ctx, paths, kind, tokenizer)
	if err != nil || backgroundPath == "" {
		return instances, err
	}
	background, err := dataset.ReadBackgroundFile(backgroundPath)
	if err != nil {
		return nil, err
	}
	return dataset.WithBackground(instances, background)
}
