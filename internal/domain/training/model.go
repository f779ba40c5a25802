package training

import (
	"context"
	"sort"

	"github.com/yanqian/qa-trainer/internal/domain/dataset"
	"github.com/yanqian/qa-trainer/internal/domain/embedding"
	"github.com/yanqian/qa-trainer/internal/domain/experiment"
	apperrors "github.com/yanqian/qa-trainer/pkg/errors"
	"github.com/yanqian/qa-trainer/pkg/metrics"
)

// Model is a trainable model class.
type Model interface {
	// Fit runs one training epoch over batches.
	Fit(ctx context.Context, batches []dataset.Batch) (metrics.EpochMetrics, error)
	// Evaluate scores batches without updating the model.
	Evaluate(ctx context.Context, batches []dataset.Batch) (metrics.EpochMetrics, error)
	// Weights serialises the current parameters as JSON.
	Weights() ([]byte, error)
}

// ModelSpec is what a factory receives to build a model.
type ModelSpec struct {
	Config     experiment.Config
	Indexer    *dataset.DataIndexer
	Embeddings map[string]*embedding.Matrix
}

// Factory builds a model class and declares the data it reads.
type Factory struct {
	// InstanceKind is the dataset kind of the training files.
	InstanceKind string
	New          func(spec ModelSpec) (Model, error)
}

// Registry maps model_class names to factories.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry holds the built-in baseline models.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("MajorityClassifier", Factory{
		InstanceKind: dataset.KindTextClassification,
		New:          func(ModelSpec) (Model, error) { return NewMajorityClassifier(), nil },
	})
	r.Register("MultipleChoiceMajorityClassifier", Factory{
		InstanceKind: dataset.KindMultipleChoice,
		New:          func(ModelSpec) (Model, error) { return NewMajorityClassifier(), nil },
	})
	r.Register("LogicalFormMajorityClassifier", Factory{
		InstanceKind: dataset.KindLogicalForm,
		New:          func(ModelSpec) (Model, error) { return NewMajorityClassifier(), nil },
	})
	r.Register("SlidingWindowReader", Factory{
		InstanceKind: dataset.KindCharacterSpan,
		New:          func(ModelSpec) (Model, error) { return NewSlidingWindowReader(0), nil },
	})
	return r
}

// Register adds or replaces a model class.
func (r *Registry) Register(name string, f Factory) {
	r.factories[name] = f
}

// Lookup resolves a model class.
func (r *Registry) Lookup(name string) (Factory, error) {
	f, ok := r.factories[name]
	if !ok {
		return Factory{}, apperrors.Wrapf(apperrors.CodeUnsupportedModel, nil,
			"model_class %q is not available; known classes: %v", name, r.Names())
	}
	return f, nil
}

// Names lists registered classes in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
