package training

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yanqian/qa-trainer/internal/domain/dataset"
	apperrors "github.com/yanqian/qa-trainer/pkg/errors"
)

func TestRegistry(t *testing.T) {
	r := DefaultRegistry()
	require.Equal(t, []string{
		"LogicalFormMajorityClassifier",
		"MajorityClassifier",
		"MultipleChoiceMajorityClassifier",
		"SlidingWindowReader",
	}, r.Names())

	kinds := map[string]string{
		"LogicalFormMajorityClassifier":    dataset.KindLogicalForm,
		"MajorityClassifier":               dataset.KindTextClassification,
		"MultipleChoiceMajorityClassifier": dataset.KindMultipleChoice,
		"SlidingWindowReader":              dataset.KindCharacterSpan,
	}
	for name, kind := range kinds {
		f, err := r.Lookup(name)
		require.NoError(t, err)
		require.Equal(t, kind, f.InstanceKind, name)
	}

	_, err := r.Lookup("BidirectionalAttentionFlow")
	require.True(t, apperrors.IsCode(err, apperrors.CodeUnsupportedModel))
	require.ErrorContains(t, err, "MajorityClassifier")
}

func TestSlidingWindowReader_Predict(t *testing.T) {
	r := NewSlidingWindowReader(1)
	r.answerLength = 2
	// question words 7 and 8 surround positions 3..4 of the passage
	begin, end := r.Predict([]int{0, 7, 8}, []int{5, 6, 7, 9, 9, 8, 5, 0, 0})
	require.Equal(t, 3, begin)
	require.Equal(t, 4, end)

	begin, end = r.Predict([]int{7}, []int{0, 0})
	require.Equal(t, 0, begin)
	require.Equal(t, 0, end)
}

func TestMajorityClassifier(t *testing.T) {
	yes, no := true, false
	batch := dataset.Batch{Instances: []dataset.IndexedInstance{
		&dataset.IndexedTextClassificationInstance{WordIndices: []int{2}, Label: &yes},
		&dataset.IndexedTextClassificationInstance{WordIndices: []int{3}, Label: &yes},
		&dataset.IndexedTextClassificationInstance{WordIndices: []int{4}, Label: &no},
		&dataset.IndexedTextClassificationInstance{WordIndices: []int{5}},
	}}
	m := NewMajorityClassifier()
	got, err := m.Fit(context.Background(), []dataset.Batch{batch})
	require.NoError(t, err)
	require.Equal(t, 3, got.Instances, "unlabeled instances are skipped")
	require.InDelta(t, 2.0/3.0, got.Accuracy, 1e-9)
	require.Greater(t, got.Loss, 0.0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.Evaluate(ctx, []dataset.Batch{batch})
	require.ErrorIs(t, err, context.Canceled)
}

func TestMajorityClassifier_MultipleChoice(t *testing.T) {
	options := func(texts ...string) []*dataset.TextClassificationInstance {
		out := make([]*dataset.TextClassificationInstance, len(texts))
		for i, text := range texts {
			correct := i == len(texts)-1
			out[i] = dataset.NewTextClassificationInstance(text, &correct)
		}
		return out
	}
	indexer := dataset.NewDataIndexer()
	var instances []dataset.IndexedInstance
	for _, opts := range [][]*dataset.TextClassificationInstance{options("a", "b"), options("c", "d"), options("e", "f", "g")} {
		q, err := dataset.NewQuestionInstance(opts)
		require.NoError(t, err)
		indexed, err := q.ToIndexed(indexer)
		require.NoError(t, err)
		instances = append(instances, indexed)
	}

	m := NewMajorityClassifier()
	got, err := m.Fit(context.Background(), []dataset.Batch{{Instances: instances}})
	require.NoError(t, err)
	require.Equal(t, 3, got.Instances)
	require.InDelta(t, 2.0/3.0, got.Accuracy, 1e-9, "the second option is most often correct")
}
