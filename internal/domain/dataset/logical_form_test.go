package dataset

import (
	"testing"

	"github.com/stretchr/testify/require"

	apperrors "github.com/yanqian/qa-trainer/pkg/errors"
)

func TestLogicalFormInstance_Transitions(t *testing.T) {
	inst, err := ReadLogicalFormLine("a(b(c), d(e, f))\t1")
	require.NoError(t, err)
	require.True(t, *inst.Label)
	require.Equal(t, []string{"a", "b", "c", "d", "e", "f"}, inst.Words()[NamespaceWords])

	indexer := NewDataIndexer()
	indexer.Fit([]Instance{inst}, 1)
	indexed, err := inst.ToIndexed(indexer)
	require.NoError(t, err)

	form := indexed.(*IndexedLogicalFormInstance)
	S, R2, R3 := OpShift, OpReduce2, OpReduce3
	require.Equal(t, []int{S, S, S, R2, S, S, S, R3, R3}, form.Transitions)
	require.Len(t, form.WordIndices, 6)

	padded := form.Padded(map[string]int{KeySentenceWords: 7, KeyTransitions: 10}).(*IndexedLogicalFormInstance)
	require.Equal(t, 0, padded.Transitions[0])
	require.Equal(t, 0, padded.WordIndices[0])

	_, labels := padded.TrainingData()
	require.Equal(t, [][]int{{0, 1}}, labels)
}

func TestLogicalFormInstance_Unbalanced(t *testing.T) {
	for _, text := range []string{"a(b", "a)b(", "a(b))"} {
		inst := &LogicalFormInstance{Text: text}
		_, err := inst.ToIndexed(NewDataIndexer())
		require.True(t, apperrors.IsCode(err, apperrors.CodeInvalidInput), text)
	}
}
