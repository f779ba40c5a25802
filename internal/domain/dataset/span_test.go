package dataset

import (
	"testing"

	"github.com/stretchr/testify/require"

	apperrors "github.com/yanqian/qa-trainer/pkg/errors"
)

func TestReadCharacterSpanLine(t *testing.T) {
	inst, err := ReadCharacterSpanLine("7\tWho ran?\tJohn ran home.\t0,4")
	require.NoError(t, err)
	require.Equal(t, "Who ran?", inst.Question)
	require.Equal(t, "John ran home.", inst.Passage)
	require.Equal(t, 7, *inst.Index)
	require.Equal(t, [2]int{0, 4}, *inst.Span)

	inst, err = ReadCharacterSpanLine("Who ran?\tJohn ran home.")
	require.NoError(t, err)
	require.Nil(t, inst.Span)
	require.Nil(t, inst.Index)

	for _, line := range []string{"only one", "q\tp\t4", "q\tp\t3,1", "q\tp\t0,99", "a\tb\tc\td\te", "q\téééé x\t6,8"} {
		_, err := ReadCharacterSpanLine(line)
		require.True(t, apperrors.IsCode(err, apperrors.CodeInvalidInput), line)
	}
}

func TestCharacterSpanInstance_MapsSpanToTokens(t *testing.T) {
	inst, err := ReadCharacterSpanLine("Where did John go?\tJohn went to the store.\t13,22")
	require.NoError(t, err)

	indexer := NewDataIndexer()
	indexer.Fit([]Instance{inst}, 1)
	indexed, err := inst.ToIndexed(indexer)
	require.NoError(t, err)

	span := indexed.(*IndexedCharacterSpanInstance)
	// john went to the store .
	require.Equal(t, [2]int{3, 4}, *span.Span)
	require.Equal(t, map[string]int{KeyQuestionWords: 5, KeyPassageWords: 6}, span.PaddingLengths())

	padded := span.Padded(map[string]int{KeyQuestionWords: 6, KeyPassageWords: 8}).(*IndexedCharacterSpanInstance)
	require.Equal(t, 0, padded.QuestionIndices[0])
	require.Equal(t, span.PassageIndices, padded.PassageIndices[:6])
	require.Equal(t, []int{0, 0}, padded.PassageIndices[6:])

	inputs, labels := padded.TrainingData()
	require.Len(t, inputs, 2)
	require.Equal(t, []int{0, 0, 0, 1, 0, 0, 0, 0}, labels[0])
	require.Equal(t, []int{0, 0, 0, 0, 1, 0, 0, 0}, labels[1])

	clamped := span.Padded(map[string]int{KeyQuestionWords: 5, KeyPassageWords: 4}).(*IndexedCharacterSpanInstance)
	require.Equal(t, [2]int{3, 3}, *clamped.Span)
}

func TestCharacterSpanInstance_NonASCIIOffsetsCountRunes(t *testing.T) {
	tests := []struct {
		line string
		want [2]int
	}{
		{"q\tééé ab cd\t7,9", [2]int{2, 2}},
		{"q\tééé ab cd\t4,6", [2]int{1, 1}},
		// İ lower-cases to a longer byte sequence
		{"q\tİİ Straße isn't\t3,9", [2]int{1, 1}},
		{"q\tİİ Straße isn't\t12,15", [2]int{3, 3}},
	}
	for _, tt := range tests {
		inst, err := ReadCharacterSpanLine(tt.line)
		require.NoError(t, err, tt.line)
		indexer := NewDataIndexer()
		indexer.Fit([]Instance{inst}, 1)
		indexed, err := inst.ToIndexed(indexer)
		require.NoError(t, err, tt.line)
		require.Equal(t, tt.want, *indexed.(*IndexedCharacterSpanInstance).Span, tt.line)
	}

	inst, err := ReadCharacterSpanLine("q\tééé x\t4,5")
	require.NoError(t, err, "end equal to the rune count is in range")
	require.Equal(t, [2]int{4, 5}, *inst.Span)
}
