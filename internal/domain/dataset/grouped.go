package dataset

import (
	"strings"

	apperrors "github.com/yanqian/qa-trainer/pkg/errors"
)

// BackgroundInstance attaches background sentences to a text instance.
type BackgroundInstance struct {
	Instance   *TextClassificationInstance
	Background []string
}

func (b *BackgroundInstance) Words() map[string][]string {
	words := b.Instance.Words()
	tok := b.Instance.tokenizer()
	for _, sentence := range b.Background {
		for ns, w := range tok.Words(strings.ToLower(sentence)) {
			words[ns] = append(words[ns], w...)
		}
	}
	return words
}

func (b *BackgroundInstance) ToIndexed(indexer *DataIndexer) (IndexedInstance, error) {
	inner, err := b.Instance.ToIndexed(indexer)
	if err != nil {
		return nil, err
	}
	tok := b.Instance.tokenizer()
	background := make([][]int, len(b.Background))
	for i, sentence := range b.Background {
		background[i] = indexer.indices(tok.Words(strings.ToLower(sentence))[NamespaceWords], NamespaceWords)
	}
	return &IndexedBackgroundInstance{
		Instance:   inner.(*IndexedTextClassificationInstance),
		Background: background,
	}, nil
}

// IndexedBackgroundInstance pads background sentences to the sentence
// length of the wrapped instance.
type IndexedBackgroundInstance struct {
	Instance   *IndexedTextClassificationInstance
	Background [][]int
}

func (b *IndexedBackgroundInstance) PaddingLengths() map[string]int {
	lengths := b.Instance.PaddingLengths()
	for _, s := range b.Background {
		lengths[KeySentenceWords] = max(lengths[KeySentenceWords], len(s))
	}
	lengths[KeyBackground] = len(b.Background)
	return lengths
}

// Padded keeps the last num_background sentences, padding missing ones
// with empty sentences at the front.
func (b *IndexedBackgroundInstance) Padded(lengths map[string]int) IndexedInstance {
	n := lengths[KeyBackground]
	words := lengths[KeySentenceWords]
	background := make([][]int, n)
	offset := n - len(b.Background)
	for i := range background {
		src := i - offset
		if src >= 0 {
			background[i] = padLeft(b.Background[src], words)
		} else {
			background[i] = make([]int, words)
		}
	}
	return &IndexedBackgroundInstance{
		Instance:   b.Instance.Padded(lengths).(*IndexedTextClassificationInstance),
		Background: background,
	}
}

// TrainingData returns the sentence followed by each background sentence.
func (b *IndexedBackgroundInstance) TrainingData() ([][]int, [][]int) {
	inputs, labels := b.Instance.TrainingData()
	for _, s := range b.Background {
		inputs = append(inputs, append([]int(nil), s...))
	}
	return inputs, labels
}

// QuestionInstance groups answer options; exactly one option is labeled true.
type QuestionInstance struct {
	Options []*TextClassificationInstance
	Label   int
}

// NewQuestionInstance validates that exactly one option is correct.
func NewQuestionInstance(options []*TextClassificationInstance) (*QuestionInstance, error) {
	correct := -1
	for i, opt := range options {
		if opt.Label != nil && *opt.Label {
			if correct >= 0 {
				return nil, apperrors.Wrap(apperrors.CodeInvalidInput, "question has more than one correct option", nil)
			}
			correct = i
		}
	}
	if correct < 0 {
		return nil, apperrors.Wrap(apperrors.CodeInvalidInput, "question has no correct option", nil)
	}
	return &QuestionInstance{Options: options, Label: correct}, nil
}

func (q *QuestionInstance) Words() map[string][]string {
	words := make(map[string][]string)
	for _, opt := range q.Options {
		for ns, w := range opt.Words() {
			words[ns] = append(words[ns], w...)
		}
	}
	return words
}

func (q *QuestionInstance) ToIndexed(indexer *DataIndexer) (IndexedInstance, error) {
	options := make([]*IndexedTextClassificationInstance, len(q.Options))
	for i, opt := range q.Options {
		indexed, err := opt.ToIndexed(indexer)
		if err != nil {
			return nil, err
		}
		options[i] = indexed.(*IndexedTextClassificationInstance)
	}
	return &IndexedQuestionInstance{Options: options, Label: q.Label}, nil
}

// IndexedQuestionInstance holds indexed options and the correct position.
type IndexedQuestionInstance struct {
	Options []*IndexedTextClassificationInstance
	Label   int
}

func (q *IndexedQuestionInstance) PaddingLengths() map[string]int {
	lengths := map[string]int{KeyOptions: len(q.Options)}
	for _, opt := range q.Options {
		lengths[KeySentenceWords] = max(lengths[KeySentenceWords], len(opt.WordIndices))
	}
	return lengths
}

// Padded pads each option; extra option slots are all padding and options
// past num_options are dropped.
func (q *IndexedQuestionInstance) Padded(lengths map[string]int) IndexedInstance {
	n := lengths[KeyOptions]
	options := make([]*IndexedTextClassificationInstance, n)
	for i := range options {
		if i < len(q.Options) {
			options[i] = q.Options[i].Padded(lengths).(*IndexedTextClassificationInstance)
		} else {
			options[i] = &IndexedTextClassificationInstance{WordIndices: make([]int, lengths[KeySentenceWords])}
		}
	}
	return &IndexedQuestionInstance{Options: options, Label: q.Label}
}

// TrainingData returns one input row per option and a one-hot over options.
func (q *IndexedQuestionInstance) TrainingData() ([][]int, [][]int) {
	inputs := make([][]int, len(q.Options))
	for i, opt := range q.Options {
		inputs[i] = append([]int(nil), opt.WordIndices...)
	}
	label := make([]int, len(q.Options))
	if q.Label < len(label) {
		label[q.Label] = 1
	}
	return inputs, [][]int{label}
}
