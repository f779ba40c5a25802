package dataset

import (
	"fmt"
	"strconv"
	"strings"

	apperrors "github.com/yanqian/qa-trainer/pkg/errors"
)

// Instance is a single example holding raw text.
type Instance interface {
	// Words lists the tokens per namespace, used to fit a DataIndexer.
	Words() map[string][]string
	// ToIndexed converts the tokens into vocabulary ids.
	ToIndexed(indexer *DataIndexer) (IndexedInstance, error)
}

// IndexedInstance is an example converted to ids, ready for padding.
type IndexedInstance interface {
	// PaddingLengths reports the unpadded length along each padding key.
	PaddingLengths() map[string]int
	// Padded returns a copy padded or truncated to the given lengths.
	Padded(lengths map[string]int) IndexedInstance
	// TrainingData returns the model inputs and labels; labels are nil for
	// unlabeled instances.
	TrainingData() (inputs [][]int, labels [][]int)
}

// Padding keys.
const (
	KeySentenceWords = "num_sentence_words"
	KeyQuestionWords = "num_question_words"
	KeyPassageWords  = "num_passage_words"
	KeyTransitions   = "num_transitions"
	KeyBackground    = "num_background"
	KeyOptions       = "num_options"
)

// TextClassificationInstance is a sentence with an optional boolean label.
type TextClassificationInstance struct {
	Text      string
	Label     *bool
	Index     *int
	Tokenizer Tokenizer
}

// NewTextClassificationInstance builds an instance with the default word tokenizer.
func NewTextClassificationInstance(text string, label *bool) *TextClassificationInstance {
	return &TextClassificationInstance{Text: text, Label: label, Tokenizer: WordTokenizer{}}
}

// ReadTextClassificationLine parses one of four tab separated layouts:
//
//	text
//	index<TAB>text
//	text<TAB>label
//	index<TAB>text<TAB>label
//
// A label of "1" is true, any other digits are false.
func ReadTextClassificationLine(line string, tokenizer Tokenizer) (*TextClassificationInstance, error) {
	return ReadLabeledTextClassificationLine(line, tokenizer, nil)
}

// ReadLabeledTextClassificationLine is ReadTextClassificationLine with a
// default label. Lines without a label column take defaultLabel; lines with
// one must agree with it.
func ReadLabeledTextClassificationLine(line string, tokenizer Tokenizer, defaultLabel *bool) (*TextClassificationInstance, error) {
	if tokenizer == nil {
		tokenizer = WordTokenizer{}
	}
	fields := strings.Split(line, "\t")
	inst := &TextClassificationInstance{Tokenizer: tokenizer}
	switch len(fields) {
	case 1:
		inst.Text = fields[0]
	case 2:
		switch {
		case isDecimal(fields[0]):
			index, err := strconv.Atoi(fields[0])
			if err != nil {
				return nil, badLine(line, err)
			}
			inst.Index = &index
			inst.Text = fields[1]
		case isDecimal(fields[1]):
			inst.Text = fields[0]
			inst.Label = boolPtr(fields[1] == "1")
		default:
			return nil, badLine(line, nil)
		}
	case 3:
		index, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, badLine(line, err)
		}
		inst.Index = &index
		inst.Text = fields[1]
		inst.Label = boolPtr(fields[2] == "1")
	default:
		return nil, badLine(line, nil)
	}
	if defaultLabel != nil {
		if inst.Label == nil {
			inst.Label = boolPtr(*defaultLabel)
		} else if *inst.Label != *defaultLabel {
			return nil, apperrors.Wrap(apperrors.CodeInvalidInput,
				fmt.Sprintf("label %t does not match default label %t: %s", *inst.Label, *defaultLabel, line), nil)
		}
	}
	return inst, nil
}

func (i *TextClassificationInstance) Words() map[string][]string {
	return i.tokenizer().Words(strings.ToLower(i.Text))
}

func (i *TextClassificationInstance) tokenizer() Tokenizer {
	if i.Tokenizer == nil {
		return WordTokenizer{}
	}
	return i.Tokenizer
}

func (i *TextClassificationInstance) ToIndexed(indexer *DataIndexer) (IndexedInstance, error) {
	words := i.Words()[NamespaceWords]
	return &IndexedTextClassificationInstance{
		WordIndices: indexer.indices(words, NamespaceWords),
		Label:       i.Label,
		Index:       i.Index,
	}, nil
}

// IndexedTextClassificationInstance holds word ids and the label.
type IndexedTextClassificationInstance struct {
	WordIndices []int
	Label       *bool
	Index       *int
}

func (i *IndexedTextClassificationInstance) PaddingLengths() map[string]int {
	return map[string]int{KeySentenceWords: len(i.WordIndices)}
}

// Padded left-pads with zeros and, when too long, keeps the last tokens.
func (i *IndexedTextClassificationInstance) Padded(lengths map[string]int) IndexedInstance {
	out := *i
	out.WordIndices = padLeft(i.WordIndices, lengths[KeySentenceWords])
	return &out
}

// TrainingData returns the word ids and a [false, true] one-hot label.
func (i *IndexedTextClassificationInstance) TrainingData() ([][]int, [][]int) {
	inputs := [][]int{append([]int(nil), i.WordIndices...)}
	if i.Label == nil {
		return inputs, nil
	}
	return inputs, [][]int{oneHotBool(*i.Label)}
}

func oneHotBool(label bool) []int {
	if label {
		return []int{0, 1}
	}
	return []int{1, 0}
}

// padLeft pads on the left with PaddingIndex and truncates from the left.
func padLeft(seq []int, length int) []int {
	if length < 0 {
		length = 0
	}
	out := make([]int, length)
	if len(seq) >= length {
		copy(out, seq[len(seq)-length:])
		return out
	}
	copy(out[length-len(seq):], seq)
	return out
}

// padRight pads on the right with PaddingIndex and truncates the tail.
func padRight(seq []int, length int) []int {
	if length < 0 {
		length = 0
	}
	out := make([]int, length)
	copy(out, seq)
	return out
}

func isDecimal(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func boolPtr(v bool) *bool { return &v }

func badLine(line string, err error) error {
	return apperrors.Wrap(apperrors.CodeInvalidInput, "unrecognized line format: "+line, err)
}
