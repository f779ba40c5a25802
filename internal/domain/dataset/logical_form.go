package dataset

import (
	"strings"

	apperrors "github.com/yanqian/qa-trainer/pkg/errors"
)

// Shift/reduce operations of a binary logical form parse. Zero is padding.
const (
	OpShift   = 1
	OpReduce2 = 2
	OpReduce3 = 3
)

// LogicalFormInstance is a tree-structured form such as
// "for(depend_on(human, plant), oxygen)" with an optional label.
type LogicalFormInstance struct {
	Text  string
	Label *bool
	Index *int
}

// ReadLogicalFormLine accepts the same layouts as ReadTextClassificationLine.
func ReadLogicalFormLine(line string) (*LogicalFormInstance, error) {
	tc, err := ReadTextClassificationLine(line, nil)
	if err != nil {
		return nil, err
	}
	return &LogicalFormInstance{Text: tc.Text, Label: tc.Label, Index: tc.Index}, nil
}

// Tokens splits the form into names, parentheses and commas.
func (i *LogicalFormInstance) Tokens() []string {
	var (
		out     []string
		current strings.Builder
	)
	flush := func() {
		if w := strings.TrimSpace(current.String()); w != "" {
			out = append(out, w)
		}
		current.Reset()
	}
	for _, r := range strings.ToLower(i.Text) {
		switch r {
		case '(', ')', ',':
			flush()
			out = append(out, string(r))
		case ' ', '\t':
			flush()
		default:
			current.WriteRune(r)
		}
	}
	flush()
	return out
}

// Words drops the structural tokens.
func (i *LogicalFormInstance) Words() map[string][]string {
	var words []string
	for _, t := range i.Tokens() {
		if t != "(" && t != ")" && t != "," {
			words = append(words, t)
		}
	}
	return map[string][]string{NamespaceWords: words}
}

// ToIndexed splits the form into its element ids and the shift/reduce
// sequence that rebuilds the tree, e.g. "a(b(c), d(e, f))" gives elements
// a..f and S S S R2 S S S R3 R3.
func (i *LogicalFormInstance) ToIndexed(indexer *DataIndexer) (IndexedInstance, error) {
	var (
		stack       []string
		transitions []int
		elements    []string
	)
	for _, tok := range i.Tokens() {
		switch tok {
		case ",", "(":
			stack = append(stack, tok)
		case ")":
			if len(stack) == 0 {
				return nil, malformedForm(i.Text)
			}
			last := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if last == "(" {
				transitions = append(transitions, OpReduce2)
				continue
			}
			if len(stack) == 0 {
				return nil, malformedForm(i.Text)
			}
			stack = stack[:len(stack)-1]
			transitions = append(transitions, OpReduce3)
		default:
			transitions = append(transitions, OpShift)
			elements = append(elements, tok)
		}
	}
	if len(stack) != 0 {
		return nil, malformedForm(i.Text)
	}
	return &IndexedLogicalFormInstance{
		WordIndices: indexer.indices(elements, NamespaceWords),
		Transitions: transitions,
		Label:       i.Label,
		Index:       i.Index,
	}, nil
}

func malformedForm(text string) error {
	return apperrors.Wrap(apperrors.CodeInvalidInput, "malformed binary semantic parse: "+text, nil)
}

// IndexedLogicalFormInstance holds element ids and transitions.
type IndexedLogicalFormInstance struct {
	WordIndices []int
	Transitions []int
	Label       *bool
	Index       *int
}

func (i *IndexedLogicalFormInstance) PaddingLengths() map[string]int {
	return map[string]int{
		KeySentenceWords: len(i.WordIndices),
		KeyTransitions:   len(i.Transitions),
	}
}

func (i *IndexedLogicalFormInstance) Padded(lengths map[string]int) IndexedInstance {
	out := *i
	out.WordIndices = padLeft(i.WordIndices, lengths[KeySentenceWords])
	out.Transitions = padLeft(i.Transitions, lengths[KeyTransitions])
	return &out
}

func (i *IndexedLogicalFormInstance) TrainingData() ([][]int, [][]int) {
	inputs := [][]int{
		append([]int(nil), i.WordIndices...),
		append([]int(nil), i.Transitions...),
	}
	if i.Label == nil {
		return inputs, nil
	}
	return inputs, [][]int{oneHotBool(*i.Label)}
}
