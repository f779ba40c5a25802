package dataset

import (
	"strconv"
	"strings"
	"unicode/utf8"

	apperrors "github.com/yanqian/qa-trainer/pkg/errors"
)

// CharacterSpanInstance is a question over a passage whose answer is a
// character span [start, end) of the passage. Offsets count runes, not bytes.
type CharacterSpanInstance struct {
	Question string
	Passage  string
	Span     *[2]int
	Index    *int
}

// ReadCharacterSpanLine parses "[index\t]question\tpassage[\tstart,end]".
func ReadCharacterSpanLine(line string) (*CharacterSpanInstance, error) {
	fields := strings.Split(line, "\t")
	inst := &CharacterSpanInstance{}
	if len(fields) >= 3 && isDecimal(fields[0]) {
		index, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, badLine(line, err)
		}
		inst.Index = &index
		fields = fields[1:]
	}
	switch len(fields) {
	case 2:
	case 3:
		span, err := parseSpan(fields[2])
		if err != nil {
			return nil, badLine(line, err)
		}
		inst.Span = &span
	default:
		return nil, badLine(line, nil)
	}
	inst.Question, inst.Passage = fields[0], fields[1]
	if inst.Span != nil && (inst.Span[0] < 0 || inst.Span[1] <= inst.Span[0] || inst.Span[1] > utf8.RuneCountInString(inst.Passage)) {
		return nil, apperrors.Wrap(apperrors.CodeInvalidInput, "answer span outside passage: "+line, nil)
	}
	return inst, nil
}

func parseSpan(raw string) ([2]int, error) {
	begin, end, ok := strings.Cut(raw, ",")
	if !ok {
		return [2]int{}, apperrors.Wrap(apperrors.CodeInvalidInput, "span must be start,end", nil)
	}
	b, err := strconv.Atoi(strings.TrimSpace(begin))
	if err != nil {
		return [2]int{}, err
	}
	e, err := strconv.Atoi(strings.TrimSpace(end))
	if err != nil {
		return [2]int{}, err
	}
	return [2]int{b, e}, nil
}

func (i *CharacterSpanInstance) Words() map[string][]string {
	words := SplitWords(strings.ToLower(i.Question))
	words = append(words, SplitWords(strings.ToLower(i.Passage))...)
	return map[string][]string{NamespaceWords: words}
}

// ToIndexed maps the character span onto the passage tokens it overlaps.
func (i *CharacterSpanInstance) ToIndexed(indexer *DataIndexer) (IndexedInstance, error) {
	// offsets are taken on the original text; lower-casing can change byte lengths
	passage := SplitWordsWithOffsets(i.Passage)
	passageWords := make([]string, len(passage))
	for k, t := range passage {
		passageWords[k] = strings.ToLower(t.Text)
	}
	out := &IndexedCharacterSpanInstance{
		QuestionIndices: indexer.indices(SplitWords(strings.ToLower(i.Question)), NamespaceWords),
		PassageIndices:  indexer.indices(passageWords, NamespaceWords),
		Index:           i.Index,
	}
	if i.Span == nil {
		return out, nil
	}
	lo, hi := byteOffset(i.Passage, i.Span[0]), byteOffset(i.Passage, i.Span[1])
	begin, end := -1, -1
	for k, t := range passage {
		if t.End > lo && t.Start < hi {
			if begin < 0 {
				begin = k
			}
			end = k
		}
	}
	if begin < 0 {
		return nil, apperrors.Wrap(apperrors.CodeInvalidInput, "answer span covers no passage token", nil)
	}
	out.Span = &[2]int{begin, end}
	return out, nil
}

// byteOffset converts a rune offset into s to a byte offset.
func byteOffset(s string, runes int) int {
	n := 0
	for i := range s {
		if n == runes {
			return i
		}
		n++
	}
	return len(s)
}

// IndexedCharacterSpanInstance holds question and passage ids and the
// inclusive token span of the answer.
type IndexedCharacterSpanInstance struct {
	QuestionIndices []int
	PassageIndices  []int
	Span            *[2]int
	Index           *int
}

func (i *IndexedCharacterSpanInstance) PaddingLengths() map[string]int {
	return map[string]int{
		KeyQuestionWords: len(i.QuestionIndices),
		KeyPassageWords:  len(i.PassageIndices),
	}
}

// Padded left-pads the question and right-pads the passage so token
// positions in the passage stay valid; a span past the cut is clamped.
func (i *IndexedCharacterSpanInstance) Padded(lengths map[string]int) IndexedInstance {
	out := *i
	out.QuestionIndices = padLeft(i.QuestionIndices, lengths[KeyQuestionWords])
	n := lengths[KeyPassageWords]
	out.PassageIndices = padRight(i.PassageIndices, n)
	if i.Span != nil && n > 0 {
		span := *i.Span
		span[0] = min(span[0], n-1)
		span[1] = min(span[1], n-1)
		out.Span = &span
	}
	return &out
}

// TrainingData returns [question, passage] and one-hot begin/end vectors
// over the passage positions.
func (i *IndexedCharacterSpanInstance) TrainingData() ([][]int, [][]int) {
	inputs := [][]int{
		append([]int(nil), i.QuestionIndices...),
		append([]int(nil), i.PassageIndices...),
	}
	if i.Span == nil {
		return inputs, nil
	}
	begin := make([]int, len(i.PassageIndices))
	end := make([]int, len(i.PassageIndices))
	if i.Span[0] < len(begin) {
		begin[i.Span[0]] = 1
	}
	if i.Span[1] < len(end) {
		end[i.Span[1]] = 1
	}
	return inputs, [][]int{begin, end}
}
