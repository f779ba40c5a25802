package dataset

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Reserved vocabulary entries present in every namespace.
const (
	PaddingToken = "@@PADDING@@"
	OOVToken     = "@@UNKNOWN@@"
	PaddingIndex = 0
	OOVIndex     = 1
)

// DataIndexer maps tokens to integer ids per namespace.
type DataIndexer struct {
	wordToIndex map[string]map[string]int
	indexToWord map[string][]string
}

// NewDataIndexer returns an indexer holding only the reserved entries.
func NewDataIndexer() *DataIndexer {
	return &DataIndexer{
		wordToIndex: make(map[string]map[string]int),
		indexToWord: make(map[string][]string),
	}
}

func (d *DataIndexer) ensure(namespace string) {
	if _, ok := d.wordToIndex[namespace]; ok {
		return
	}
	d.wordToIndex[namespace] = map[string]int{PaddingToken: PaddingIndex, OOVToken: OOVIndex}
	d.indexToWord[namespace] = []string{PaddingToken, OOVToken}
}

// Fit counts the words of every instance and adds those seen at least
// minCount times. Words are added by descending count, ties alphabetically,
// so the same data always produces the same ids.
func (d *DataIndexer) Fit(instances []Instance, minCount int) {
	counts := make(map[string]map[string]int)
	for _, inst := range instances {
		for ns, words := range inst.Words() {
			if counts[ns] == nil {
				counts[ns] = make(map[string]int)
			}
			for _, w := range words {
				counts[ns][w]++
			}
		}
	}
	for ns, nsCounts := range counts {
		words := make([]string, 0, len(nsCounts))
		for w, c := range nsCounts {
			if c >= minCount {
				words = append(words, w)
			}
		}
		sort.Slice(words, func(i, j int) bool {
			ci, cj := nsCounts[words[i]], nsCounts[words[j]]
			if ci != cj {
				return ci > cj
			}
			return words[i] < words[j]
		})
		for _, w := range words {
			d.AddWord(w, ns)
		}
	}
}

// AddWord adds a word to a namespace and returns its index.
func (d *DataIndexer) AddWord(word, namespace string) int {
	d.ensure(namespace)
	if idx, ok := d.wordToIndex[namespace][word]; ok {
		return idx
	}
	idx := len(d.indexToWord[namespace])
	d.wordToIndex[namespace][word] = idx
	d.indexToWord[namespace] = append(d.indexToWord[namespace], word)
	return idx
}

// WordIndex returns the id of word, or OOVIndex when it is unknown.
func (d *DataIndexer) WordIndex(word, namespace string) int {
	if idx, ok := d.wordToIndex[namespace][word]; ok {
		return idx
	}
	return OOVIndex
}

// Word returns the token for an index, or OOVToken when out of range.
func (d *DataIndexer) Word(index int, namespace string) string {
	words := d.indexToWord[namespace]
	if index < 0 || index >= len(words) {
		return OOVToken
	}
	return words[index]
}

// VocabSize counts a namespace's entries including the reserved ones.
func (d *DataIndexer) VocabSize(namespace string) int {
	if words, ok := d.indexToWord[namespace]; ok {
		return len(words)
	}
	return 2
}

// Namespaces lists the fitted namespaces in sorted order.
func (d *DataIndexer) Namespaces() []string {
	out := make([]string, 0, len(d.indexToWord))
	for ns := range d.indexToWord {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out
}

func (d *DataIndexer) indices(words []string, namespace string) []int {
	out := make([]int, len(words))
	for i, w := range words {
		out[i] = d.WordIndex(w, namespace)
	}
	return out
}

// MarshalJSON stores the ordered vocabulary of each namespace.
func (d *DataIndexer) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.indexToWord)
}

// UnmarshalJSON restores an indexer written by MarshalJSON.
func (d *DataIndexer) UnmarshalJSON(data []byte) error {
	var vocab map[string][]string
	if err := json.Unmarshal(data, &vocab); err != nil {
		return err
	}
	*d = *NewDataIndexer()
	for ns, words := range vocab {
		d.indexToWord[ns] = append([]string(nil), words...)
		lookup := make(map[string]int, len(words))
		for i, w := range words {
			lookup[w] = i
		}
		d.wordToIndex[ns] = lookup
	}
	return nil
}

// IndexAll converts instances with the given indexer.
func IndexAll(instances []Instance, indexer *DataIndexer) ([]IndexedInstance, error) {
	out := make([]IndexedInstance, len(instances))
	for i, inst := range instances {
		indexed, err := inst.ToIndexed(indexer)
		if err != nil {
			return nil, fmt.Errorf("instance %d: %w", i, err)
		}
		out[i] = indexed
	}
	return out, nil
}

// Vocabulary lists a namespace's words in index order, reserved entries excluded.
func (d *DataIndexer) Vocabulary(namespace string) []string {
	words := d.indexToWord[namespace]
	if len(words) <= 2 {
		return nil
	}
	return append([]string(nil), words[2:]...)
}
