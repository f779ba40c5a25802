package dataset

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Vocabulary namespaces.
const (
	NamespaceWords      = "words"
	NamespaceCharacters = "characters"
)

// Tokenizer turns text into per-namespace token lists.
type Tokenizer interface {
	Words(text string) map[string][]string
}

// NewTokenizer resolves a tokenizer by name: "words" (default),
// "characters" or "words and characters".
func NewTokenizer(name string) (Tokenizer, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "default", "words":
		return WordTokenizer{}, nil
	case "characters":
		return CharacterTokenizer{}, nil
	case "words and characters":
		return WordAndCharacterTokenizer{}, nil
	default:
		return nil, fmt.Errorf("unknown tokenizer %q", name)
	}
}

// Token is a word with its byte offsets into the source text.
type Token struct {
	Text  string
	Start int
	End   int
}

// WordTokenizer splits on whitespace, separates leading/trailing punctuation
// and English clitics ("isn't" -> "is", "n't").
type WordTokenizer struct{}

func (WordTokenizer) Words(text string) map[string][]string {
	return map[string][]string{NamespaceWords: SplitWords(text)}
}

// CharacterTokenizer emits one token per rune, whitespace excluded.
type CharacterTokenizer struct{}

func (CharacterTokenizer) Words(text string) map[string][]string {
	return map[string][]string{NamespaceCharacters: splitCharacters(SplitWords(text))}
}

// WordAndCharacterTokenizer fills both namespaces.
type WordAndCharacterTokenizer struct{}

func (WordAndCharacterTokenizer) Words(text string) map[string][]string {
	words := SplitWords(text)
	return map[string][]string{
		NamespaceWords:      words,
		NamespaceCharacters: splitCharacters(words),
	}
}

// SplitWords is the word-level tokenization shared by all tokenizers.
func SplitWords(text string) []string {
	tokens := SplitWordsWithOffsets(text)
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = t.Text
	}
	return out
}

var clitics = []string{"n't", "'s", "'re", "'ve", "'ll", "'d", "'m"}

// SplitWordsWithOffsets tokenizes like SplitWords and keeps byte offsets so
// character spans can be mapped onto tokens.
func SplitWordsWithOffsets(text string) []Token {
	var out []Token
	pos := 0
	for pos < len(text) {
		r, size := utf8.DecodeRuneInString(text[pos:])
		if unicode.IsSpace(r) {
			pos += size
			continue
		}
		start := pos
		for pos < len(text) {
			r, size = utf8.DecodeRuneInString(text[pos:])
			if unicode.IsSpace(r) {
				break
			}
			pos += size
		}
		out = append(out, splitChunk(text[start:pos], start)...)
	}
	return out
}

func splitChunk(chunk string, offset int) []Token {
	var leading []Token
	for len(chunk) > 0 {
		r, size := utf8.DecodeRuneInString(chunk)
		if !isPunct(r) {
			break
		}
		leading = append(leading, Token{Text: chunk[:size], Start: offset, End: offset + size})
		chunk = chunk[size:]
		offset += size
	}
	var trailing []Token
	for len(chunk) > 0 {
		r, size := utf8.DecodeLastRuneInString(chunk)
		if !isPunct(r) {
			break
		}
		end := offset + len(chunk)
		trailing = append([]Token{{Text: chunk[len(chunk)-size:], Start: end - size, End: end}}, trailing...)
		chunk = chunk[:len(chunk)-size]
	}
	out := leading
	if chunk != "" {
		out = append(out, splitClitic(chunk, offset)...)
	}
	return append(out, trailing...)
}

func splitClitic(word string, offset int) []Token {
	for _, c := range clitics {
		if cut := len(word) - len(c); cut > 0 && strings.EqualFold(word[cut:], c) {
			return []Token{
				{Text: word[:cut], Start: offset, End: offset + cut},
				{Text: word[cut:], Start: offset + cut, End: offset + len(word)},
			}
		}
	}
	return []Token{{Text: word, Start: offset, End: offset + len(word)}}
}

func isPunct(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSymbol(r)
}

func splitCharacters(words []string) []string {
	var out []string
	for _, w := range words {
		for _, r := range w {
			out = append(out, string(r))
		}
	}
	return out
}
