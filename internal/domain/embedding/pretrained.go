package embedding

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"

	apperrors "github.com/yanqian/qa-trainer/pkg/errors"
)

// Vectors holds pretrained vectors keyed by word.
type Vectors struct {
	Dim   int
	Words map[string][]float32
}

// Len is the number of words with a vector.
func (v *Vectors) Len() int { return len(v.Words) }

// Filter returns the subset of vectors for the given words.
func (v *Vectors) Filter(words []string) *Vectors {
	out := &Vectors{Dim: v.Dim, Words: make(map[string][]float32)}
	for _, w := range words {
		if vec, ok := v.Words[w]; ok {
			out.Words[w] = vec
		}
	}
	return out
}

// LoadPretrained reads "word v1 ... vN" lines from path, which may be
// gzip compressed. When keep is non-nil only words it accepts are retained.
func LoadPretrained(ctx context.Context, path string, keep func(word string) bool) (*Vectors, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperrors.Wrap(apperrors.CodeMissingDependency, "pretrained file not found: "+path, err)
		}
		return nil, apperrors.Wrap(apperrors.CodeMissingDependency, "open pretrained file "+path, err)
	}
	defer f.Close()
	vectors, err := ReadPretrained(ctx, f, keep)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return vectors, nil
}

// ReadPretrained parses vectors from r, detecting gzip by its magic bytes.
// A leading "count dim" header line is skipped.
func ReadPretrained(ctx context.Context, r io.Reader, keep func(word string) bool) (*Vectors, error) {
	br := bufio.NewReaderSize(r, 1<<16)
	if magic, _ := br.Peek(2); len(magic) == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeMalformedEmbeddings, "open gzip stream", err)
		}
		defer zr.Close()
		br = bufio.NewReaderSize(zr, 1<<16)
	}

	scanner := bufio.NewScanner(br)
	scanner.Buffer(make([]byte, 1<<16), 1<<22)
	out := &Vectors{Words: make(map[string][]float32)}
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if lineNo%10000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if lineNo == 1 && isHeader(fields) {
			continue
		}
		dim := len(fields) - 1
		if dim == 0 {
			return nil, apperrors.Wrapf(apperrors.CodeMalformedEmbeddings, nil, "line %d: word %q has no vector", lineNo, fields[0])
		}
		if out.Dim == 0 {
			out.Dim = dim
		} else if dim != out.Dim {
			return nil, apperrors.Wrapf(apperrors.CodeMalformedEmbeddings, nil, "line %d: expected %d values, got %d", lineNo, out.Dim, dim)
		}
		word := fields[0]
		if keep != nil && !keep(word) {
			continue
		}
		vec := make([]float32, dim)
		for i, raw := range fields[1:] {
			f, err := strconv.ParseFloat(raw, 32)
			if err != nil {
				return nil, apperrors.Wrapf(apperrors.CodeMalformedEmbeddings, err, "line %d: bad value %q", lineNo, raw)
			}
			vec[i] = float32(f)
		}
		out.Words[word] = vec
	}
	if err := scanner.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeMalformedEmbeddings, "read pretrained vectors", err)
	}
	if out.Dim == 0 {
		return nil, apperrors.Wrap(apperrors.CodeMalformedEmbeddings, "no vectors found", nil)
	}
	return out, nil
}

func isHeader(fields []string) bool {
	if len(fields) != 2 {
		return false
	}
	_, errCount := strconv.Atoi(fields[0])
	_, errDim := strconv.Atoi(fields[1])
	return errCount == nil && errDim == nil
}
