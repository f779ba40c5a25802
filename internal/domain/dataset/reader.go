package dataset

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

	"golang.org/x/sync/errgroup"

	apperrors "github.com/yanqian/qa-trainer/pkg/errors"
)

// Instance kinds a data file can hold.
const (
	KindTextClassification = "text_classification"
	KindCharacterSpan      = "character_span"
	KindLogicalForm        = "logical_form"
	KindMultipleChoice     = "multiple_choice"
)

const maxLineBytes = 4 << 20

// ReadFile reads one instance per non-empty line. For KindMultipleChoice,
// consecutive lines sharing an index form one question.
func ReadFile(path, kind string, tokenizer Tokenizer) ([]Instance, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperrors.Wrap(apperrors.CodeMissingDependency, "data file not found: "+path, err)
		}
		return nil, apperrors.Wrap(apperrors.CodeMissingDependency, "open data file "+path, err)
	}
	defer f.Close()
	instances, err := ReadInstances(f, kind, tokenizer)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return instances, nil
}

// ReadInstances parses instances of kind from r.
func ReadInstances(r io.Reader, kind string, tokenizer Tokenizer) ([]Instance, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	var (
		out     []Instance
		options []*TextClassificationInstance
		group   *int
	)
	flush := func() error {
		if len(options) == 0 {
			return nil
		}
		q, err := NewQuestionInstance(options)
		if err != nil {
			return err
		}
		out = append(out, q)
		options, group = nil, nil
		return nil
	}

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		var (
			inst Instance
			err  error
		)
		switch kind {
		case KindTextClassification, "":
			inst, err = ReadTextClassificationLine(line, tokenizer)
		case KindCharacterSpan:
			inst, err = ReadCharacterSpanLine(line)
		case KindLogicalForm:
			inst, err = ReadLogicalFormLine(line)
		case KindMultipleChoice:
			var opt *TextClassificationInstance
			opt, err = ReadTextClassificationLine(line, tokenizer)
			if err == nil && opt.Index == nil {
				err = apperrors.Wrap(apperrors.CodeInvalidInput, "multiple choice lines need an index: "+line, nil)
			}
			if err == nil {
				if group != nil && *group != *opt.Index {
					err = flush()
				}
				options = append(options, opt)
				group = opt.Index
			}
		default:
			return nil, apperrors.Wrap(apperrors.CodeInvalidInput, "unknown instance kind "+strconv.Quote(kind), nil)
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if inst != nil {
			out = append(out, inst)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInvalidInput, "read data", err)
	}
	if err := flush(); err != nil {
		return nil, fmt.Errorf("line %d: %w", lineNo, err)
	}
	return out, nil
}

// ReadFiles reads every path concurrently and concatenates the instances
// in path order.
func ReadFiles(ctx context.Context, paths []string, kind string, tokenizer Tokenizer) ([]Instance, error) {
	results := make([][]Instance, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			instances, err := ReadFile(path, kind, tokenizer)
			if err != nil {
				return err
			}
			results[i] = instances
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var out []Instance
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}

// ReadBackgroundFile reads "index<TAB>sentence<TAB>sentence..." lines.
func ReadBackgroundFile(path string) (map[int][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeMissingDependency, "background file "+path, err)
	}
	background := make(map[int][]string)
	for n, line := range strings.Split(string(data), "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		index, err := strconv.Atoi(fields[0])
		if err != nil || len(fields) < 2 {
			return nil, fmt.Errorf("%s: line %d: %w", path, n+1, badLine(line, err))
		}
		background[index] = append(background[index], fields[1:]...)
	}
	return background, nil
}

// WithBackground wraps indexed text instances with their background
// sentences. Instances without an index or background are left empty.
func WithBackground(instances []Instance, background map[int][]string) ([]Instance, error) {
	out := make([]Instance, len(instances))
	for i, inst := range instances {
		tc, ok := inst.(*TextClassificationInstance)
		if !ok {
			return nil, apperrors.Wrap(apperrors.CodeInvalidInput, fmt.Sprintf("instance %d cannot take background", i), nil)
		}
		b := &BackgroundInstance{Instance: tc}
		if tc.Index != nil {
			b.Background = background[*tc.Index]
		}
		out[i] = b
	}
	return out, nil
}
