package training

import (
	"context"
	"encoding/json"
	"math"

	"github.com/yanqian/qa-trainer/internal/domain/dataset"
	"github.com/yanqian/qa-trainer/pkg/metrics"
)

// MajorityClassifier predicts the most frequent training label. Its loss
// is the cross entropy of the smoothed label distribution. For multiple
// choice questions the label is the position of the correct option.
type MajorityClassifier struct {
	counts []int
}

func NewMajorityClassifier() *MajorityClassifier {
	return &MajorityClassifier{}
}

func (m *MajorityClassifier) Fit(ctx context.Context, batches []dataset.Batch) (metrics.EpochMetrics, error) {
	m.counts = nil
	err := eachLabel(ctx, batches, func(label []int) {
		if len(m.counts) < len(label) {
			m.counts = append(m.counts, make([]int, len(label)-len(m.counts))...)
		}
		m.counts[argmax(label)]++
	})
	if err != nil {
		return metrics.EpochMetrics{}, err
	}
	return m.Evaluate(ctx, batches)
}

func (m *MajorityClassifier) Evaluate(ctx context.Context, batches []dataset.Batch) (metrics.EpochMetrics, error) {
	total := 0
	for _, c := range m.counts {
		total += c
	}
	prediction := argmax(m.counts)
	var out metrics.EpochMetrics
	correct := 0
	err := eachLabel(ctx, batches, func(label []int) {
		class := argmax(label)
		count := 0
		if class < len(m.counts) {
			count = m.counts[class]
		}
		// add-one smoothing keeps unseen classes finite
		p := float64(count+1) / float64(total+max(len(m.counts), len(label)))
		out.Loss -= math.Log(p)
		if class == prediction {
			correct++
		}
		out.Instances++
	})
	if err != nil || out.Instances == 0 {
		return out, err
	}
	out.Loss /= float64(out.Instances)
	out.Accuracy = float64(correct) / float64(out.Instances)
	return out, nil
}

func (m *MajorityClassifier) Weights() ([]byte, error) {
	return json.Marshal(map[string]any{"label_counts": m.counts})
}

// SlidingWindowReader answers span questions by choosing the passage
// window whose surrounding context shares the most words with the
// question. Training only learns the typical answer length.
type SlidingWindowReader struct {
	contextWords int
	answerLength int
}

// NewSlidingWindowReader uses context words on each side of a candidate
// answer; zero selects the default of three.
func NewSlidingWindowReader(contextWords int) *SlidingWindowReader {
	if contextWords <= 0 {
		contextWords = 3
	}
	return &SlidingWindowReader{contextWords: contextWords, answerLength: 1}
}

func (r *SlidingWindowReader) Fit(ctx context.Context, batches []dataset.Batch) (metrics.EpochMetrics, error) {
	total, n := 0, 0
	for _, b := range batches {
		if err := ctx.Err(); err != nil {
			return metrics.EpochMetrics{}, err
		}
		for _, inst := range b.Instances {
			_, labels := inst.TrainingData()
			if len(labels) != 2 {
				continue
			}
			total += argmax(labels[1]) - argmax(labels[0]) + 1
			n++
		}
	}
	if n > 0 {
		r.answerLength = max(1, int(math.Round(float64(total)/float64(n))))
	}
	return r.Evaluate(ctx, batches)
}

// Evaluate reports exact span match as accuracy and 1 - token F1 as loss.
func (r *SlidingWindowReader) Evaluate(ctx context.Context, batches []dataset.Batch) (metrics.EpochMetrics, error) {
	var out metrics.EpochMetrics
	exact := 0
	for _, b := range batches {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		for _, inst := range b.Instances {
			inputs, labels := inst.TrainingData()
			if len(inputs) != 2 || len(labels) != 2 {
				continue
			}
			begin, end := r.Predict(inputs[0], inputs[1])
			goldBegin, goldEnd := argmax(labels[0]), argmax(labels[1])
			if begin == goldBegin && end == goldEnd {
				exact++
			}
			out.Loss += 1 - spanF1(begin, end, goldBegin, goldEnd)
			out.Instances++
		}
	}
	if out.Instances > 0 {
		out.Loss /= float64(out.Instances)
		out.Accuracy = float64(exact) / float64(out.Instances)
	}
	return out, nil
}

// Predict returns the inclusive token span chosen for a question.
func (r *SlidingWindowReader) Predict(question, passage []int) (int, int) {
	words := make(map[int]struct{}, len(question))
	for _, id := range question {
		if id > dataset.OOVIndex {
			words[id] = struct{}{}
		}
	}
	length := len(passage)
	for length > 0 && passage[length-1] == dataset.PaddingIndex {
		length--
	}
	if length == 0 {
		return 0, 0
	}
	width := min(r.answerLength, length)
	bestStart, bestScore := 0, -1
	for start := 0; start+width <= length; start++ {
		score := 0
		lo, hi := max(0, start-r.contextWords), min(length, start+width+r.contextWords)
		for i := lo; i < hi; i++ {
			if i >= start && i < start+width {
				continue
			}
			if _, ok := words[passage[i]]; ok {
				score++
			}
		}
		if score > bestScore {
			bestStart, bestScore = start, score
		}
	}
	return bestStart, bestStart + width - 1
}

func (r *SlidingWindowReader) Weights() ([]byte, error) {
	return json.Marshal(map[string]int{"context": r.contextWords, "answer_length": r.answerLength})
}

func spanF1(begin, end, goldBegin, goldEnd int) float64 {
	overlap := min(end, goldEnd) - max(begin, goldBegin) + 1
	if overlap <= 0 {
		return 0
	}
	precision := float64(overlap) / float64(end-begin+1)
	recall := float64(overlap) / float64(goldEnd-goldBegin+1)
	return 2 * precision * recall / (precision + recall)
}

func eachLabel(ctx context.Context, batches []dataset.Batch, fn func(label []int)) error {
	for _, b := range batches {
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, inst := range b.Instances {
			_, labels := inst.TrainingData()
			if len(labels) == 0 {
				continue
			}
			fn(labels[0])
		}
	}
	return nil
}

func argmax(values []int) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}
