package dataset

import (
	"math/rand"
	"sort"

	"github.com/yanqian/qa-trainer/internal/domain/experiment"
)

// Batch is a group of instances padded to common lengths.
type Batch struct {
	Instances []IndexedInstance
	Lengths   map[string]int
}

// Size is the number of instances in the batch.
func (b Batch) Size() int { return len(b.Instances) }

// Generator turns indexed instances into batches following the
// data_generator section of a training configuration.
type Generator struct {
	spec      experiment.DataGeneratorSpec
	batchSize int
	rng       *rand.Rand

	instances []IndexedInstance
	batches   [][]int
}

// NewGenerator builds a generator over instances. The seed makes sort
// noise and batch shuffling reproducible.
func NewGenerator(spec experiment.DataGeneratorSpec, batchSize int, instances []IndexedInstance, seed int64) *Generator {
	if batchSize <= 0 {
		batchSize = 1
	}
	g := &Generator{
		spec:      spec,
		batchSize: batchSize,
		rng:       rand.New(rand.NewSource(seed)),
		instances: instances,
	}
	g.batches = g.group()
	return g
}

// Epoch returns the batches for one pass over the data.
func (g *Generator) Epoch() []Batch {
	if g.spec.DynamicPadding && g.spec.SortEveryEpoch {
		g.batches = g.group()
	}
	order := make([][]int, len(g.batches))
	copy(order, g.batches)
	g.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	if g.spec.BiggestBatchFirst && len(order) > 1 {
		biggest := 0
		for i, b := range order {
			if g.cost(b) > g.cost(order[biggest]) {
				biggest = i
			}
		}
		order[0], order[biggest] = order[biggest], order[0]
	}

	var global map[string]int
	if !g.spec.DynamicPadding {
		global = MaxLengths(g.instances)
	}
	out := make([]Batch, len(order))
	for i, idx := range order {
		lengths := global
		if lengths == nil {
			lengths = g.maxLengths(idx)
		}
		padded := make([]IndexedInstance, len(idx))
		for k, j := range idx {
			padded[k] = g.instances[j].Padded(lengths)
		}
		out[i] = Batch{Instances: padded, Lengths: lengths}
	}
	return out
}

// NumBatches reports how many batches an epoch yields.
func (g *Generator) NumBatches() int { return len(g.batches) }

func (g *Generator) group() [][]int {
	order := make([]int, len(g.instances))
	for i := range order {
		order[i] = i
	}
	if g.spec.DynamicPadding {
		g.sortByLength(order)
	}
	if g.spec.AdaptiveBatchSizes {
		return g.adaptive(order)
	}
	var batches [][]int
	for start := 0; start < len(order); start += g.batchSize {
		end := min(start+g.batchSize, len(order))
		batches = append(batches, order[start:end])
	}
	return batches
}

// sortByLength orders instances by their padding lengths, each scaled by
// a random factor in [1-noise, 1+noise] so batches vary across epochs.
func (g *Generator) sortByLength(order []int) {
	keys := make([][]float64, len(g.instances))
	names := paddingKeys(g.instances)
	for i, inst := range g.instances {
		lengths := inst.PaddingLengths()
		key := make([]float64, len(names))
		for k, name := range names {
			noise := 1.0
			if g.spec.PaddingNoise > 0 {
				noise += g.spec.PaddingNoise * (2*g.rng.Float64() - 1)
			}
			key[k] = float64(lengths[name]) * noise
		}
		keys[i] = key
	}
	sort.SliceStable(order, func(a, b int) bool {
		ka, kb := keys[order[a]], keys[order[b]]
		for k := range ka {
			if ka[k] != kb[k] {
				return ka[k] < kb[k]
			}
		}
		return false
	})
}

// adaptive grows each batch while (n+1) x paddedSize stays within the
// memory constant and n stays under the maximum batch size, if any.
func (g *Generator) adaptive(order []int) [][]int {
	var (
		batches [][]int
		current []int
		lengths map[string]int
	)
	for _, idx := range order {
		next := mergeLengths(lengths, g.instances[idx].PaddingLengths())
		full := g.spec.MaximumBatchSize > 0 && len(current) >= g.spec.MaximumBatchSize
		if len(current) > 0 && (full || (len(current)+1)*paddedSize(next) > g.spec.AdaptiveMemoryUsageConstant) {
			batches = append(batches, current)
			current, lengths = nil, nil
			next = g.instances[idx].PaddingLengths()
		}
		current = append(current, idx)
		lengths = next
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}

func (g *Generator) maxLengths(idx []int) map[string]int {
	lengths := make(map[string]int)
	for _, i := range idx {
		lengths = mergeLengths(lengths, g.instances[i].PaddingLengths())
	}
	return lengths
}

func (g *Generator) cost(idx []int) int {
	return len(idx) * paddedSize(g.maxLengths(idx))
}

// MaxLengths returns, per padding key, the longest length in instances.
func MaxLengths(instances []IndexedInstance) map[string]int {
	lengths := make(map[string]int)
	for _, inst := range instances {
		lengths = mergeLengths(lengths, inst.PaddingLengths())
	}
	return lengths
}

func mergeLengths(a, b map[string]int) map[string]int {
	out := make(map[string]int, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = max(out[k], v)
	}
	return out
}

// paddedSize is the number of cells one padded instance occupies.
func paddedSize(lengths map[string]int) int {
	size := 1
	for _, v := range lengths {
		size *= max(v, 1)
	}
	return size
}

func paddingKeys(instances []IndexedInstance) []string {
	seen := make(map[string]struct{})
	for _, inst := range instances {
		for k := range inst.PaddingLengths() {
			seen[k] = struct{}{}
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
