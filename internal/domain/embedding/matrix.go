package embedding

import (
	"math/rand"

	"github.com/yanqian/qa-trainer/internal/domain/dataset"
)

// initScale bounds the uniform init of rows without a pretrained vector.
const initScale = 0.05

// Matrix is the initial embedding table for one vocabulary namespace.
type Matrix struct {
	dim   int
	rows  [][]float32
	found int
}

// NewMatrix builds a table with one row per vocabulary entry. Row 0 is
// padding and stays zero; words without a pretrained vector get small
// random values drawn from a generator seeded with seed.
func NewMatrix(indexer *dataset.DataIndexer, namespace string, dim int, pretrained *Vectors, seed int64) *Matrix {
	if pretrained != nil {
		dim = pretrained.Dim
	}
	rng := rand.New(rand.NewSource(seed))
	size := indexer.VocabSize(namespace)
	m := &Matrix{dim: dim, rows: make([][]float32, size)}
	for i := range m.rows {
		row := make([]float32, dim)
		m.rows[i] = row
		if i == dataset.PaddingIndex {
			continue
		}
		if pretrained != nil {
			if vec, ok := pretrained.Words[indexer.Word(i, namespace)]; ok {
				copy(row, vec)
				m.found++
				continue
			}
		}
		for k := range row {
			row[k] = float32((rng.Float64()*2 - 1) * initScale)
		}
	}
	return m
}

func (m *Matrix) Rows() int { return len(m.rows) }

func (m *Matrix) Dim() int { return m.dim }

// Pretrained counts rows initialised from the pretrained file.
func (m *Matrix) Pretrained() int { return m.found }

// Vector returns the row for index, or nil when out of range.
func (m *Matrix) Vector(index int) []float32 {
	if index < 0 || index >= len(m.rows) {
		return nil
	}
	return m.rows[index]
}
