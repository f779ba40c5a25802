package training

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEarlyStopping(t *testing.T) {
	tests := []struct {
		name           string
		patience       int
		higherIsBetter bool
		values         []float64
		stopAt         int
		best           int
	}{
		{name: "accuracy plateaus", patience: 2, higherIsBetter: true, values: []float64{0.5, 0.6, 0.6, 0.55, 0.9}, stopAt: 3, best: 1},
		{name: "loss keeps falling", patience: 1, values: []float64{3, 2, 1, 0.5}, stopAt: -1, best: 3},
		{name: "zero patience", patience: 0, higherIsBetter: true, values: []float64{0.5, 0.4}, stopAt: 1, best: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			es := NewEarlyStopping(tt.patience, tt.higherIsBetter)
			require.Equal(t, -1, es.BestEpoch())
			stoppedAt := -1
			for epoch, v := range tt.values {
				if _, stop := es.Observe(epoch, v); stop {
					stoppedAt = epoch
					break
				}
			}
			require.Equal(t, tt.stopAt, stoppedAt)
			require.Equal(t, tt.best, es.BestEpoch())
		})
	}
}
