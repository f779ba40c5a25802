package training

// EarlyStopping ends training once the monitored metric has not improved
// for Patience consecutive epochs.
type EarlyStopping struct {
	patience       int
	higherIsBetter bool

	best      float64
	bestEpoch int
	wait      int
	seen      bool
}

// NewEarlyStopping builds the schedule. A patience of zero stops at the
// first epoch without improvement.
func NewEarlyStopping(patience int, higherIsBetter bool) *EarlyStopping {
	return &EarlyStopping{patience: patience, higherIsBetter: higherIsBetter, bestEpoch: -1}
}

// Observe records the metric of an epoch.
func (e *EarlyStopping) Observe(epoch int, value float64) (improved, stop bool) {
	if !e.seen || e.better(value) {
		e.seen = true
		e.best = value
		e.bestEpoch = epoch
		e.wait = 0
		return true, false
	}
	e.wait++
	return false, e.wait >= e.patience
}

// BestEpoch is the epoch with the best metric, or -1 before any epoch.
func (e *EarlyStopping) BestEpoch() int { return e.bestEpoch }

// Best is the best metric observed.
func (e *EarlyStopping) Best() float64 { return e.best }

func (e *EarlyStopping) better(value float64) bool {
	if e.higherIsBetter {
		return value > e.best
	}
	return value < e.best
}
