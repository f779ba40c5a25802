package metrics

// EpochMetrics captures the loss/accuracy pair reported for one pass over a split.
type EpochMetrics struct {
	Loss      float64 `json:"loss"`
	Accuracy  float64 `json:"accuracy"`
	Instances int     `json:"instances"`
}

// IsZero reports whether no instances were scored.
func (m EpochMetrics) IsZero() bool {
	return m.Instances == 0 && m.Loss == 0 && m.Accuracy == 0
}

// Get resolves a metric by its configured name (val_acc, val_loss, acc, loss).
func Get(train, validation EpochMetrics, name string) (value float64, higherIsBetter bool) {
	switch name {
	case "val_loss":
		return validation.Loss, false
	case "loss":
		return train.Loss, false
	case "acc":
		return train.Accuracy, true
	default:
		return validation.Accuracy, true
	}
}
