package training

import (
	"time"

	"github.com/google/uuid"

	"github.com/yanqian/qa-trainer/pkg/metrics"
)

// RunStatus tracks a training run through its lifecycle.
type RunStatus string

const (
	RunStatusPending      RunStatus = "pending"
	RunStatusRunning      RunStatus = "running"
	RunStatusCompleted    RunStatus = "completed"
	RunStatusStoppedEarly RunStatus = "stopped_early"
	RunStatusFailed       RunStatus = "failed"
)

// Valid reports whether s is a known status.
func (s RunStatus) Valid() bool {
	switch s {
	case RunStatusPending, RunStatusRunning, RunStatusCompleted, RunStatusStoppedEarly, RunStatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further processing happens for the status.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusStoppedEarly || s == RunStatusFailed
}

// Run is one submitted training job.
type Run struct {
	ID                  uuid.UUID     `json:"id"`
	Name                string        `json:"name"`
	ModelClass          string        `json:"modelClass"`
	Status              RunStatus     `json:"status"`
	SerializationPrefix string        `json:"serializationPrefix"`
	ConfigKey           string        `json:"configKey"`
	Epochs              []EpochResult `json:"epochs"`
	BestEpoch           *int          `json:"bestEpoch,omitempty"`
	FailureReason       *string       `json:"failureReason,omitempty"`
	CreatedAt           time.Time     `json:"createdAt"`
	UpdatedAt           time.Time     `json:"updatedAt"`
}

// EpochResult records the metrics of one epoch. Epochs count from zero.
type EpochResult struct {
	Epoch      int                  `json:"epoch"`
	Train      metrics.EpochMetrics `json:"train"`
	Validation metrics.EpochMetrics `json:"validation"`
	Metric     float64              `json:"metric"`
	Improved   bool                 `json:"improved"`
	Checkpoint string               `json:"checkpoint,omitempty"`
}

// RunFilter narrows List results.
type RunFilter struct {
	Statuses []RunStatus
	Limit    int
}
