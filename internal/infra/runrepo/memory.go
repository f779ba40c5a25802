package runrepo

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	domain "github.com/yanqian/qa-trainer/internal/domain/training"
)

// MemoryRepository keeps runs in memory. Useful for tests and local dev.
type MemoryRepository struct {
	mu   sync.RWMutex
	data map[uuid.UUID]domain.Run
}

// NewMemoryRepository constructs the repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{data: make(map[uuid.UUID]domain.Run)}
}

func (r *MemoryRepository) Create(_ context.Context, run domain.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[run.ID] = cloneRun(run)
	return nil
}

func (r *MemoryRepository) Update(_ context.Context, run domain.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[run.ID]; !ok {
		return ErrNotFound
	}
	r.data[run.ID] = cloneRun(run)
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id uuid.UUID) (domain.Run, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.data[id]
	if !ok {
		return domain.Run{}, false, nil
	}
	return cloneRun(run), true, nil
}

func (r *MemoryRepository) List(_ context.Context, filter domain.RunFilter) ([]domain.Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Run, 0, len(r.data))
	for _, run := range r.data {
		if matchesStatus(run.Status, filter.Statuses) {
			out = append(out, cloneRun(run))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func cloneRun(run domain.Run) domain.Run {
	run.Epochs = append([]domain.EpochResult{}, run.Epochs...)
	return run
}

func matchesStatus(status domain.RunStatus, statuses []domain.RunStatus) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

var _ domain.RunRepository = (*MemoryRepository)(nil)
