package training

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"sync"

	"github.com/google/uuid"
)

type fakeRuns struct {
	mu   sync.Mutex
	runs map[uuid.UUID]Run
}

func newFakeRuns() *fakeRuns { return &fakeRuns{runs: make(map[uuid.UUID]Run)} }

func (f *fakeRuns) Create(_ context.Context, run Run) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs[run.ID] = run
	return nil
}

func (f *fakeRuns) Update(_ context.Context, run Run) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	run.Epochs = append([]EpochResult(nil), run.Epochs...)
	f.runs[run.ID] = run
	return nil
}

func (f *fakeRuns) Get(_ context.Context, id uuid.UUID) (Run, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[id]
	return run, ok, nil
}

func (f *fakeRuns) List(_ context.Context, filter RunFilter) ([]Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Run
	for _, r := range f.runs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

type fakeStorage struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newFakeStorage() *fakeStorage { return &fakeStorage{blobs: make(map[string][]byte)} }

func (f *fakeStorage) Put(_ context.Context, key string, data []byte, mimeType string) (StoredObject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blobs[key] = append([]byte(nil), data...)
	return StoredObject{Key: key, Size: int64(len(data)), MimeType: mimeType}, nil
}

func (f *fakeStorage) Get(_ context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.blobs[key]
	if !ok {
		return nil, errors.New("blob not found")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeStorage) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.blobs, key)
	return nil
}

func (f *fakeStorage) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.blobs[key]
	return ok
}

type fakeQueue struct {
	jobs []struct {
		name    string
		payload map[string]any
	}
}

func (f *fakeQueue) Enqueue(_ context.Context, name string, payload any) error {
	typed, _ := payload.(map[string]any)
	f.jobs = append(f.jobs, struct {
		name    string
		payload map[string]any
	}{name: name, payload: typed})
	return nil
}
