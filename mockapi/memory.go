package mockapi

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	jsonpatch "github.com/evanphx/json-patch/v5"

	"specimenreview/specimen"
)

// MemoryRepository keeps records in process memory. Partial updates are
// applied as JSON merge patches so absent fields stay untouched.
type MemoryRepository struct {
	mu      sync.RWMutex
	records []specimen.Record
	index   map[string]int
}

func NewMemoryRepository(records []specimen.Record) (*MemoryRepository, error) {
	r := &MemoryRepository{}
	if err := r.Replace(context.Background(), records); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *MemoryRepository) List(ctx context.Context) ([]specimen.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]specimen.Record, len(r.records))
	copy(out, r.records)
	return out, nil
}

func (r *MemoryRepository) Patch(ctx context.Context, id string, updates specimen.Updates) (specimen.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pos, ok := r.index[id]
	if !ok {
		return specimen.Record{}, ErrNotFound
	}

	original, err := json.Marshal(r.records[pos])
	if err != nil {
		return specimen.Record{}, fmt.Errorf("mockapi: encode record: %w", err)
	}
	patch, err := json.Marshal(updates)
	if err != nil {
		return specimen.Record{}, fmt.Errorf("mockapi: encode patch: %w", err)
	}
	merged, err := jsonpatch.MergePatch(original, patch)
	if err != nil {
		return specimen.Record{}, fmt.Errorf("mockapi: merge patch: %w", err)
	}

	var updated specimen.Record
	if err := json.Unmarshal(merged, &updated); err != nil {
		return specimen.Record{}, fmt.Errorf("mockapi: decode patched record: %w", err)
	}
	updated.ID = id

	r.records[pos] = updated
	return updated, nil
}

func (r *MemoryRepository) Replace(ctx context.Context, records []specimen.Record) error {
	if err := checkUnique(records); err != nil {
		return err
	}

	next := make([]specimen.Record, len(records))
	copy(next, records)
	index := make(map[string]int, len(next))
	for i, rec := range next {
		index[rec.ID] = i
	}

	r.mu.Lock()
	r.records = next
	r.index = index
	r.mu.Unlock()
	return nil
}
