package storage

import (
	"context"
	"slices"
	"sync"

	"finny/internal/core"
)

type memoryEntry struct {
	version  uint64
	snapshot core.Snapshot
}

// MemoryRepository keeps snapshots in process memory.
type MemoryRepository struct {
	mu    sync.RWMutex
	users map[string]memoryEntry
}

var _ Repository = (*MemoryRepository)(nil)

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{users: make(map[string]memoryEntry)}
}

func (r *MemoryRepository) LoadSnapshot(_ context.Context, userID string) (core.Snapshot, uint64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.users[userID]
	if !ok {
		return core.EmptySnapshot(), 0, nil
	}
	return e.snapshot.Clone(), e.version, nil
}

func (r *MemoryRepository) SaveSnapshot(_ context.Context, userID string, version uint64, s core.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[userID] = memoryEntry{version: version, snapshot: s.Clone()}
	return nil
}

func (r *MemoryRepository) ListUserIDs(context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.users))
	for id := range r.users {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

func (r *MemoryRepository) Close() error { return nil }
