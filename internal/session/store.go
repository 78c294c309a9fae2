// Package session owns the mutable reference to each user's current
// snapshot. Readers get an immutable point-in-time State; writers build a
// new snapshot and swap it in whole.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"finny/internal/core"
)

var ErrNotFound = errors.New("record not found")

// State is one published version of a user's records.
type State struct {
	Version  uint64
	Snapshot core.Snapshot
}

// Mutation edits a private copy of the snapshot. Returning an error
// discards the copy.
type Mutation func(*core.Snapshot) error

// CommitFunc persists a new state before it becomes visible. A failed
// commit leaves the current state in place.
type CommitFunc func(ctx context.Context, userID string, next State) error

type Store struct {
	userID string
	commit CommitFunc

	mu  sync.Mutex // serializes writers
	cur atomic.Pointer[State]
}

func NewStore(userID string, initial State, commit CommitFunc) *Store {
	s := &Store{userID: userID, commit: commit}
	initial.Snapshot = initial.Snapshot.Normalize()
	s.cur.Store(&initial)
	return s
}

func (s *Store) UserID() string { return s.userID }

// Current returns the latest published state without blocking writers.
func (s *Store) Current() State {
	return *s.cur.Load()
}

// Apply runs mutations in order against a copy of the current snapshot and
// publishes the result as the next version. Either every mutation is
// applied and committed, or the store is left unchanged.
func (s *Store) Apply(ctx context.Context, mutations ...Mutation) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.cur.Load()
	work := cur.Snapshot.Clone()
	for _, m := range mutations {
		if err := m(&work); err != nil {
			return *cur, err
		}
	}
	next := &State{Version: cur.Version + 1, Snapshot: work.Normalize()}
	if s.commit != nil {
		if err := s.commit(ctx, s.userID, *next); err != nil {
			return *cur, fmt.Errorf("commit version %d: %w", next.Version, err)
		}
	}
	s.cur.Store(next)
	return *next, nil
}

// Loader fetches the persisted state of a user. Unknown users load as an
// empty snapshot at version 0.
type Loader func(ctx context.Context, userID string) (State, error)

// Registry maps user IDs to stores, loading each on first use. Loads of
// different users run concurrently; concurrent loads of one user share a
// single call to the loader.
type Registry struct {
	load   Loader
	commit CommitFunc
	group  singleflight.Group

	mu     sync.Mutex
	stores map[string]*Store
}

func NewRegistry(load Loader, commit CommitFunc) *Registry {
	return &Registry{load: load, commit: commit, stores: make(map[string]*Store)}
}

func (r *Registry) cached(userID string) *Store {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stores[userID]
}

// Get returns the store of userID, loading it if needed.
func (r *Registry) Get(ctx context.Context, userID string) (*Store, error) {
	if st := r.cached(userID); st != nil {
		return st, nil
	}
	v, err, _ := r.group.Do(userID, func() (any, error) {
		if st := r.cached(userID); st != nil {
			return st, nil
		}
		initial := State{Snapshot: core.EmptySnapshot()}
		if r.load != nil {
			loaded, err := r.load(ctx, userID)
			if err != nil {
				return nil, fmt.Errorf("load snapshot for %s: %w", userID, err)
			}
			initial = loaded
		}

		r.mu.Lock()
		defer r.mu.Unlock()
		if st, ok := r.stores[userID]; ok {
			return st, nil
		}
		st := NewStore(userID, initial, r.commit)
		r.stores[userID] = st
		return st, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Store), nil
}

// Evict drops the cached store so the next Get reloads from the loader.
func (r *Registry) Evict(userID string) {
	r.mu.Lock()
	delete(r.stores, userID)
	r.mu.Unlock()
}

// Len reports how many user stores are cached.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stores)
}
