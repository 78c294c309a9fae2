// Package memory keeps exported summaries in process memory, for
// DATA_BACKEND=memory runs and tests.
package memory

import (
	"context"
	"slices"
	"sync"

	"finny/internal/finance"
	"finny/internal/sheets"
)

var _ sheets.AnnualExporter = (*Store)(nil)

type exportKey struct {
	userID string
	year   int
}

type Store struct {
	mu      sync.Mutex
	exports map[exportKey]finance.AnnualSummary
	count   int
	err     error
}

func New() *Store {
	return &Store{exports: make(map[exportKey]finance.AnnualSummary)}
}

// FailWith makes every later export return err. A nil err clears it.
func (s *Store) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// ExportAnnual stores the latest summary of userID and year.
func (s *Store) ExportAnnual(_ context.Context, userID string, sum finance.AnnualSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.exports[exportKey{userID, sum.Year}] = sum
	s.count++
	return nil
}

// Get returns the last summary exported for userID and year.
func (s *Store) Get(userID string, year int) (finance.AnnualSummary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum, ok := s.exports[exportKey{userID, year}]
	return sum, ok
}

// Count is the number of successful exports.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Users lists the users with at least one export, sorted.
func (s *Store) Users() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for k := range s.exports {
		if !slices.Contains(out, k.userID) {
			out = append(out, k.userID)
		}
	}
	slices.Sort(out)
	return out
}
