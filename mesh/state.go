package mesh

import (
	"sync"
	"time"
)

// ResultStore holds the latest registration result for HTTP endpoints
type ResultStore struct {
	mu       sync.RWMutex
	result   *Result
	computed time.Time
}

// NewResultStore creates an empty store
func NewResultStore() *ResultStore {
	return &ResultStore{}
}

// Set replaces the stored result
func (s *ResultStore) Set(res *Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.result = res
	s.computed = time.Now()
}

// Get returns the stored result, or nil if none has been set. Callers must
// treat the result as read-only.
func (s *ResultStore) Get() *Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.result
}

// HasResult returns true once a result has been stored
func (s *ResultStore) HasResult() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.result != nil
}

// ComputedAt returns when the current result was stored
func (s *ResultStore) ComputedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.computed
}
