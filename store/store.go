// Package store holds the rendered result of every source for the current cycle.
package store

import (
	"sort"
	"sync"

	"feedstrip/models"
)

// FeedStore maps a source identity to its latest FeedRenderResult
type FeedStore struct {
	mu      sync.RWMutex
	results map[string]models.FeedRenderResult
}

func New() *FeedStore {
	return &FeedStore{results: make(map[string]models.FeedRenderResult)}
}

func (s *FeedStore) Set(identity string, result models.FeedRenderResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[identity] = result
}

// SetIf stores result only when admit accepts the identity. The check and
// the write happen under the same lock so a concurrent Clear or Evict can
// not interleave between them.
func (s *FeedStore) SetIf(identity string, result models.FeedRenderResult, admit func(identity string) bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if admit != nil && !admit(identity) {
		return false
	}
	s.results[identity] = result
	return true
}

func (s *FeedStore) Get(identity string) (models.FeedRenderResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result, ok := s.results[identity]
	return result, ok
}

func (s *FeedStore) Evict(identity string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.results, identity)
}

func (s *FeedStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = make(map[string]models.FeedRenderResult)
}

func (s *FeedStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.results)
}

// Keys returns the stored identities in lexical order
func (s *FeedStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.results))
	for k := range s.results {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
