// Package apisession holds per-client state for API handlers. Clients
// identify themselves with an opaque session ID; the same ID also
// routes document-grounded queries to the retrieval collaborator, so
// the store keys on whatever the client sends.
package apisession

import (
	"sync"
	"time"
)

type entry[T any] struct {
	value      *T
	lastAccess time.Time
}

// Store maps session IDs to one instance of T each, created on first
// access. Entries idle longer than the TTL are dropped by Cleanup,
// which the owner is expected to call periodically.
type Store[T any] struct {
	mu      sync.Mutex
	entries map[string]*entry[T]
	ttl     time.Duration
	newFn   func() *T
}

// New creates a Store with the given idle TTL and state factory.
func New[T any](ttl time.Duration, newFn func() *T) *Store[T] {
	return &Store[T]{
		entries: make(map[string]*entry[T]),
		ttl:     ttl,
		newFn:   newFn,
	}
}

// Get returns the state for the session, creating it if needed, and
// refreshes its last-access time.
func (s *Store[T]) Get(id string) *T {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		e = &entry[T]{value: s.newFn()}
		s.entries[id] = e
	}
	e.lastAccess = time.Now()
	return e.value
}

// Peek returns the state for the session without creating it.
func (s *Store[T]) Peek(id string) (*T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	return e.value, true
}

// Cleanup evicts sessions idle longer than the TTL and reports how many
// were dropped.
func (s *Store[T]) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-s.ttl)
	dropped := 0
	for id, e := range s.entries {
		if e.lastAccess.Before(cutoff) {
			delete(s.entries, id)
			dropped++
		}
	}
	return dropped
}

// Len returns the number of active sessions.
func (s *Store[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
