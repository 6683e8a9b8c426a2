// ABOUTME: Thread-safe TTL set of retired turn/session identifiers.
// ABOUTME: Responses correlated to a retired identifier are discarded, never applied.

package stale

import (
	"container/list"
	"sync"
	"time"
)

// setEntry stores the timestamp and list element for a retired key.
type setEntry struct {
	timestamp time.Time
	element   *list.Element
}

// Set tracks identifiers of superseded turns and status sessions. A late
// response or narration event tagged with a retired identifier must never
// mutate client state. Entries expire after a TTL and the set is size-capped,
// with a doubly-linked list maintaining insertion order for O(1) eviction.
type Set struct {
	mu      sync.RWMutex
	retired map[string]*setEntry
	order   *list.List // keys in retirement order (oldest at front)
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	closed  bool
}

// New creates a retired-identifier set with the given TTL and maximum size.
// A background goroutine periodically removes expired entries.
func New(ttl time.Duration, maxSize int) *Set {
	s := &Set{
		retired: make(map[string]*setEntry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	go s.cleanup()
	return s
}

// Retire records an identifier as superseded. Retiring an already-retired
// key refreshes its TTL. Empty keys are ignored.
func (s *Set) Retire(key string) {
	if key == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if entry, exists := s.retired[key]; exists {
		entry.timestamp = now
		s.order.MoveToBack(entry.element)
		return
	}

	if len(s.retired) >= s.maxSize {
		s.evictOldest()
	}

	elem := s.order.PushBack(key)
	s.retired[key] = &setEntry{timestamp: now, element: elem}
}

// Retired reports whether the identifier has been superseded and is still
// within the TTL window.
func (s *Set) Retired(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.retired[key]
	if !ok {
		return false
	}
	return time.Since(entry.timestamp) < s.ttl
}

// evictOldest removes the oldest entry. Must be called with mu held.
func (s *Set) evictOldest() {
	front := s.order.Front()
	if front == nil {
		return
	}
	key, _ := front.Value.(string)
	s.order.Remove(front)
	delete(s.retired, key)
}

// cleanup runs in a background goroutine, periodically removing expired entries.
func (s *Set) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runCleanup()
		case <-s.done:
			return
		}
	}
}

// runCleanup removes all expired entries from the set.
func (s *Set) runCleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for key, entry := range s.retired {
		if now.Sub(entry.timestamp) > s.ttl {
			s.order.Remove(entry.element)
			delete(s.retired, key)
		}
	}
}

// Close stops the background cleanup goroutine. Safe to call multiple times.
func (s *Set) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		close(s.done)
		s.closed = true
	}
}
