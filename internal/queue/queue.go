// Package queue holds waiting customers in strict arrival order.
package queue

import (
	"errors"
	"sync"
	"time"

	"warm-transfer-service/internal/models"
)

// ErrAlreadyQueued is returned when an identity enqueues while it is
// still waiting.
var ErrAlreadyQueued = errors.New("identity already queued")

// Store is a FIFO queue of waiting customers. All operations are safe
// for concurrent use. Position scans are O(n); expected queue sizes
// are tens of entries.
type Store struct {
	mu      sync.Mutex
	entries []*models.QueueEntry
	now     func() time.Time
}

// New creates an empty queue store.
func New() *Store {
	return &Store{now: time.Now}
}

// Enqueue appends a waiting entry and returns its 1-based position.
func (s *Store) Enqueue(identity, category string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.entries {
		if e.Identity == identity {
			return 0, ErrAlreadyQueued
		}
	}

	s.entries = append(s.entries, &models.QueueEntry{
		Identity:   identity,
		Category:   category,
		EnqueuedAt: s.now(),
		Status:     models.QueueWaiting,
	})
	return len(s.entries), nil
}

// PositionOf returns the 1-based rank of identity among waiting
// entries, or false if the identity is not queued.
func (s *Store) PositionOf(identity string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, e := range s.entries {
		if e.Identity == identity {
			return i + 1, true
		}
	}
	return 0, false
}

// PopFront removes and returns the oldest waiting entry.
func (s *Store) PopFront() (*models.QueueEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.entries) == 0 {
		return nil, false
	}
	e := s.entries[0]
	s.entries = s.entries[1:]
	e.Status = models.QueueAssigned
	return e, true
}

// Requeue puts a popped entry back at the head of the queue, restoring
// its waiting status. Used when an assignment falls through after the
// pop.
func (s *Store) Requeue(e *models.QueueEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e.Status = models.QueueWaiting
	s.entries = append([]*models.QueueEntry{e}, s.entries...)
}

// Remove deletes identity from the queue without disturbing the
// relative order of the remaining entries. Idempotent.
func (s *Store) Remove(identity string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, e := range s.entries {
		if e.Identity == identity {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return
		}
	}
}

// Len returns the number of waiting entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
