// Package mailbox provides a single-slot, latest-wins handoff between one
// or more producers and a single consumer.
//
// Put never blocks: a value that was not taken yet is overwritten and
// counted as superseded. Take blocks until a value is present or the slot
// is closed.
package mailbox

import (
	"sync"
	"time"
)

// Stats is a point-in-time view of a slot's counters.
type Stats struct {
	Published        uint64    `json:"published"`
	Taken            uint64    `json:"taken"`
	Superseded       uint64    `json:"superseded"`
	ConsecutiveDrops uint64    `json:"consecutive_drops"`
	LastTakenAt      time.Time `json:"last_taken_at"`
}

// Slot holds at most one undelivered value.
type Slot[T any] struct {
	mu   sync.Mutex
	cond *sync.Cond

	item T
	full bool

	closed bool
	stats  Stats
}

// New returns an empty, open slot.
func New[T any]() *Slot[T] {
	s := &Slot[T]{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Put stores v, replacing any value the consumer has not taken yet.
// It reports false when the slot is closed and v was discarded.
func (s *Slot[T]) Put(v T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	if s.full {
		s.stats.Superseded++
		s.stats.ConsecutiveDrops++
	}
	s.item = v
	s.full = true
	s.stats.Published++
	s.cond.Signal()
	return true
}

// Take blocks until a value is available and returns it. After Close it
// returns the zero value and false; a value still pending at Close is
// discarded.
func (s *Slot[T]) Take() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for !s.full && !s.closed {
		s.cond.Wait()
	}
	var zero T
	if s.closed {
		return zero, false
	}

	v := s.item
	s.item = zero
	s.full = false
	s.stats.Taken++
	s.stats.ConsecutiveDrops = 0
	s.stats.LastTakenAt = time.Now()
	return v, true
}

// TryTake returns the pending value without blocking.
func (s *Slot[T]) TryTake() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	if !s.full || s.closed {
		return zero, false
	}
	v := s.item
	s.item = zero
	s.full = false
	s.stats.Taken++
	s.stats.ConsecutiveDrops = 0
	s.stats.LastTakenAt = time.Now()
	return v, true
}

// Close wakes a blocked Take and rejects later Puts. Safe to call more than
// once.
func (s *Slot[T]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	var zero T
	s.item = zero
	s.full = false
	s.cond.Broadcast()
}

// Closed reports whether Close was called.
func (s *Slot[T]) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Stats returns the current counters.
func (s *Slot[T]) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}
