// Package ksync implements the kernel's semaphore/mutex layer (spec.md §4.10,
// §5) on top of golang.org/x/sync/semaphore.
package ksync

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// SemState is one of the four states a one-shot semaphore moves through
// (spec.md §5): uninited -> set -> preclear -> clear.
type SemState int

const (
	SemUninited SemState = iota
	SemSet
	SemPreclear
	SemClear
)

// Semaphore is a one-shot, reference-counted semaphore. Unlike a reusable
// counting semaphore it is waited on exactly once per waiter and torn down
// by whichever waiter happens to be last out of preclear, matching
// cryptlib's krnlSemaphore API.
type Semaphore struct {
	mu       sync.Mutex
	state    SemState
	refCount int
	sem      *semaphore.Weighted
}

// NewSemaphore creates an uninited semaphore.
func NewSemaphore() *Semaphore {
	return &Semaphore{state: SemUninited}
}

// Init transitions the semaphore from uninited to set, creating the
// underlying weighted semaphore with a single permit (binary semaphore
// semantics).
func (s *Semaphore) Init() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != SemUninited {
		return
	}
	s.sem = semaphore.NewWeighted(1)
	_ = s.sem.Acquire(context.Background(), 1) // starts held
	s.state = SemSet
}

// Wait blocks until the semaphore is posted or ctx is done, incrementing
// the reference count for the duration of the wait.
func (s *Semaphore) Wait(ctx context.Context) error {
	s.mu.Lock()
	if s.state == SemUninited {
		s.mu.Unlock()
		return nil
	}
	s.refCount++
	sem := s.sem
	s.mu.Unlock()

	err := sem.Acquire(ctx, 1)
	if err == nil {
		sem.Release(1)
	}

	s.mu.Lock()
	s.refCount--
	last := s.refCount == 0 && s.state == SemPreclear
	if last {
		s.state = SemClear
	}
	s.mu.Unlock()
	return err
}

// Post releases the semaphore, waking any waiters, and moves the state to
// preclear (straight to clear when nobody is waiting); the last waiter to
// observe a zero reference count finishes the teardown by moving the state
// to clear (spec.md §5).
func (s *Semaphore) Post() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != SemSet {
		return
	}
	s.sem.Release(1)
	if s.refCount == 0 {
		s.state = SemClear
	} else {
		s.state = SemPreclear
	}
}

// State reports the current state, for tests and diagnostics.
func (s *Semaphore) State() SemState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}
