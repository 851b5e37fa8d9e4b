package worker

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Slot is the exclusion gate around the conversion critical section.
type Slot interface {
	Acquire(ctx context.Context) error
	Release()
}

// Scheduler is a single-slot gate. Waiters are admitted in arrival order:
// semaphore.Weighted queues blocked Acquire calls FIFO, and a waiter whose
// context ends leaves the queue without taking the slot.
type Scheduler struct {
	sem     *semaphore.Weighted
	waiting atomic.Int64
	held    atomic.Bool
}

func NewScheduler() *Scheduler {
	return &Scheduler{sem: semaphore.NewWeighted(1)}
}

// Acquire blocks until the slot is free or ctx is done. On error the slot is
// not held and Release must not be called.
func (s *Scheduler) Acquire(ctx context.Context) error {
	s.waiting.Add(1)
	defer s.waiting.Add(-1)

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	s.held.Store(true)
	return nil
}

// Release frees the slot. Releasing a slot that is not held panics.
func (s *Scheduler) Release() {
	s.held.Store(false)
	s.sem.Release(1)
}

// Busy reports whether a job is inside the critical section.
func (s *Scheduler) Busy() bool {
	return s.held.Load()
}

// Waiting is the number of jobs parked in Acquire.
func (s *Scheduler) Waiting() int64 {
	return s.waiting.Load()
}
