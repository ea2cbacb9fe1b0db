// Copyright 2026 The gVisor Authors.
//
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file or at
// https://developers.google.com/open-source/licenses/bsd.

package sync

import (
	"context"
	"math"

	"golang.org/x/sync/semaphore"
)

// semaphoreMax bounds the number of outstanding Up calls on a Semaphore.
const semaphoreMax = math.MaxInt32

// Semaphore is a counting semaphore whose count starts at zero. Up adds to
// the count and wakes waiters; Down waits for the count to be positive and
// decrements it. Waiters are served in FIFO order.
//
// The zero value is not usable; use NewSemaphore.
type Semaphore struct {
	sem *semaphore.Weighted
}

// NewSemaphore returns a Semaphore with a count of zero.
func NewSemaphore() *Semaphore {
	s := semaphore.NewWeighted(semaphoreMax)
	// The count is the weight not held by us; start by holding all of it.
	if !s.TryAcquire(semaphoreMax) {
		panic("fresh semaphore is not empty")
	}
	return &Semaphore{sem: s}
}

// Up increments the count by n, waking up to n waiters.
func (s *Semaphore) Up(n int) {
	if n == 0 {
		return
	}
	s.sem.Release(int64(n))
}

// Down waits for the count to be positive and decrements it. It returns
// false, leaving the count untouched, if ctx is done first.
func (s *Semaphore) Down(ctx context.Context) bool {
	return s.sem.Acquire(ctx, 1) == nil
}

// TryDown decrements the count if it is positive and no goroutine is
// waiting in Down, and reports whether it did.
func (s *Semaphore) TryDown() bool {
	return s.sem.TryAcquire(1)
}
