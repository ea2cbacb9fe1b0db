// Copyright 2026 The gVisor Authors.
//
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file or at
// https://developers.google.com/open-source/licenses/bsd.

package sync

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Fence is a binary gate. Unlike Mutex, a closed Fence may be reopened by a
// goroutine other than the one that closed it, and Lock may be aborted.
//
// The zero value is not usable; use NewFence.
type Fence struct {
	sem *semaphore.Weighted
}

// NewFence returns an open Fence.
func NewFence() *Fence {
	return &Fence{sem: semaphore.NewWeighted(1)}
}

// Lock closes the fence, waiting for it to be opened first if it is already
// closed. It returns false, leaving the fence untouched, if ctx is done
// before the fence could be closed.
func (f *Fence) Lock(ctx context.Context) bool {
	return f.sem.Acquire(ctx, 1) == nil
}

// Unlock opens the fence. It may be called by any goroutine.
//
// Preconditions: the fence is closed.
func (f *Fence) Unlock() {
	f.sem.Release(1)
}
