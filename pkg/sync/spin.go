// Copyright 2026 The gVisor Authors.
//
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file or at
// https://developers.google.com/open-source/licenses/bsd.

package sync

import (
	"runtime"
	"sync/atomic"
)

// activeSpins is the number of busy attempts SpinMutex.Lock makes before it
// starts yielding the processor between attempts.
const activeSpins = 4

// SpinMutex is a mutual exclusion lock for critical sections that only touch
// a few words of memory and never block. Lock never parks the goroutine: it
// busy-waits, yielding the processor once the lock has stayed contended for
// a few attempts.
//
// The zero value is an unlocked SpinMutex. A SpinMutex must not be copied
// after first use.
type SpinMutex struct {
	v atomic.Uint32
}

// Lock locks m.
func (m *SpinMutex) Lock() {
	for i := 0; ; i++ {
		if m.TryLock() {
			return
		}
		if i >= activeSpins {
			runtime.Gosched()
		}
	}
}

// TryLock tries to lock m and reports whether it succeeded.
func (m *SpinMutex) TryLock() bool {
	return m.v.Load() == 0 && m.v.CompareAndSwap(0, 1)
}

// Unlock unlocks m.
//
// Preconditions: m is locked.
func (m *SpinMutex) Unlock() {
	if m.v.Swap(0) == 0 {
		panic("unlock of unlocked SpinMutex")
	}
}
