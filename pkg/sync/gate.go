// Copyright 2026 The gVisor Authors.
//
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file or at
// https://developers.google.com/open-source/licenses/bsd.

package sync

import (
	"sync/atomic"
)

const (
	// gateClosed is the bit set in the gate's user count to indicate that
	// it has been closed. It is the MSB of the 32-bit field; the other 31
	// bits carry the actual count.
	gateClosed = 0x80000000
)

// Gate is a synchronization primitive that allows concurrent goroutines to
// "enter" it as long as it hasn't been closed yet. Once it's been closed,
// goroutines cannot enter it anymore, but are allowed to leave, and the closer
// will be informed when all goroutines have left.
//
// This is useful, for example, in cases when a goroutine is trying to clean up
// an object for which multiple goroutines have pointers. In such a case, users
// would be required to enter and leave the gates, and the cleaner would wait
// until all users are gone (and no new ones are allowed) before proceeding.
//
// Users:
//
//	if !g.Enter() {
//		// Gate is closed, we can't use the object.
//		return
//	}
//
//	// Do something with object.
//	[...]
//
//	g.Leave()
//
// Closer:
//
//	// Prevent new users from using the object, and wait for the existing
//	// ones to complete.
//	g.Close()
//
//	// Clean up the object.
//	[...]
//
// Close may be called by several goroutines; all of them return once the
// last user has left.
type Gate struct {
	userCount atomic.Uint32
	closeOnce Once
	done      chan struct{}
}

// Enter tries to enter the gate. It will succeed if it hasn't been closed yet,
// in which case the caller must eventually call Leave().
//
// This function is thread-safe.
func (g *Gate) Enter() bool {
	if g == nil {
		return false
	}

	for {
		v := g.userCount.Load()
		if v&gateClosed != 0 {
			return false
		}

		if g.userCount.CompareAndSwap(v, v+1) {
			return true
		}
	}
}

// Leave leaves the gate. This must only be called after a successful call to
// Enter(). If the gate has been closed and this is the last one inside the
// gate, it will notify the closer that the gate is done.
//
// This function is thread-safe.
func (g *Gate) Leave() {
	for {
		v := g.userCount.Load()
		if v&^gateClosed == 0 {
			panic("leaving a gate with zero usage count")
		}

		if g.userCount.CompareAndSwap(v, v-1) {
			if v == gateClosed+1 {
				close(g.done)
			}
			return
		}
	}
}

// Users returns the number of goroutines currently inside the gate.
func (g *Gate) Users() uint32 {
	return g.userCount.Load() &^ gateClosed
}

// Close closes the gate for entering, and waits until all goroutines [that are
// currently inside the gate] leave before returning.
func (g *Gate) Close() {
	g.closeOnce.Do(func() {
		// done must be visible to Leave before the closed bit is.
		g.done = make(chan struct{})
		for {
			v := g.userCount.Load()
			if g.userCount.CompareAndSwap(v, v|gateClosed) {
				if v == 0 {
					close(g.done)
				}
				return
			}
		}
	})
	<-g.done
}
