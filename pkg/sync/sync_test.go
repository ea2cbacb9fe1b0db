// Copyright 2026 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sync

import (
	"context"
	"testing"
	"time"
)

func TestSpinMutex(t *testing.T) {
	var (
		m     SpinMutex
		wg    WaitGroup
		count int
	)
	const goroutines, iters = 8, 1000
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < iters; j++ {
				m.Lock()
				count++
				m.Unlock()
			}
		}()
	}
	wg.Wait()
	if count != goroutines*iters {
		t.Errorf("count = %d, want %d", count, goroutines*iters)
	}

	m.Lock()
	if m.TryLock() {
		t.Fatalf("TryLock succeeded on a locked SpinMutex")
	}
	m.Unlock()
	if !m.TryLock() {
		t.Fatalf("TryLock failed on an unlocked SpinMutex")
	}
	m.Unlock()
}

func TestSpinMutexUnlockUnlocked(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("Unlock of unlocked SpinMutex did not panic")
		}
	}()
	var m SpinMutex
	m.Unlock()
}

// lockWithin tries to close f for at most d.
func lockWithin(f *Fence, d time.Duration) bool {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return f.Lock(ctx)
}

func TestFenceForeignUnlock(t *testing.T) {
	f := NewFence()
	if !f.Lock(context.Background()) {
		t.Fatalf("Lock of open fence failed")
	}
	if lockWithin(f, 10*time.Millisecond) {
		t.Fatalf("Lock of closed fence succeeded")
	}

	locked := make(chan struct{})
	go func() {
		if f.Lock(context.Background()) {
			close(locked)
		}
	}()

	// Reopen from a goroutine that did not close it.
	go f.Unlock()

	select {
	case <-locked:
	case <-time.After(5 * time.Second):
		t.Fatalf("Lock did not succeed after foreign Unlock")
	}
}

func TestFenceLockInterrupted(t *testing.T) {
	f := NewFence()
	if !f.Lock(context.Background()) {
		t.Fatalf("Lock of open fence failed")
	}
	if lockWithin(f, 10*time.Millisecond) {
		t.Fatalf("Lock of closed fence succeeded")
	}
	f.Unlock()
	if !lockWithin(f, 5*time.Second) {
		t.Fatalf("interrupted Lock left the fence closed")
	}
}

func TestSemaphore(t *testing.T) {
	s := NewSemaphore()
	if s.TryDown() {
		t.Fatalf("TryDown on empty semaphore succeeded")
	}

	const waiters = 5
	woken := make(chan struct{}, waiters)
	for i := 0; i < waiters; i++ {
		go func() {
			if s.Down(context.Background()) {
				woken <- struct{}{}
			}
		}()
	}
	s.Up(waiters - 1)
	for i := 0; i < waiters-1; i++ {
		select {
		case <-woken:
		case <-time.After(5 * time.Second):
			t.Fatalf("only %d of %d waiters woken", i, waiters-1)
		}
	}
	select {
	case <-woken:
		t.Fatalf("more waiters woken than Up allowed")
	case <-time.After(20 * time.Millisecond):
	}
	s.Up(1)
	<-woken
}

func TestSemaphoreDownInterrupted(t *testing.T) {
	s := NewSemaphore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if s.Down(ctx) {
		t.Fatalf("Down with cancelled context succeeded")
	}
	s.Up(1)
	if !s.TryDown() {
		t.Fatalf("TryDown after Up failed")
	}
}
