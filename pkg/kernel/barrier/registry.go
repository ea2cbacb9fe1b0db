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

package barrier

import (
	"gvisor.dev/barrier/pkg/context"
	"gvisor.dev/barrier/pkg/errors/linuxerr"
	"gvisor.dev/barrier/pkg/sync"
)

const (
	// MaxCapacity is the largest number of participants per round.
	MaxCapacity = 1 << 16

	// DefaultMaxBarriers is the default limit on the number of live
	// barriers in a registry.
	DefaultMaxBarriers = 1 << 12
)

// ID identifies a barrier within a registry. IDs are never reused.
type ID uint32

// Registry maps IDs to live barriers.
type Registry struct {
	// idMu protects the ID allocator below. It is never held together with
	// mu.
	idMu sync.Mutex

	// nextID is the next ID to hand out.
	nextID ID

	// idsExhausted is set once every ID has been handed out.
	idsExhausted bool

	// maxBarriers is the limit on len(barriers). Immutable.
	maxBarriers int

	// mu protects barriers.
	mu sync.Mutex

	// barriers holds all live barriers, including those being destroyed.
	barriers map[ID]*Barrier
}

// NewRegistry creates a new registry holding at most maxBarriers barriers. A
// non-positive maxBarriers selects DefaultMaxBarriers.
func NewRegistry(maxBarriers int) *Registry {
	if maxBarriers <= 0 {
		maxBarriers = DefaultMaxBarriers
	}
	return &Registry{
		maxBarriers: maxBarriers,
		barriers:    make(map[ID]*Barrier),
	}
}

// allocateID returns a fresh ID, or false if none are left.
func (r *Registry) allocateID() (ID, bool) {
	r.idMu.Lock()
	defer r.idMu.Unlock()
	if r.idsExhausted {
		return 0, false
	}
	id := r.nextID
	r.nextID++
	if r.nextID == 0 {
		r.idsExhausted = true
	}
	return id, true
}

// scopeOf returns the thread group on whose behalf ctx operates, or 0 for
// callers outside any thread group.
func scopeOf(ctx context.Context) int32 {
	tgid, _ := context.ThreadGroupIDFromContext(ctx)
	return tgid
}

// Create creates a barrier for capacity participants per round and returns
// its ID. The barrier is owned by the calling thread group.
func (r *Registry) Create(ctx context.Context, capacity uint32) (ID, error) {
	if capacity == 0 || capacity > MaxCapacity {
		return 0, linuxerr.EINVAL
	}

	r.mu.Lock()
	full := len(r.barriers) >= r.maxBarriers
	r.mu.Unlock()
	if full {
		return 0, linuxerr.ENOMEM
	}

	id, ok := r.allocateID()
	if !ok {
		return 0, linuxerr.ENOSPC
	}
	b := &Barrier{
		registry: r,
		id:       id,
		capacity: capacity,
		owner:    scopeOf(ctx),
		fence:    sync.NewFence(),
		wake:     sync.NewSemaphore(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Re-check; another creator may have filled the registry meanwhile.
	if len(r.barriers) >= r.maxBarriers {
		return 0, linuxerr.ENOMEM
	}
	r.barriers[id] = b
	createdMetric.Increment()
	ctx.Infof("barrier %d: created with capacity %d for thread group %d", id, capacity, b.owner)
	return id, nil
}

// FindByID returns the barrier with the given ID if the caller's thread group
// owns it and it is still accepting participants, or nil otherwise.
//
// A barrier being destroyed stays visible while participants are waiting at
// its rendezvous, so that late arrivals can complete the round.
func (r *Registry) FindByID(ctx context.Context, id ID) *Barrier {
	scope := scopeOf(ctx)
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.barriers[id]
	if !ok || b.owner != scope {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.drainedLocked() {
		return nil
	}
	return b
}

// find returns the barrier with the given ID regardless of owner or state.
func (r *Registry) find(id ID) *Barrier {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.barriers[id]
}

// remove unlinks b from the registry and reports whether it was still
// linked.
func (r *Registry) remove(b *Barrier) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.barriers[b.id] != b {
		return false
	}
	delete(r.barriers, b.id)
	return true
}

// Count returns the number of live barriers.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.barriers)
}

// Wait waits at the barrier with the given ID. See Barrier.Wait.
//
// It returns linuxerr.EINVAL if no barrier visible to the caller has that
// ID.
func (r *Registry) Wait(ctx context.Context, id ID) error {
	b := r.FindByID(ctx, id)
	if b == nil {
		return linuxerr.EINVAL
	}
	return b.Wait(ctx)
}

// Destroy destroys the barrier with the given ID. It blocks until the
// barrier's current round has drained and every caller of Wait has left.
//
// It returns linuxerr.EINVAL if no barrier has that ID, including when a
// concurrent Destroy of the same barrier won, and linuxerr.ErrInterrupted if
// ctx is cancelled first. An interrupted Destroy leaves the barrier shutting
// down; it can be retried.
func (r *Registry) Destroy(ctx context.Context, id ID) error {
	b := r.find(id)
	if b == nil {
		return linuxerr.EINVAL
	}
	return b.destroy(ctx)
}
