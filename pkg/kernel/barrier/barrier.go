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

// Package barrier implements reusable multi-round barriers.
//
// A barrier of capacity N blocks callers of Wait until N of them have
// arrived, then releases all N together and becomes ready for the next
// round. Rounds are pipelined: callers may be admitted to a round while
// earlier participants of the same round are still arriving, but no caller
// is admitted to round K+1 until every participant of round K has left.
//
// Each barrier is built from four pieces:
//
//   - fence, the admission gate. Callers close it to be admitted and reopen
//     it right away, except the caller that fills the round: from then on
//     the round holds the fence until its last participant leaves.
//   - wake, a counting semaphore on which participants sleep until the last
//     arrival of the round releases them.
//   - users, a gate counting callers inside Wait. Destroy closes it and
//     waits for it to drain.
//   - mu, a spin lock protecting the round counters.
package barrier

import (
	"errors"
	"time"

	"github.com/cenkalti/backoff"
	"gvisor.dev/barrier/pkg/context"
	"gvisor.dev/barrier/pkg/errors/linuxerr"
	"gvisor.dev/barrier/pkg/metric"
	"gvisor.dev/barrier/pkg/sync"
)

var (
	createdMetric     = metric.MustCreateNewUint64Metric("/barrier/created", "Number of barriers created.")
	destroyedMetric   = metric.MustCreateNewUint64Metric("/barrier/destroyed", "Number of barriers destroyed.")
	roundsMetric      = metric.MustCreateNewUint64Metric("/barrier/rounds", "Number of barrier rounds released, including forced releases.")
	forcedMetric      = metric.MustCreateNewUint64Metric("/barrier/forced_releases", "Number of rounds released by destroy on behalf of the missing participant.")
	interruptedMetric = metric.MustCreateNewUint64Metric("/barrier/waits_interrupted", "Number of waits aborted by an interruption.")
	refusedMetric     = metric.MustCreateNewUint64Metric("/barrier/waits_refused", "Number of waits refused because the barrier was being destroyed.")
)

// errRoundInFlight is returned by destroy attempts that found participants
// inside the barrier. It never escapes the package.
var errRoundInFlight = errors.New("barrier round in flight")

// Stats is a point-in-time view of a barrier's counters.
type Stats struct {
	// Arrived is the number of participants waiting at the rendezvous in the
	// current round.
	Arrived uint32

	// Admitted is the number of participants between admission and exit.
	Admitted uint32

	// Pending is the number of callers inside Wait.
	Pending uint32

	// ShuttingDown is true once destroy has started.
	ShuttingDown bool

	// Rounds is the number of rounds released so far.
	Rounds uint64
}

// Barrier is a reusable rendezvous point for a fixed number of participants.
type Barrier struct {
	// registry owning this barrier. Immutable.
	registry *Registry

	// id is the identifier assigned at creation. Immutable.
	id ID

	// capacity is the number of participants per round. Immutable.
	capacity uint32

	// owner is the thread group that created the barrier. Only its members
	// can find the barrier through Registry.FindByID. Immutable.
	owner int32

	// fence is the admission gate. It may be reopened by a participant other
	// than the one that closed it.
	fence *sync.Fence

	// wake releases participants sleeping at the rendezvous.
	wake *sync.Semaphore

	// users tracks callers inside Wait. It is closed by destroy once the
	// barrier is unreachable.
	users sync.Gate

	// mu protects all fields below.
	mu sync.SpinMutex

	// arrived is the number of participants of the current round waiting
	// at the rendezvous. 0 <= arrived <= admitted.
	arrived uint32

	// admitted is the number of participants between admission and exit.
	// 0 <= admitted <= capacity.
	admitted uint32

	// fenced is true while the current round holds the fence: from the
	// admission that brought admitted to capacity until admitted drops back
	// to zero, or until a participant withdraws from the full round.
	fenced bool

	// generation is incremented each time a round is released.
	generation uint64

	// dead is set by destroy. Once set, no new round may start.
	dead bool
}

// ID returns the barrier's identifier.
func (b *Barrier) ID() ID {
	return b.id
}

// Capacity returns the number of participants per round.
func (b *Barrier) Capacity() uint32 {
	return b.capacity
}

// Owner returns the thread group ID of the barrier's creator.
func (b *Barrier) Owner() int32 {
	return b.owner
}

// Stats returns the barrier's current counters.
func (b *Barrier) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		Arrived:      b.arrived,
		Admitted:     b.admitted,
		Pending:      b.users.Users(),
		ShuttingDown: b.dead,
		Rounds:       b.generation,
	}
}

// drainedLocked returns true if the barrier is being destroyed and nobody is
// waiting at the rendezvous. Such a barrier is invisible to lookups.
//
// Preconditions: b.mu must be locked.
func (b *Barrier) drainedLocked() bool {
	return b.dead && b.arrived == 0
}

// Wait blocks until capacity participants, including the caller, have called
// Wait on b, and then returns nil for all of them.
//
// It returns linuxerr.ErrInterrupted if ctx is cancelled before the caller's
// round is released; the caller then no longer counts toward the round. It
// returns linuxerr.EIDRM if b is being destroyed and no round is in flight
// for the caller to join.
func (b *Barrier) Wait(ctx context.Context) error {
	if !b.users.Enter() {
		refusedMetric.Increment()
		return linuxerr.EIDRM
	}
	defer b.users.Leave()

	if err := b.admit(ctx); err != nil {
		return err
	}
	return b.rendezvous(ctx)
}

// admit passes the caller through the fence into the current round.
func (b *Barrier) admit(ctx context.Context) error {
	if !b.fence.Lock(ctx) {
		ctx.Debugf("barrier %d: interrupted waiting for admission", b.id)
		interruptedMetric.Increment()
		return linuxerr.ErrInterrupted
	}

	b.mu.Lock()
	if b.dead && b.admitted == 0 {
		b.mu.Unlock()
		b.fence.Unlock()
		ctx.Debugf("barrier %d: shutting down, refusing new round", b.id)
		refusedMetric.Increment()
		return linuxerr.EIDRM
	}
	b.admitted++
	full := b.admitted == b.capacity
	if full {
		// Keep the fence closed until the round has fully drained.
		b.fenced = true
	}
	b.mu.Unlock()

	if !full {
		b.fence.Unlock()
	}
	return nil
}

// rendezvous waits for the round to fill, or fills and releases it.
//
// Preconditions: the caller has been admitted.
func (b *Barrier) rendezvous(ctx context.Context) error {
	b.mu.Lock()
	b.arrived++
	if b.arrived == b.capacity {
		b.releaseLocked(b.arrived - 1)
		reopen := b.exitLocked()
		b.mu.Unlock()
		if reopen {
			b.fence.Unlock()
		}
		ctx.Debugf("barrier %d: round complete, woke %d participants", b.id, b.capacity-1)
		return nil
	}
	gen := b.generation
	b.mu.Unlock()

	ctx.Debugf("barrier %d: going to sleep", b.id)
	if !b.wake.Down(ctx) {
		return b.abortRendezvous(ctx, gen)
	}
	ctx.Debugf("barrier %d: woke up", b.id)
	b.exit()
	return nil
}

// abortRendezvous handles an interruption of a participant sleeping in round
// gen. If the round was released in the meantime, the participant takes its
// wake-up and succeeds; otherwise it withdraws from the round.
func (b *Barrier) abortRendezvous(ctx context.Context, gen uint64) error {
	b.mu.Lock()
	if b.generation != gen {
		b.mu.Unlock()
		// Our wake-up was posted, and the round cannot end before we exit,
		// so nobody else can consume it.
		if !b.wake.TryDown() {
			b.wake.Down(context.Background())
		}
		b.exit()
		return nil
	}

	b.arrived--
	b.admitted--
	// A full round kept the fence closed; withdrawing makes room for a
	// replacement.
	reopen := b.fenced
	b.fenced = false
	b.mu.Unlock()
	if reopen {
		b.fence.Unlock()
	}
	ctx.Debugf("barrier %d: interrupted, withdrew from round", b.id)
	interruptedMetric.Increment()
	return linuxerr.ErrInterrupted
}

// releaseLocked wakes n sleeping participants and starts a new round.
//
// Preconditions: b.mu must be locked.
func (b *Barrier) releaseLocked(n uint32) {
	b.wake.Up(int(n))
	b.arrived = 0
	b.generation++
	roundsMetric.Increment()
}

// exit records that a released participant has left its round.
func (b *Barrier) exit() {
	b.mu.Lock()
	reopen := b.exitLocked()
	b.mu.Unlock()
	if reopen {
		b.fence.Unlock()
	}
}

// exitLocked records that a released participant has left its round, and
// returns true if the caller must reopen the fence.
//
// Preconditions: b.mu must be locked.
func (b *Barrier) exitLocked() bool {
	b.admitted--
	if b.admitted == 0 && b.fenced {
		b.fenced = false
		return true
	}
	return false
}

// releaseFence gives up the fence held by an interrupted destroy. Destroy
// only keeps the fence across attempts after a forced release; if
// participants of that round are still leaving, the fence is handed to the
// round and its last participant reopens it.
func (b *Barrier) releaseFence() {
	b.mu.Lock()
	handoff := b.admitted > 0
	if handoff {
		b.fenced = true
	}
	b.mu.Unlock()
	if !handoff {
		b.fence.Unlock()
	}
}

// newDestroyBackOff returns the polling policy used by destroy while
// participants are still inside the barrier.
func newDestroyBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Microsecond
	b.MaxInterval = 10 * time.Millisecond
	// Destroy converges once the participants make progress; only an
	// interruption stops it.
	b.MaxElapsedTime = 0
	return b
}

// destroy marks b as shutting down, waits for the current round to drain,
// removes b from its registry and waits for every caller of Wait to leave.
//
// If every participant of the current round but one is sleeping at the
// rendezvous, they are released: the missing participant is assumed to be
// the destroyer.
func (b *Barrier) destroy(ctx context.Context) error {
	held := false
	forced := false
	try := func() error {
		if !held {
			if !b.fence.Lock(ctx) {
				return backoff.Permanent(linuxerr.ErrInterrupted)
			}
			held = true
		}

		b.mu.Lock()
		b.dead = true
		switch {
		case b.admitted == 0:
			b.mu.Unlock()
			return nil
		case forced:
			// Participants of the forced round are still leaving. Nobody
			// can be admitted behind them while we hold the fence.
			b.mu.Unlock()
			return errRoundInFlight
		case b.arrived > 0 && b.arrived == b.capacity-1:
			b.releaseLocked(b.arrived)
			b.mu.Unlock()
			forced = true
			forcedMetric.Increment()
			ctx.Debugf("barrier %d: destroy released a round one participant short", b.id)
			return errRoundInFlight
		default:
			// Let the round make progress.
			b.mu.Unlock()
			b.fence.Unlock()
			held = false
			return errRoundInFlight
		}
	}

	if err := backoff.Retry(try, backoff.WithContext(newDestroyBackOff(), ctx)); err != nil {
		if held {
			b.releaseFence()
		}
		ctx.Infof("barrier %d: destroy interrupted", b.id)
		return linuxerr.ErrInterrupted
	}

	removed := b.registry.remove(b)
	b.fence.Unlock()
	if !removed {
		// Lost a race with a concurrent destroy.
		return linuxerr.EINVAL
	}

	// Callers that found b before it was removed may still be inside Wait;
	// they will be refused. Wait for them to leave.
	b.users.Close()
	destroyedMetric.Increment()
	ctx.Infof("barrier %d: destroyed", b.id)
	return nil
}
