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

package cmd

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/google/subcommands"
	"golang.org/x/sync/errgroup"
	"gvisor.dev/barrier/barrierctl/config"
	"gvisor.dev/barrier/pkg/arch"
	"gvisor.dev/barrier/pkg/errors/linuxerr"
	"gvisor.dev/barrier/pkg/kernel"
	"gvisor.dev/barrier/pkg/log"
	"gvisor.dev/barrier/pkg/syscalls/linux"
)

// Demo implements subcommands.Command for the "demo" command.
type Demo struct {
	scopes        int
	smallCapacity int
	largeCapacity int
	rounds        int
	destroyRound  int
	avgSleep      time.Duration
}

// Name implements subcommands.Command.Name.
func (*Demo) Name() string {
	return "demo"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Demo) Synopsis() string {
	return "run workers through a small and a large barrier in several thread groups"
}

// Usage implements subcommands.Command.Usage.
func (*Demo) Usage() string {
	return `demo [flags] - run the barrier demo.

Each thread group creates a small and a large barrier and starts one worker
per participant. Every worker waits on its barrier once per round, sleeping
a random time between rounds. The first worker of each large barrier
destroys it after the destroy round, which ends the rounds of its peers.
Finally each thread group destroys both of its barriers; destroying the
large barrier a second time is expected to fail with EINVAL.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (d *Demo) SetFlags(f *flag.FlagSet) {
	f.IntVar(&d.scopes, "scopes", 2, "number of thread groups.")
	f.IntVar(&d.smallCapacity, "small", 5, "capacity of the small barrier.")
	f.IntVar(&d.largeCapacity, "large", 20, "capacity of the large barrier.")
	f.IntVar(&d.rounds, "rounds", 100, "number of rounds each worker waits for.")
	f.IntVar(&d.destroyRound, "destroy-round", 50, "round after which the large barrier is destroyed.")
	f.DurationVar(&d.avgSleep, "avg-sleep", 100*time.Microsecond, "average sleep between rounds.")
}

func (d *Demo) validate() error {
	if d.scopes <= 0 {
		return fmt.Errorf("scopes must be positive, got %d", d.scopes)
	}
	if d.smallCapacity <= 0 || d.largeCapacity <= 0 {
		return fmt.Errorf("capacities must be positive, got %d and %d", d.smallCapacity, d.largeCapacity)
	}
	if d.rounds <= 0 {
		return fmt.Errorf("rounds must be positive, got %d", d.rounds)
	}
	if d.destroyRound < 0 || d.destroyRound >= d.rounds {
		return fmt.Errorf("destroy-round must be in [0, %d), got %d", d.rounds, d.destroyRound)
	}
	if d.avgSleep < 0 {
		return fmt.Errorf("avg-sleep must not be negative, got %v", d.avgSleep)
	}
	return nil
}

// Execute implements subcommands.Command.Execute.
func (d *Demo) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)
	if err := d.validate(); err != nil {
		Fatalf("%v", err)
	}

	if err := d.run(conf); err != nil {
		Fatalf("demo failed: %v", err)
	}
	if err := writeMetrics(conf, os.Stdout); err != nil {
		Fatalf("error writing metrics: %v", err)
	}
	return subcommands.ExitSuccess
}

func (d *Demo) run(conf *config.Config) error {
	k, err := newKernel(conf)
	if err != nil {
		return err
	}
	var g errgroup.Group
	for scope := 1; scope <= d.scopes; scope++ {
		scope := scope
		g.Go(func() error {
			return d.runScope(conf, k, scope)
		})
	}
	return g.Wait()
}

// demoBarrier is a barrier of the demo and the logger of its workers.
type demoBarrier struct {
	id       uintptr
	capacity int
	logger   log.Logger
}

// runScope runs the workers of one thread group.
func (d *Demo) runScope(conf *config.Config, k *kernel.Kernel, scope int) error {
	tg := k.NewThreadGroup()
	setup := tg.NewTask(nil)

	fallback := log.BasicRateLimitedLogger(100 * time.Millisecond)
	var barriers []demoBarrier
	for _, capacity := range []int{d.smallCapacity, d.largeCapacity} {
		logger, closer, err := activityLogger(conf, scope, uint32(capacity), fallback)
		if err != nil {
			return err
		}
		defer closer.Close()

		id, err := setup.Syscall(linux.SysBarrierInit, arch.Args(uintptr(capacity)))
		if err != nil {
			return fmt.Errorf("thread group %d: barrier_init(%d): %w", tg.ID(), capacity, err)
		}
		log.Infof("Thread group %d: barrier %d has capacity %d", tg.ID(), id, capacity)
		barriers = append(barriers, demoBarrier{id: id, capacity: capacity, logger: logger})
	}
	small, large := barriers[0], barriers[1]

	var g errgroup.Group
	worker := 0
	for _, b := range barriers {
		b := b
		for i := 0; i < b.capacity; i++ {
			i := i
			no := worker
			worker++
			t := tg.NewTask(b.logger)
			t.Infof("Created worker %d, barrier %d", no, b.id)
			g.Go(func() error {
				return d.runWorker(t, no, b.id, b.id == large.id, i == 0 && b.id == large.id)
			})
		}
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if _, err := setup.Syscall(linux.SysBarrierDestroy, arch.Args(small.id)); err != nil {
		return fmt.Errorf("thread group %d: barrier_destroy(%d): %w", tg.ID(), small.id, err)
	}
	// The large barrier was destroyed by one of its workers.
	if _, err := setup.Syscall(linux.SysBarrierDestroy, arch.Args(large.id)); !linuxerr.Equals(linuxerr.EINVAL, err) {
		return fmt.Errorf("thread group %d: second barrier_destroy(%d) = %v, want %v", tg.ID(), large.id, err, linuxerr.EINVAL)
	}
	log.Infof("Thread group %d: done, barrier %d was already destroyed", tg.ID(), large.id)
	return nil
}

// runWorker waits on barrier id once per round. If the barrier may be
// destroyed, failing to wait on it ends the worker successfully.
func (d *Demo) runWorker(t *kernel.Task, no int, id uintptr, mayBeDestroyed, destroyer bool) error {
	for i := 0; i < d.rounds; i++ {
		t.Infof("Worker %d going to sleep, barrier %d, round %d", no, id, i)
		if _, err := t.Syscall(linux.SysBarrierWait, arch.Args(id)); err != nil {
			t.Infof("Worker %d wait failed: %v", no, err)
			if mayBeDestroyed && (linuxerr.Equals(linuxerr.EINVAL, err) || linuxerr.Equals(linuxerr.EIDRM, err)) {
				return nil
			}
			return fmt.Errorf("worker %d: barrier_wait(%d): %w", no, id, err)
		}
		t.Infof("Worker %d woke up", no)

		if destroyer && i == d.destroyRound {
			t.Infof("Destroyed by worker %d", no)
			if _, err := t.Syscall(linux.SysBarrierDestroy, arch.Args(id)); err != nil {
				return fmt.Errorf("worker %d: barrier_destroy(%d): %w", no, id, err)
			}
		}
		if d.avgSleep > 0 {
			time.Sleep(time.Duration(rand.Int63n(int64(2 * d.avgSleep))))
		}
	}
	return nil
}
