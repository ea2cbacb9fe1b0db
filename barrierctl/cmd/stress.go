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
	"io"
	"math/rand"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/subcommands"
	"golang.org/x/sync/errgroup"
	"gvisor.dev/barrier/barrierctl/config"
	"gvisor.dev/barrier/pkg/arch"
	"gvisor.dev/barrier/pkg/errors/linuxerr"
	"gvisor.dev/barrier/pkg/kernel"
	"gvisor.dev/barrier/pkg/kernel/barrier"
	"gvisor.dev/barrier/pkg/log"
	"gvisor.dev/barrier/pkg/syscalls/linux"
)

// Stress implements subcommands.Command for the "stress" command.
type Stress struct {
	barriers       int
	capacity       int
	workers        int
	duration       time.Duration
	interruptEvery time.Duration
}

// Name implements subcommands.Command.Name.
func (*Stress) Name() string {
	return "stress"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Stress) Synopsis() string {
	return "wait on barriers while interrupting waiters at random"
}

// Usage implements subcommands.Command.Usage.
func (*Stress) Usage() string {
	return `stress [flags] - stress barriers with random interrupts.

Workers wait on their barrier in a loop while random workers are interrupted.
When the run ends, every barrier must have released exactly capacity
successful waits per round.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (s *Stress) SetFlags(f *flag.FlagSet) {
	f.IntVar(&s.barriers, "barriers", 4, "number of barriers, each in its own thread group.")
	f.IntVar(&s.capacity, "capacity", 4, "capacity of each barrier.")
	f.IntVar(&s.workers, "workers", 8, "number of workers per barrier.")
	f.DurationVar(&s.duration, "duration", 2*time.Second, "how long to run.")
	f.DurationVar(&s.interruptEvery, "interrupt-every", time.Millisecond, "average time between interrupts; 0 disables them.")
}

func (s *Stress) validate() error {
	if s.barriers <= 0 || s.capacity <= 0 || s.workers <= 0 {
		return fmt.Errorf("barriers, capacity and workers must be positive, got %d, %d and %d", s.barriers, s.capacity, s.workers)
	}
	if s.duration <= 0 {
		return fmt.Errorf("duration must be positive, got %v", s.duration)
	}
	if s.interruptEvery < 0 {
		return fmt.Errorf("interrupt-every must not be negative, got %v", s.interruptEvery)
	}
	return nil
}

// Execute implements subcommands.Command.Execute.
func (s *Stress) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)
	if err := s.validate(); err != nil {
		Fatalf("%v", err)
	}

	if err := s.run(ctx, conf, os.Stdout); err != nil {
		Fatalf("stress failed: %v", err)
	}
	if err := writeMetrics(conf, os.Stdout); err != nil {
		Fatalf("error writing metrics: %v", err)
	}
	return subcommands.ExitSuccess
}

// stressBarrier tracks one barrier under stress.
type stressBarrier struct {
	setup       *kernel.Task
	id          uintptr
	tasks       []*kernel.Task
	succeeded   atomic.Uint64
	interrupted atomic.Uint64
}

func (s *Stress) run(ctx context.Context, conf *config.Config, out io.Writer) error {
	k, err := newKernel(conf)
	if err != nil {
		return err
	}
	progress := log.BasicRateLimitedLogger(time.Second)

	var all []*kernel.Task
	barriers := make([]*stressBarrier, s.barriers)
	for i := range barriers {
		tg := k.NewThreadGroup()
		sb := &stressBarrier{setup: tg.NewTask(nil)}
		id, err := sb.setup.Syscall(linux.SysBarrierInit, arch.Args(uintptr(s.capacity)))
		if err != nil {
			return fmt.Errorf("barrier_init(%d): %w", s.capacity, err)
		}
		sb.id = id
		for w := 0; w < s.workers; w++ {
			sb.tasks = append(sb.tasks, tg.NewTask(progress))
		}
		all = append(all, sb.tasks...)
		barriers[i] = sb
	}

	runCtx, cancel := context.WithTimeout(ctx, s.duration)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)
	for _, sb := range barriers {
		sb := sb
		for _, t := range sb.tasks {
			t := t
			g.Go(func() error {
				for gctx.Err() == nil {
					_, err := t.Syscall(linux.SysBarrierWait, arch.Args(sb.id))
					switch {
					case err == nil:
						sb.succeeded.Add(1)
						t.Debugf("Passed barrier %d", sb.id)
					case linuxerr.Equals(linuxerr.EINTR, err):
						sb.interrupted.Add(1)
					default:
						return fmt.Errorf("barrier_wait(%d): %w", sb.id, err)
					}
				}
				return nil
			})
		}
	}
	if s.interruptEvery > 0 {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-time.After(time.Duration(rand.Int63n(int64(2 * s.interruptEvery)))):
					all[rand.Intn(len(all))].Interrupt()
				}
			}
		})
	}

	// Once the run is over, workers stuck in an incomplete round must be
	// interrupted for them to notice.
	done := make(chan struct{})
	go func() {
		<-gctx.Done()
		for {
			select {
			case <-done:
				return
			case <-time.After(time.Millisecond):
				for _, t := range all {
					t.Interrupt()
				}
			}
		}
	}()
	err = g.Wait()
	close(done)
	if err != nil {
		return err
	}

	for _, sb := range barriers {
		b := k.Barriers().FindByID(sb.setup, barrier.ID(sb.id))
		if b == nil {
			return fmt.Errorf("barrier %d disappeared", sb.id)
		}
		stats := b.Stats()
		fmt.Fprintf(out, "barrier %d: %d rounds, %d successful waits, %d interrupted waits\n",
			sb.id, stats.Rounds, sb.succeeded.Load(), sb.interrupted.Load())
		if want := stats.Rounds * uint64(s.capacity); sb.succeeded.Load() != want {
			return fmt.Errorf("barrier %d: %d successful waits over %d rounds, want %d", sb.id, sb.succeeded.Load(), stats.Rounds, want)
		}
		if _, err := sb.setup.Syscall(linux.SysBarrierDestroy, arch.Args(sb.id)); err != nil {
			return fmt.Errorf("barrier_destroy(%d): %w", sb.id, err)
		}
	}
	return nil
}
