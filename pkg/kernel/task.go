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

package kernel

import (
	"context"
	"time"

	"gvisor.dev/barrier/pkg/arch"
	bcontext "gvisor.dev/barrier/pkg/context"
	"gvisor.dev/barrier/pkg/errors/linuxerr"
	"gvisor.dev/barrier/pkg/log"
	"gvisor.dev/barrier/pkg/sync"
)

// Task represents a thread of execution issuing syscalls.
//
// All methods except Interrupt must be called from the task goroutine, the
// single goroutine that issues the task's syscalls. Task implements
// context.Context for its in-flight syscall; interrupting the task cancels
// that context.
type Task struct {
	// tg is the task's thread group. Immutable.
	tg *ThreadGroup

	// tid is the task's ID within tg. Immutable.
	tid int32

	// logger receives the task's log messages. Immutable.
	logger log.Logger

	// syscallCtx is the context of the in-flight syscall, or
	// context.Background() between syscalls. Only accessed by the task
	// goroutine.
	syscallCtx context.Context

	// mu protects the fields below.
	mu sync.Mutex

	// cancel aborts the in-flight syscall. It is nil between syscalls.
	cancel context.CancelFunc

	// interruptPending is set by Interrupt between syscalls. The next
	// syscall starts interrupted.
	interruptPending bool
}

var _ bcontext.Context = (*Task)(nil)

func newTask(tg *ThreadGroup, tid int32, logger log.Logger) *Task {
	return &Task{
		tg:         tg,
		tid:        tid,
		logger:     logger,
		syscallCtx: context.Background(),
	}
}

// ThreadGroup returns the task's thread group.
func (t *Task) ThreadGroup() *ThreadGroup {
	return t.tg
}

// Kernel returns the kernel the task belongs to.
func (t *Task) Kernel() *Kernel {
	return t.tg.k
}

// ThreadID returns the task's ID within its thread group.
func (t *Task) ThreadID() int32 {
	return t.tid
}

// Syscall executes syscall sysno with the given arguments and returns its
// result. Internal errors are translated to errnos; in particular, an
// interrupted syscall fails with linuxerr.EINTR.
func (t *Task) Syscall(sysno uintptr, args arch.SyscallArguments) (uintptr, error) {
	fn := t.Kernel().syscalls.Lookup(sysno)
	if fn == nil {
		t.Debugf("Unknown syscall %d", sysno)
		return 0, linuxerr.ENOSYS
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.mu.Lock()
	if t.interruptPending {
		t.interruptPending = false
		cancel()
	}
	t.cancel = cancel
	t.mu.Unlock()
	t.syscallCtx = ctx
	defer func() {
		t.mu.Lock()
		t.cancel = nil
		t.mu.Unlock()
		cancel()
		t.syscallCtx = context.Background()
	}()

	rval, err := fn(t, args)
	if err == nil {
		return rval, nil
	}
	if e, ok := linuxerr.TranslateError(err); ok {
		return 0, e
	}
	return 0, err
}

// Interrupt interrupts the task's in-flight syscall. If no syscall is in
// flight, the next one is interrupted instead.
//
// Interrupt may be called from any goroutine.
func (t *Task) Interrupt() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		t.cancel()
		return
	}
	t.interruptPending = true
}

// Deadline implements context.Context.Deadline.
func (t *Task) Deadline() (time.Time, bool) {
	return t.syscallCtx.Deadline()
}

// Done implements context.Context.Done.
func (t *Task) Done() <-chan struct{} {
	return t.syscallCtx.Done()
}

// Err implements context.Context.Err.
func (t *Task) Err() error {
	return t.syscallCtx.Err()
}

// Value implements context.Context.Value.
func (t *Task) Value(key any) any {
	if key == bcontext.CtxThreadGroupID {
		return t.tg.tgid
	}
	return t.syscallCtx.Value(key)
}

// Debugf implements log.Logger.Debugf.
func (t *Task) Debugf(format string, v ...any) {
	t.logger.Debugf("[%d:%d] "+format, append([]any{t.tg.tgid, t.tid}, v...)...)
}

// Infof implements log.Logger.Infof.
func (t *Task) Infof(format string, v ...any) {
	t.logger.Infof("[%d:%d] "+format, append([]any{t.tg.tgid, t.tid}, v...)...)
}

// Warningf implements log.Logger.Warningf.
func (t *Task) Warningf(format string, v ...any) {
	t.logger.Warningf("[%d:%d] "+format, append([]any{t.tg.tgid, t.tid}, v...)...)
}

// IsLogging implements log.Logger.IsLogging.
func (t *Task) IsLogging(level log.Level) bool {
	return t.logger.IsLogging(level)
}
