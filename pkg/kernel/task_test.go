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
	"testing"
	"time"

	"golang.org/x/sys/unix"
	"gvisor.dev/barrier/pkg/arch"
	"gvisor.dev/barrier/pkg/context"
	"gvisor.dev/barrier/pkg/errors/linuxerr"
	"gvisor.dev/barrier/pkg/log"
)

const (
	sysBlock = iota
	sysTGID
	sysFail
)

// newTestKernel returns a kernel whose syscalls block until interrupted,
// return the caller's thread group ID, or fail with their first argument.
func newTestKernel(t *testing.T) *Kernel {
	t.Helper()
	table := &SyscallTable{
		Table: map[uintptr]Syscall{
			sysBlock: {
				Name: "block",
				Fn: func(t *Task, args arch.SyscallArguments) (uintptr, error) {
					return 0, context.Block(t, nil)
				},
			},
			sysTGID: {
				Name: "tgid",
				Fn: func(t *Task, args arch.SyscallArguments) (uintptr, error) {
					tgid, ok := context.ThreadGroupIDFromContext(t)
					if !ok {
						return 0, linuxerr.ESRCH
					}
					return uintptr(tgid), nil
				},
			},
			sysFail: {
				Name: "fail",
				Fn: func(t *Task, args arch.SyscallArguments) (uintptr, error) {
					return 0, linuxerr.ErrorFromUnix(unix.Errno(args[0].Value))
				},
			},
		},
	}
	k := &Kernel{}
	if err := k.Init(InitKernelArgs{Syscalls: table}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	return k
}

func TestInitValidation(t *testing.T) {
	var k Kernel
	if err := k.Init(InitKernelArgs{}); err == nil {
		t.Errorf("Init without a syscall table succeeded")
	}
	if err := k.Init(InitKernelArgs{Syscalls: &SyscallTable{}, MaxBarriers: -1}); err == nil {
		t.Errorf("Init with negative MaxBarriers succeeded")
	}
}

func TestThreadGroupIDs(t *testing.T) {
	k := newTestKernel(t)
	tg1 := k.NewThreadGroup()
	tg2 := k.NewThreadGroup()
	if tg1.ID() == tg2.ID() {
		t.Fatalf("thread groups share ID %d", tg1.ID())
	}
	for _, tg := range []*ThreadGroup{tg1, tg2} {
		task := tg.NewTask(log.Log())
		got, err := task.Syscall(sysTGID, arch.SyscallArguments{})
		if err != nil {
			t.Fatalf("tgid syscall failed: %v", err)
		}
		if int32(got) != tg.ID() {
			t.Errorf("tgid syscall = %d, want %d", got, tg.ID())
		}
	}
	a, b := tg1.NewTask(nil), tg1.NewTask(nil)
	if a.ThreadID() == b.ThreadID() {
		t.Errorf("tasks share ID %d", a.ThreadID())
	}
}

func TestUnknownSyscall(t *testing.T) {
	k := newTestKernel(t)
	task := k.NewThreadGroup().NewTask(nil)
	if _, err := task.Syscall(maxSyscallNum+1, arch.SyscallArguments{}); err != linuxerr.ENOSYS {
		t.Errorf("Syscall(%d) = %v, want %v", maxSyscallNum+1, err, linuxerr.ENOSYS)
	}
	if _, err := task.Syscall(42, arch.SyscallArguments{}); err != linuxerr.ENOSYS {
		t.Errorf("Syscall(42) = %v, want %v", err, linuxerr.ENOSYS)
	}
}

func TestSyscallErrors(t *testing.T) {
	k := newTestKernel(t)
	task := k.NewThreadGroup().NewTask(nil)
	_, err := task.Syscall(sysFail, arch.Args(uintptr(linuxerr.EIDRM.Errno())))
	if err != linuxerr.EIDRM {
		t.Errorf("fail syscall = %v, want %v", err, linuxerr.EIDRM)
	}
}

func TestInterruptInFlight(t *testing.T) {
	k := newTestKernel(t)
	task := k.NewThreadGroup().NewTask(nil)

	done := make(chan error, 1)
	go func() {
		_, err := task.Syscall(sysBlock, arch.SyscallArguments{})
		done <- err
	}()

	// Interrupt until the syscall notices; the first attempts may land
	// before it starts and only leave an interrupt pending.
	for {
		task.Interrupt()
		select {
		case err := <-done:
			if err != linuxerr.EINTR {
				t.Fatalf("interrupted syscall = %v, want %v", err, linuxerr.EINTR)
			}
			return
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestInterruptPending(t *testing.T) {
	k := newTestKernel(t)
	task := k.NewThreadGroup().NewTask(nil)

	task.Interrupt()
	if _, err := task.Syscall(sysBlock, arch.SyscallArguments{}); err != linuxerr.EINTR {
		t.Fatalf("syscall with pending interrupt = %v, want %v", err, linuxerr.EINTR)
	}
	// The pending interrupt was consumed.
	if _, err := task.Syscall(sysTGID, arch.SyscallArguments{}); err != nil {
		t.Errorf("syscall after interrupt = %v, want nil", err)
	}
	if err := task.Err(); err != nil {
		t.Errorf("Err() between syscalls = %v, want nil", err)
	}
}
