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

// Package kernel provides an emulated kernel that hosts barriers on behalf of
// tasks.
package kernel

import (
	"fmt"

	"gvisor.dev/barrier/pkg/kernel/barrier"
	"gvisor.dev/barrier/pkg/log"
	"gvisor.dev/barrier/pkg/sync"
)

// InitKernelArgs holds arguments to Init.
type InitKernelArgs struct {
	// Syscalls is the table used to dispatch Task.Syscall.
	Syscalls *SyscallTable

	// MaxBarriers is the maximum number of live barriers. Zero selects
	// barrier.DefaultMaxBarriers.
	MaxBarriers int
}

// Kernel represents an emulated kernel.
type Kernel struct {
	// syscalls is the syscall table used by all tasks. Immutable after Init.
	syscalls *SyscallTable

	// barriers holds all barriers created by tasks of this kernel. Immutable
	// after Init.
	barriers *barrier.Registry

	// mu protects the fields below.
	mu sync.Mutex

	// lastTGID is the last thread group ID handed out.
	lastTGID int32
}

// Init initializes a Kernel with no thread groups.
func (k *Kernel) Init(args InitKernelArgs) error {
	if args.Syscalls == nil {
		return fmt.Errorf("Syscalls is nil")
	}
	if args.MaxBarriers < 0 {
		return fmt.Errorf("MaxBarriers is negative: %d", args.MaxBarriers)
	}
	args.Syscalls.Init()
	k.syscalls = args.Syscalls
	k.barriers = barrier.NewRegistry(args.MaxBarriers)
	return nil
}

// Barriers returns the kernel's barrier registry.
func (k *Kernel) Barriers() *barrier.Registry {
	return k.barriers
}

// SyscallTable returns the kernel's syscall table.
func (k *Kernel) SyscallTable() *SyscallTable {
	return k.syscalls
}

// NewThreadGroup creates a thread group with a fresh ID.
func (k *Kernel) NewThreadGroup() *ThreadGroup {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.lastTGID++
	tg := &ThreadGroup{
		k:    k,
		tgid: k.lastTGID,
	}
	log.Debugf("Created thread group %d", tg.tgid)
	return tg
}
