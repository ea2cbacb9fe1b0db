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

// Package linux provides the syscall table exposing barriers to tasks.
package linux

import (
	"gvisor.dev/barrier/pkg/kernel"
)

// Syscall numbers of the barrier syscalls.
const (
	SysBarrierInit    = 351
	SysBarrierWait    = 352
	SysBarrierDestroy = 353
)

// NewTable returns a syscall table exposing the barrier syscalls. Each
// kernel needs its own table.
func NewTable() *kernel.SyscallTable {
	return &kernel.SyscallTable{
		Table: map[uintptr]kernel.Syscall{
			SysBarrierInit:    {Name: "barrier_init", Fn: BarrierInit},
			SysBarrierWait:    {Name: "barrier_wait", Fn: BarrierWait},
			SysBarrierDestroy: {Name: "barrier_destroy", Fn: BarrierDestroy},
		},
	}
}
