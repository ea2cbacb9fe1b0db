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
	"fmt"

	"gvisor.dev/barrier/pkg/arch"
)

// maxSyscallNum is the highest supported syscall number.
const maxSyscallNum = 2000

// SyscallFn is a syscall implementation.
type SyscallFn func(t *Task, args arch.SyscallArguments) (uintptr, error)

// Syscall includes the syscall implementation and compatibility information.
type Syscall struct {
	// Name is the syscall name.
	Name string

	// Fn is the implementation of the syscall.
	Fn SyscallFn
}

// SyscallTable is a lookup table of system calls.
type SyscallTable struct {
	// Table is the collection of functions.
	Table map[uintptr]Syscall

	// lookup is a fixed-size array that holds the syscalls (indexed by
	// their numbers). It is used for fast look ups.
	lookup [maxSyscallNum + 1]SyscallFn
}

// Init initializes the fast lookup table. It panics if a syscall number is
// out of range.
func (s *SyscallTable) Init() {
	for num, sc := range s.Table {
		if num > maxSyscallNum {
			panic(fmt.Sprintf("syscall %s has number %d, max is %d", sc.Name, num, maxSyscallNum))
		}
		s.lookup[num] = sc.Fn
	}
}

// Lookup returns the syscall implementation, if one exists.
func (s *SyscallTable) Lookup(sysno uintptr) SyscallFn {
	if sysno <= maxSyscallNum {
		return s.lookup[sysno]
	}
	return nil
}

// LookupName looks up a syscall name.
func (s *SyscallTable) LookupName(sysno uintptr) string {
	if sc, ok := s.Table[sysno]; ok {
		return sc.Name
	}
	return fmt.Sprintf("sys_%d", sysno)
}

// LookupNo looks up a syscall number by name.
func (s *SyscallTable) LookupNo(name string) (uintptr, error) {
	for i, sc := range s.Table {
		if sc.Name == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("syscall %q not found", name)
}
