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

package linux

import (
	"gvisor.dev/barrier/pkg/arch"
	"gvisor.dev/barrier/pkg/errors/linuxerr"
	"gvisor.dev/barrier/pkg/kernel"
	"gvisor.dev/barrier/pkg/kernel/barrier"
)

// BarrierInit handles: barrier_init(int count)
//
// It creates a barrier for count participants, owned by the caller's thread
// group, and returns its ID.
func BarrierInit(t *kernel.Task, args arch.SyscallArguments) (uintptr, error) {
	count := args[0].Uint64()
	if count == 0 || count > barrier.MaxCapacity {
		return 0, linuxerr.EINVAL
	}
	id, err := t.Kernel().Barriers().Create(t, uint32(count))
	if err != nil {
		return 0, err
	}
	return uintptr(id), nil
}

// BarrierWait handles: barrier_wait(int barrier_id)
func BarrierWait(t *kernel.Task, args arch.SyscallArguments) (uintptr, error) {
	id, err := barrierID(args[0])
	if err != nil {
		return 0, err
	}
	return 0, t.Kernel().Barriers().Wait(t, id)
}

// BarrierDestroy handles: barrier_destroy(int barrier_id)
func BarrierDestroy(t *kernel.Task, args arch.SyscallArguments) (uintptr, error) {
	id, err := barrierID(args[0])
	if err != nil {
		return 0, err
	}
	return 0, t.Kernel().Barriers().Destroy(t, id)
}

func barrierID(arg arch.SyscallArgument) (barrier.ID, error) {
	id := arg.Int64()
	if id < 0 || id > int64(^barrier.ID(0)) {
		return 0, linuxerr.EINVAL
	}
	return barrier.ID(id), nil
}
