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
	"gvisor.dev/barrier/pkg/log"
	"gvisor.dev/barrier/pkg/sync"
)

// ThreadGroup is a set of tasks sharing a scope. Barriers created by a task
// can only be waited on by tasks of the same thread group.
type ThreadGroup struct {
	// k is the owning kernel. Immutable.
	k *Kernel

	// tgid is the thread group ID. Immutable.
	tgid int32

	// mu protects lastTID.
	mu sync.Mutex

	// lastTID is the last task ID handed out within the group.
	lastTID int32
}

// ID returns tg's thread group ID.
func (tg *ThreadGroup) ID() int32 {
	return tg.tgid
}

// Kernel returns the kernel owning tg.
func (tg *ThreadGroup) Kernel() *Kernel {
	return tg.k
}

// NewTask creates a task in tg that logs to logger. A nil logger selects the
// global logger.
func (tg *ThreadGroup) NewTask(logger log.Logger) *Task {
	if logger == nil {
		logger = log.Log()
	}
	tg.mu.Lock()
	tg.lastTID++
	tid := tg.lastTID
	tg.mu.Unlock()
	return newTask(tg, tid, logger)
}
