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

package linuxerr

import (
	"golang.org/x/sys/unix"
	"gvisor.dev/barrier/pkg/errors"
)

var (
	// ErrInterrupted is returned if a request is interrupted before it can
	// complete.
	ErrInterrupted = errors.New(unix.EINTR, "request was interrupted")
)

var internalErrorMap = map[error]*errors.Error{
	ErrInterrupted: EINTR,
}

// TranslateError translates internal errors to errnos. It returns false if
// the error was not registered.
func TranslateError(from error) (*errors.Error, bool) {
	if err, ok := internalErrorMap[from]; ok {
		return err, true
	}
	return nil, false
}
