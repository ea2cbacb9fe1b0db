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

// Package context defines an internal context type.
//
// The given Context conforms to the standard Go context, but mandates
// additional methods that are specific to the kernel. A Context represents a
// single blocking operation of a caller: cancellation of the embedded
// context.Context is how the caller is interrupted.
package context

import (
	"context"

	"gvisor.dev/barrier/pkg/errors/linuxerr"
	"gvisor.dev/barrier/pkg/log"
)

type contextID int

// Globally accessible values from a context. These keys are defined in the
// context package to resolve dependency cycles by not requiring the caller to
// import packages usually required to get these information.
const (
	// CtxThreadGroupID is the current thread group ID when a context represents
	// a task context. The value is represented as an int32.
	CtxThreadGroupID contextID = iota
)

// ThreadGroupIDFromContext returns the current thread group ID when ctx
// represents a task context.
func ThreadGroupIDFromContext(ctx context.Context) (tgid int32, ok bool) {
	if tgid := ctx.Value(CtxThreadGroupID); tgid != nil {
		return tgid.(int32), true
	}
	return 0, false
}

// A Context represents a thread of execution (hereafter "goroutine" to reflect
// Go idiosyncrasy). It carries state associated with the goroutine across API
// boundaries.
//
// It is *not safe* to retain a Context passed to a function beyond the scope
// of that function call.
type Context interface {
	context.Context
	log.Logger
}

// logContext implements basic logging.
type logContext struct {
	context.Context
	log.Logger
}

// bgContext is the context returned by context.Background.
var bgContext = &logContext{
	Context: context.Background(),
	Logger:  log.Log(),
}

// Background returns an empty context using the default logger.
//
// Generally, one should use the Task as their context when available, or avoid
// having to use a context in places where a Task is unavailable.
//
// Using a Background context for tests is fine, as long as no values are
// needed from the context in the tested code paths.
func Background() Context {
	return bgContext
}

// WithLogger returns a Context backed by ctx that logs to l.
func WithLogger(ctx context.Context, l log.Logger) Context {
	return &logContext{Context: ctx, Logger: l}
}

type threadGroupContext struct {
	Context
	tgid int32
}

// Value implements context.Context.Value.
func (c *threadGroupContext) Value(key any) any {
	if key == CtxThreadGroupID {
		return c.tgid
	}
	return c.Context.Value(key)
}

// WithThreadGroupID returns a copy of ctx carrying tgid.
func WithThreadGroupID(ctx Context, tgid int32) Context {
	return &threadGroupContext{Context: ctx, tgid: tgid}
}

// Block blocks until either receiving from ch succeeds (in which case it
// returns nil) or ctx is interrupted (in which case it returns
// linuxerr.ErrInterrupted).
func Block(ctx context.Context, ch <-chan struct{}) error {
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return linuxerr.ErrInterrupted
	}
}
