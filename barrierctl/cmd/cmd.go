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

// Package cmd holds implementations of the barrierctl commands.
package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gvisor.dev/barrier/barrierctl/config"
	"gvisor.dev/barrier/pkg/kernel"
	"gvisor.dev/barrier/pkg/log"
	"gvisor.dev/barrier/pkg/metric"
	"gvisor.dev/barrier/pkg/syscalls/linux"
)

// metricsNamespace prefixes exported metric names.
const metricsNamespace = "barrierctl"

// activityLogPattern names the per-barrier activity logs inside --log-dir.
const activityLogPattern = "P%SCOPE%_T%CAPACITY%.txt"

// ErrorLogger is where error messages should be written to. These messages
// are consumed by the user.
var ErrorLogger io.Writer = os.Stderr

// Fatalf logs to stderr and exits with a failure status code.
func Fatalf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	log.Warningf("FATAL ERROR: %s", msg)
	fmt.Fprintf(ErrorLogger, "barrierctl: %s\n", msg)
	os.Exit(128)
}

// NewEmitter returns an emitter writing to w in the given format.
func NewEmitter(format string, w io.Writer) (log.Emitter, error) {
	switch format {
	case "text":
		return log.GoogleEmitter{Writer: &log.Writer{Next: w}}, nil
	case "json":
		return log.JSONEmitter{Writer: &log.Writer{Next: w}}, nil
	case "logrus":
		l := logrus.New()
		l.SetOutput(w)
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		return log.NewLogrusEmitter(l), nil
	}
	return nil, fmt.Errorf("invalid log format %q, must be 'text', 'json', or 'logrus'", format)
}

// mainLogName names the global log file inside --log-dir.
const mainLogName = "barrierctl.log"

// NewLogTarget returns the emitter for the global log. Messages go to w and,
// if --log-dir is set, also to a file in that directory which the caller
// must close.
func NewLogTarget(conf *config.Config, w io.Writer) (log.Emitter, io.Closer, error) {
	e, err := NewEmitter(conf.LogFormat, w)
	if err != nil {
		return nil, nil, err
	}
	if conf.LogDir == "" {
		return e, nopCloser{}, nil
	}
	f, err := log.OpenFile(filepath.Join(conf.LogDir, mainLogName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, log.ScopeFileOpts{})
	if err != nil {
		return nil, nil, err
	}
	fe, err := NewEmitter(conf.LogFormat, f)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return &log.MultiEmitter{e, fe}, f, nil
}

// newKernel creates a kernel exposing the barrier syscalls.
func newKernel(conf *config.Config) (*kernel.Kernel, error) {
	k := &kernel.Kernel{}
	if err := k.Init(kernel.InitKernelArgs{
		Syscalls:    linux.NewTable(),
		MaxBarriers: conf.MaxBarriers,
	}); err != nil {
		return nil, fmt.Errorf("error initializing kernel: %w", err)
	}
	return k, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// activityLogger returns the logger for the workers of one barrier. If
// --log-dir is set, messages go to a dedicated file which the caller must
// close; otherwise they go to the global logger.
func activityLogger(conf *config.Config, scope int, capacity uint32, fallback log.Logger) (log.Logger, io.Closer, error) {
	if conf.LogDir == "" {
		return fallback, nopCloser{}, nil
	}
	pattern := filepath.Join(conf.LogDir, activityLogPattern)
	f, err := log.OpenFile(pattern, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, log.ScopeFileOpts{Scope: scope, Capacity: capacity})
	if err != nil {
		return nil, nil, err
	}
	e, err := NewEmitter(conf.LogFormat, f)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	level := log.Info
	if conf.Debug {
		level = log.Debug
	}
	return &log.BasicLogger{Level: level, Emitter: e}, f, nil
}

// writeMetrics prints metrics to w if requested.
func writeMetrics(conf *config.Config, w io.Writer) error {
	if !conf.Metrics {
		return nil
	}
	return metric.WritePrometheus(w, metricsNamespace)
}
