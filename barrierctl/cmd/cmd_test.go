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

package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"gvisor.dev/barrier/barrierctl/config"
	"gvisor.dev/barrier/pkg/log"
	"gvisor.dev/barrier/pkg/syscalls/linux"
)

func TestDemo(t *testing.T) {
	d := &Demo{
		scopes:        2,
		smallCapacity: 3,
		largeCapacity: 6,
		rounds:        10,
		destroyRound:  4,
	}
	if err := d.validate(); err != nil {
		t.Fatalf("validate() = %v", err)
	}
	conf := &config.Config{LogFormat: "text", LogDir: t.TempDir()}
	if err := d.run(conf); err != nil {
		t.Fatalf("run() = %v", err)
	}

	for scope := 1; scope <= d.scopes; scope++ {
		small := filepath.Join(conf.LogDir, log.ScopeFileOpts{Scope: scope, Capacity: 3}.Build(activityLogPattern))
		large := filepath.Join(conf.LogDir, log.ScopeFileOpts{Scope: scope, Capacity: 6}.Build(activityLogPattern))
		if got := readFile(t, small); strings.Count(got, "woke up") != 3*d.rounds {
			t.Errorf("%s: got %d wake ups, want %d", small, strings.Count(got, "woke up"), 3*d.rounds)
		}
		if got := readFile(t, large); !strings.Contains(got, "Destroyed by worker") {
			t.Errorf("%s does not record the destroy:\n%s", large, got)
		}
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile(%q): %v", path, err)
	}
	return string(data)
}

func TestDemoValidate(t *testing.T) {
	valid := Demo{scopes: 1, smallCapacity: 1, largeCapacity: 2, rounds: 3, destroyRound: 1}
	for _, tc := range []struct {
		name   string
		modify func(*Demo)
	}{
		{"no scopes", func(d *Demo) { d.scopes = 0 }},
		{"zero capacity", func(d *Demo) { d.smallCapacity = 0 }},
		{"no rounds", func(d *Demo) { d.rounds = 0 }},
		{"destroy after run", func(d *Demo) { d.destroyRound = 3 }},
		{"negative sleep", func(d *Demo) { d.avgSleep = -time.Second }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			d := valid
			tc.modify(&d)
			if err := d.validate(); err == nil {
				t.Errorf("validate() succeeded for %+v", d)
			}
		})
	}
}

func TestStress(t *testing.T) {
	s := &Stress{
		barriers:       2,
		capacity:       3,
		workers:        5,
		duration:       200 * time.Millisecond,
		interruptEvery: 200 * time.Microsecond,
	}
	if err := s.validate(); err != nil {
		t.Fatalf("validate() = %v", err)
	}
	var out bytes.Buffer
	if err := s.run(context.Background(), &config.Config{LogFormat: "text"}, &out); err != nil {
		t.Fatalf("run() = %v\n%s", err, out.String())
	}
	if got := strings.Count(out.String(), "\n"); got != s.barriers {
		t.Errorf("got %d summary lines, want %d:\n%s", got, s.barriers, out.String())
	}
}

func TestSyscallDocs(t *testing.T) {
	want := []SyscallDoc{
		{Name: "barrier_init", Number: linux.SysBarrierInit},
		{Name: "barrier_wait", Number: linux.SysBarrierWait},
		{Name: "barrier_destroy", Number: linux.SysBarrierDestroy},
	}
	docs := syscallDocs(linux.NewTable())
	if diff := cmp.Diff(want, docs); diff != "" {
		t.Errorf("syscallDocs() mismatch (-want +got):\n%s", diff)
	}

	var buf bytes.Buffer
	if err := outputJSON(&buf, docs); err != nil {
		t.Fatalf("outputJSON() = %v", err)
	}
	var got []SyscallDoc
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("Unmarshal(%q): %v", buf.String(), err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("outputJSON() mismatch (-want +got):\n%s", diff)
	}

	buf.Reset()
	if err := outputTable(&buf, docs); err != nil {
		t.Fatalf("outputTable() = %v", err)
	}
	if !strings.Contains(buf.String(), "352  barrier_wait") {
		t.Errorf("outputTable() = %q, want a row for barrier_wait", buf.String())
	}
}

func TestSelectSyscallDocs(t *testing.T) {
	table := linux.NewTable()
	got, err := selectSyscallDocs(table, []string{"barrier_destroy", "barrier_init"})
	if err != nil {
		t.Fatalf("selectSyscallDocs() = %v", err)
	}
	want := []SyscallDoc{
		{Name: "barrier_destroy", Number: linux.SysBarrierDestroy},
		{Name: "barrier_init", Number: linux.SysBarrierInit},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("selectSyscallDocs() mismatch (-want +got):\n%s", diff)
	}
	if all, err := selectSyscallDocs(table, nil); err != nil || len(all) != 3 {
		t.Errorf("selectSyscallDocs(nil) = %v, %v, want all 3 syscalls", all, err)
	}
	if _, err := selectSyscallDocs(table, []string{"barrier_wait", "fork"}); err == nil {
		t.Errorf("selectSyscallDocs(fork) succeeded, want error")
	}
}

func TestNewLogTarget(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	e, closer, err := NewLogTarget(&config.Config{LogFormat: "text", LogDir: dir}, &buf)
	if err != nil {
		t.Fatalf("NewLogTarget() = %v", err)
	}
	l := &log.BasicLogger{Level: log.Info, Emitter: e}
	l.Infof("hello %d", 42)
	if err := closer.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}
	if !strings.Contains(buf.String(), "hello 42") {
		t.Errorf("writer got %q, want it to contain %q", buf.String(), "hello 42")
	}
	data, err := os.ReadFile(filepath.Join(dir, mainLogName))
	if err != nil {
		t.Fatalf("ReadFile() = %v", err)
	}
	if !strings.Contains(string(data), "hello 42") {
		t.Errorf("log file got %q, want it to contain %q", data, "hello 42")
	}
}

func TestNewEmitter(t *testing.T) {
	for _, format := range []string{"text", "json", "logrus"} {
		t.Run(format, func(t *testing.T) {
			var buf bytes.Buffer
			e, err := NewEmitter(format, &buf)
			if err != nil {
				t.Fatalf("NewEmitter(%q) = %v", format, err)
			}
			l := &log.BasicLogger{Level: log.Info, Emitter: e}
			l.Infof("hello %d", 42)
			if !strings.Contains(buf.String(), "hello 42") {
				t.Errorf("output %q does not contain the message", buf.String())
			}
		})
	}
	if _, err := NewEmitter("xml", &bytes.Buffer{}); err == nil {
		t.Errorf("NewEmitter(xml) succeeded, want error")
	}
}
