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

package config

import (
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func newFlagSet(t *testing.T, args ...string) *flag.FlagSet {
	t.Helper()
	testFlags := flag.NewFlagSet("test", flag.ContinueOnError)
	RegisterFlags(testFlags)
	if err := testFlags.Parse(args); err != nil {
		t.Fatalf("Parse(%v): %v", args, err)
	}
	return testFlags
}

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "barrierctl.toml")
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	c, err := NewFromFlags(newFlagSet(t))
	if err != nil {
		t.Fatal(err)
	}
	want := &Config{LogFormat: "text"}
	if diff := cmp.Diff(want, c); diff != "" {
		t.Errorf("default config mismatch (-want +got):\n%s", diff)
	}

	// All defaults doesn't require setting flags.
	if flags := c.ToFlags(); len(flags) > 0 {
		t.Errorf("default flags not set correctly for: %s", flags)
	}
}

func TestFromFlags(t *testing.T) {
	c, err := NewFromFlags(newFlagSet(t, "--debug", "--log-format=json", "--max-barriers=7", "--log-dir=/tmp/logs"))
	if err != nil {
		t.Fatal(err)
	}
	want := &Config{
		LogFormat:   "json",
		Debug:       true,
		LogDir:      "/tmp/logs",
		MaxBarriers: 7,
	}
	if diff := cmp.Diff(want, c); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}

	got := c.ToFlags()
	wantFlags := []string{"--log-format=json", "--debug=true", "--log-dir=/tmp/logs", "--max-barriers=7"}
	if diff := cmp.Diff(wantFlags, got); diff != "" {
		t.Errorf("ToFlags() mismatch (-want +got):\n%s", diff)
	}
}

func TestConfigFile(t *testing.T) {
	path := writeConfigFile(t, `
[flags]
debug = "true"
log-format = "logrus"
max-barriers = "12"
`)
	// The command line wins over the file.
	c, err := NewFromFlags(newFlagSet(t, "--config="+path, "--log-format=json"))
	if err != nil {
		t.Fatal(err)
	}
	want := &Config{
		ConfigFile:  path,
		LogFormat:   "json",
		Debug:       true,
		MaxBarriers: 12,
	}
	if diff := cmp.Diff(want, c); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestConfigFileErrors(t *testing.T) {
	for _, tc := range []struct {
		name     string
		contents string
		want     string
	}{
		{
			name:     "unknown flag",
			contents: "[flags]\nbogus = \"1\"\n",
			want:     "unknown flag",
		},
		{
			name:     "nested config",
			contents: "[flags]\nconfig = \"other.toml\"\n",
			want:     "cannot set flag",
		},
		{
			name:     "bad value",
			contents: "[flags]\nmax-barriers = \"many\"\n",
			want:     "error setting flag",
		},
		{
			name:     "bad syntax",
			contents: "[flags\n",
			want:     "error reading config file",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfigFile(t, tc.contents)
			_, err := NewFromFlags(newFlagSet(t, "--config="+path))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("NewFromFlags() = %v, want error containing %q", err, tc.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	for _, tc := range []struct {
		name string
		args []string
	}{
		{"log format", []string{"--log-format=xml"}},
		{"negative max barriers", []string{"--max-barriers=-1"}},
		{"too many barriers", []string{"--max-barriers=100000000"}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewFromFlags(newFlagSet(t, tc.args...)); err == nil {
				t.Errorf("NewFromFlags(%v) succeeded, want error", tc.args)
			}
		})
	}
}
