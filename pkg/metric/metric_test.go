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

package metric

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/common/expfmt"
)

// reset clears all global state in the metric package.
func reset() {
	allMetrics = makeMetricSet()
}

func TestRegistration(t *testing.T) {
	defer reset()

	if _, err := NewUint64Metric("/foo", "Foo!"); err != nil {
		t.Fatalf("NewUint64Metric got err %v want nil", err)
	}
	if _, err := NewUint64Metric("/foo", "Foo again"); err != ErrNameInUse {
		t.Errorf("NewUint64Metric duplicate got err %v want %v", err, ErrNameInUse)
	}
	for _, name := range []string{"foo", "/Foo", "/foo/", "/foo bar"} {
		if _, err := NewUint64Metric(name, ""); !errors.Is(err, ErrInvalidMetricName) {
			t.Errorf("NewUint64Metric(%q) got err %v want %v", name, err, ErrInvalidMetricName)
		}
	}
}

func TestSnapshot(t *testing.T) {
	defer reset()

	foo := MustCreateNewUint64Metric("/foo", "Foo!")
	bar := MustCreateNewUint64Metric("/bar/baz", "Bar Baz")
	foo.Increment()
	bar.IncrementBy(41)
	bar.Increment()

	want := map[string]uint64{"/foo": 1, "/bar/baz": 42}
	if diff := cmp.Diff(want, Snapshot()); diff != "" {
		t.Errorf("Snapshot() mismatch (-want +got):\n%s", diff)
	}
}

func TestWritePrometheus(t *testing.T) {
	defer reset()

	rounds := MustCreateNewUint64Metric("/barrier/rounds", "Number of completed rounds.")
	MustCreateNewUint64Metric("/barrier/created", "Number of barriers created.\nMultiline.")
	rounds.IncrementBy(7)

	var buf bytes.Buffer
	if err := WritePrometheus(&buf, "sandbox"); err != nil {
		t.Fatalf("WritePrometheus: %v", err)
	}
	parsed, err := (&expfmt.TextParser{}).TextToMetricFamilies(&buf)
	if err != nil {
		t.Fatalf("cannot parse exported metrics: %v", err)
	}

	got := make(map[string]float64)
	for name, mf := range parsed {
		for _, m := range mf.GetMetric() {
			got[name] = m.GetCounter().GetValue()
		}
	}
	want := map[string]float64{
		"sandbox_barrier_rounds":  7,
		"sandbox_barrier_created": 0,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("exported metrics mismatch (-want +got):\n%s", diff)
	}
	if help := parsed["sandbox_barrier_created"].GetHelp(); help != "Number of barriers created.\nMultiline." {
		t.Errorf("HELP got %q", help)
	}
}
