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

// Package metric provides primitives for collecting metrics.
//
// Metrics are cumulative uint64 counters identified by a slash-separated
// name such as "/barrier/rounds". They are registered once, usually as
// package-level variables, and exported in Prometheus text format.
package metric

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"
	"sync/atomic"

	"gvisor.dev/barrier/pkg/sync"
)

var (
	// ErrNameInUse indicates that another metric is already defined for
	// the given name.
	ErrNameInUse = errors.New("metric name already in use")

	// ErrInvalidMetricName indicates that a metric name is not valid.
	ErrInvalidMetricName = errors.New("metric name is not valid")
)

// metricNameRegexp is the regular expression that all metric names must
// match.
var metricNameRegexp = regexp.MustCompile(`^(/[a-z0-9_]+)+$`)

// Uint64Metric encapsulates a uint64 that represents some kind of metric to be
// monitored.
//
// Metrics are not saved across save/restore and thus reset to zero on restore.
type Uint64Metric struct {
	name        string
	description string
	value       atomic.Uint64
}

// metricSet holds all registered metrics.
type metricSet struct {
	mu sync.Mutex
	m  map[string]*Uint64Metric
}

var allMetrics = makeMetricSet()

func makeMetricSet() *metricSet {
	return &metricSet{m: make(map[string]*Uint64Metric)}
}

// NewUint64Metric creates and registers a new cumulative metric with the
// given name.
func NewUint64Metric(name, description string) (*Uint64Metric, error) {
	if !metricNameRegexp.MatchString(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMetricName, name)
	}
	allMetrics.mu.Lock()
	defer allMetrics.mu.Unlock()
	if _, ok := allMetrics.m[name]; ok {
		return nil, ErrNameInUse
	}
	m := &Uint64Metric{name: name, description: description}
	allMetrics.m[name] = m
	return m, nil
}

// MustCreateNewUint64Metric calls NewUint64Metric and panics if it returns
// an error.
func MustCreateNewUint64Metric(name, description string) *Uint64Metric {
	m, err := NewUint64Metric(name, description)
	if err != nil {
		panic(fmt.Sprintf("Unable to create metric %q: %s", name, err))
	}
	return m
}

// Name returns the metric name.
func (m *Uint64Metric) Name() string {
	return m.name
}

// Value returns the current value of the metric.
func (m *Uint64Metric) Value() uint64 {
	return m.value.Load()
}

// Increment increments the metric by 1.
func (m *Uint64Metric) Increment() {
	m.value.Add(1)
}

// IncrementBy increments the metric by v.
func (m *Uint64Metric) IncrementBy(v uint64) {
	m.value.Add(v)
}

// Snapshot returns the current value of every registered metric, keyed by
// name.
func Snapshot() map[string]uint64 {
	allMetrics.mu.Lock()
	defer allMetrics.mu.Unlock()
	s := make(map[string]uint64, len(allMetrics.m))
	for name, m := range allMetrics.m {
		s[name] = m.Value()
	}
	return s
}

// PrometheusName converts a metric name to the name it is exported under,
// e.g. "/barrier/rounds" with namespace "sandbox" becomes
// "sandbox_barrier_rounds".
func PrometheusName(namespace, name string) string {
	n := strings.ReplaceAll(strings.TrimPrefix(name, "/"), "/", "_")
	if namespace == "" {
		return n
	}
	return namespace + "_" + n
}

// WritePrometheus writes all registered metrics to w in the Prometheus text
// exposition format, in name order.
func WritePrometheus(w io.Writer, namespace string) error {
	allMetrics.mu.Lock()
	metrics := make([]*Uint64Metric, 0, len(allMetrics.m))
	for _, m := range allMetrics.m {
		metrics = append(metrics, m)
	}
	allMetrics.mu.Unlock()
	sort.Slice(metrics, func(i, j int) bool { return metrics[i].name < metrics[j].name })

	for _, m := range metrics {
		name := PrometheusName(namespace, m.name)
		if _, err := fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s counter\n%s %d\n", name, escapeHelp(m.description), name, name, m.Value()); err != nil {
			return err
		}
	}
	return nil
}

// escapeHelp escapes a HELP string per the text exposition format.
func escapeHelp(s string) string {
	return strings.NewReplacer(`\`, `\\`, "\n", `\n`).Replace(s)
}
