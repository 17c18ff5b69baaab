// Package metrics keeps counters, gauges and histograms for long-running
// elk commands and exposes them in the Prometheus text format.
package metrics

import (
	"fmt"
	"io"
	"maps"
	"net/http"
	"slices"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Labels are constant label pairs attached to a metric.
type Labels map[string]string

// String returns the labels in exposition syntax, sorted by name, or ""
// when there are none.
func (l Labels) String() string {
	if len(l) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteByte('{')
	for i, k := range slices.Sorted(maps.Keys(l)) {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%s=%q", k, l[k])
	}
	b.WriteByte('}')
	return b.String()
}

// with returns the labels plus one more pair, in exposition syntax.
func (l Labels) with(name, value string) string {
	s := l.String()
	pair := fmt.Sprintf("%s=%q}", name, value)
	if s == "" {
		return "{" + pair
	}
	return s[:len(s)-1] + "," + pair
}

// metric is implemented by every kind a Registry holds.
type metric interface {
	kind() string
	describe() string
	write(w io.Writer, name string)
	record(snap map[string]float64, name string)
}

type desc struct {
	help   string
	labels Labels
}

func (d *desc) describe() string { return d.help }

// Counter only goes up.
type Counter struct {
	desc
	v atomic.Uint64
}

func (c *Counter) Inc()          { c.v.Add(1) }
func (c *Counter) Add(n uint64)  { c.v.Add(n) }
func (c *Counter) Value() uint64 { return c.v.Load() }

func (c *Counter) kind() string { return "counter" }
func (c *Counter) write(w io.Writer, name string) {
	fmt.Fprintf(w, "%s%s %d\n", name, c.labels, c.Value())
}
func (c *Counter) record(snap map[string]float64, name string) { snap[name] = float64(c.Value()) }

// Gauge holds a value that can go up and down.
type Gauge struct {
	desc
	v atomic.Int64
}

func (g *Gauge) Set(n int64)  { g.v.Store(n) }
func (g *Gauge) Add(n int64)  { g.v.Add(n) }
func (g *Gauge) Value() int64 { return g.v.Load() }

func (g *Gauge) kind() string { return "gauge" }
func (g *Gauge) write(w io.Writer, name string) {
	fmt.Fprintf(w, "%s%s %d\n", name, g.labels, g.Value())
}
func (g *Gauge) record(snap map[string]float64, name string) { snap[name] = float64(g.Value()) }

// DurationBuckets are upper bounds in seconds, from half a millisecond up.
var DurationBuckets = []float64{
	0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5,
}

// Histogram counts observations into buckets.
type Histogram struct {
	desc
	bounds []float64

	mu     sync.Mutex
	counts []uint64 // len(bounds)+1; the last is +Inf
	sum    float64
	n      uint64
}

func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	h.counts[sort.SearchFloat64s(h.bounds, v)]++
	h.sum += v
	h.n++
	h.mu.Unlock()
}

// ObserveDuration records d in seconds.
func (h *Histogram) ObserveDuration(d time.Duration) { h.Observe(d.Seconds()) }

// Timer starts timing an observation.
func (h *Histogram) Timer() *HistogramTimer {
	return &HistogramTimer{h: h, start: time.Now()}
}

func (h *Histogram) Count() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.n
}

func (h *Histogram) Sum() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sum
}

func (h *Histogram) kind() string { return "histogram" }

func (h *Histogram) write(w io.Writer, name string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var total uint64
	for i, bound := range h.bounds {
		total += h.counts[i]
		fmt.Fprintf(w, "%s_bucket%s %d\n", name, h.labels.with("le", fmt.Sprintf("%g", bound)), total)
	}
	total += h.counts[len(h.bounds)]
	fmt.Fprintf(w, "%s_bucket%s %d\n", name, h.labels.with("le", "+Inf"), total)
	fmt.Fprintf(w, "%s_sum%s %g\n", name, h.labels, h.sum)
	fmt.Fprintf(w, "%s_count%s %d\n", name, h.labels, h.n)
}

func (h *Histogram) record(snap map[string]float64, name string) {
	snap[name+"_count"] = float64(h.Count())
	snap[name+"_sum"] = h.Sum()
}

// HistogramTimer records the time between Timer and Stop.
type HistogramTimer struct {
	h     *Histogram
	start time.Time
}

func (t *HistogramTimer) Stop() time.Duration {
	d := time.Since(t.start)
	t.h.ObserveDuration(d)
	return d
}

// Registry owns a set of metrics. Names are prefixed with the namespace.
type Registry struct {
	namespace string

	mu      sync.RWMutex
	metrics map[string]metric
}

func NewRegistry(namespace string) *Registry {
	return &Registry{namespace: namespace, metrics: make(map[string]metric)}
}

// register returns the metric already under name or stores the one made
// by create. Reusing a name for a different kind panics.
func register[M metric](r *Registry, name string, create func() M) M {
	if r.namespace != "" {
		name = r.namespace + "_" + name
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.metrics[name]; ok {
		existing, ok := m.(M)
		if !ok {
			panic(fmt.Sprintf("metrics: %s already registered as a %s", name, m.kind()))
		}
		return existing
	}
	m := create()
	r.metrics[name] = m
	return m
}

// Counter returns the counter registered under name, creating it if needed.
func (r *Registry) Counter(name, help string, labels Labels) *Counter {
	return register(r, name, func() *Counter { return &Counter{desc: desc{help, labels}} })
}

// Gauge returns the gauge registered under name, creating it if needed.
func (r *Registry) Gauge(name, help string, labels Labels) *Gauge {
	return register(r, name, func() *Gauge { return &Gauge{desc: desc{help, labels}} })
}

// Histogram returns the histogram registered under name, creating it with
// buckets if needed. Nil buckets select DurationBuckets.
func (r *Registry) Histogram(name, help string, labels Labels, buckets []float64) *Histogram {
	return register(r, name, func() *Histogram {
		if buckets == nil {
			buckets = DurationBuckets
		}
		bounds := slices.Sorted(slices.Values(buckets))
		return &Histogram{desc: desc{help, labels}, bounds: bounds, counts: make([]uint64, len(bounds)+1)}
	})
}

// WritePrometheus writes every metric, sorted by name.
func (r *Registry) WritePrometheus(w io.Writer) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var b strings.Builder
	for _, name := range slices.Sorted(maps.Keys(r.metrics)) {
		m := r.metrics[name]
		fmt.Fprintf(&b, "# HELP %s %s\n# TYPE %s %s\n", name, m.describe(), name, m.kind())
		m.write(&b, name)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// Snapshot returns counter and gauge values by name, and the _count and
// _sum of each histogram.
func (r *Registry) Snapshot() map[string]float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := make(map[string]float64, len(r.metrics))
	for name, m := range r.metrics {
		m.record(snap, name)
	}
	return snap
}

// HTTPHandler serves WritePrometheus.
func (r *Registry) HTTPHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		r.WritePrometheus(w)
	})
}
