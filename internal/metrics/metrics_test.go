package metrics

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestLabelsString(t *testing.T) {
	if got := (Labels{}).String(); got != "" {
		t.Errorf("empty labels = %q", got)
	}
	got := Labels{"b": "2", "a": "1"}.String()
	if got != `{a="1",b="2"}` {
		t.Errorf("labels = %q", got)
	}
}

func TestRegistryReturnsExistingMetric(t *testing.T) {
	r := NewRegistry("elk")
	c := r.Counter("things_total", "Things", nil)
	c.Add(2)
	if again := r.Counter("things_total", "Things", nil); again != c {
		t.Fatal("second registration returned a new counter")
	}
	if c.Value() != 2 {
		t.Errorf("value = %d", c.Value())
	}
}

func TestHistogramBuckets(t *testing.T) {
	r := NewRegistry("")
	h := r.Histogram("latency", "Latency", Labels{"op": "import"}, []float64{1, 0.125})
	h.Observe(0.0625)
	h.Observe(0.125)
	h.Observe(0.5)
	h.Observe(3)

	var buf bytes.Buffer
	if err := r.WritePrometheus(&buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		`latency_bucket{op="import",le="0.125"} 2`,
		`latency_bucket{op="import",le="1"} 3`,
		`latency_bucket{op="import",le="+Inf"} 4`,
		`latency_sum{op="import"} 3.6875`,
		`latency_count{op="import"} 4`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}

func TestWritePrometheusIsSorted(t *testing.T) {
	r := NewRegistry("elk")
	r.Counter("zeta_total", "Z", nil).Inc()
	r.Counter("alpha_total", "A", nil).Inc()
	r.Gauge("level", "L", nil).Set(-3)

	var buf bytes.Buffer
	r.WritePrometheus(&buf)
	out := buf.String()
	if strings.Index(out, "elk_alpha_total") > strings.Index(out, "elk_zeta_total") {
		t.Errorf("counters not sorted:\n%s", out)
	}
	if !strings.Contains(out, "# TYPE elk_level gauge\nelk_level -3\n") {
		t.Errorf("gauge missing:\n%s", out)
	}
}

func TestWatchMetrics(t *testing.T) {
	m := NewWatchMetrics(NewRegistry("elk"))
	m.RecordImport(20*time.Millisecond, 12, 1)
	m.RecordImport(10*time.Millisecond, 3, 0)
	m.RecordImportError(time.Millisecond)
	m.UpdateUptime()

	snap := m.Registry().Snapshot()
	checks := map[string]float64{
		"elk_layouts_imported_total":        2,
		"elk_import_errors_total":           1,
		"elk_import_warnings_total":         1,
		"elk_last_import_sequences":         3,
		"elk_import_duration_seconds_count": 3,
	}
	for name, want := range checks {
		if snap[name] != want {
			t.Errorf("%s = %v, want %v", name, snap[name], want)
		}
	}
}

func TestHTTPHandler(t *testing.T) {
	r := NewRegistry("elk")
	r.Counter("requests_total", "Requests", nil).Inc()

	rec := httptest.NewRecorder()
	r.HTTPHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "elk_requests_total 1") {
		t.Errorf("body:\n%s", rec.Body.String())
	}
}
