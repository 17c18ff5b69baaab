package metrics

import (
	"time"
)

// WatchMetrics are the metrics of the layout watcher.
type WatchMetrics struct {
	registry *Registry
	started  time.Time

	Imported       *Counter
	ImportErrors   *Counter
	ImportDuration *Histogram
	Warnings       *Counter
	Sequences      *Gauge
	WatchedDirs    *Gauge
	Restarts       *Counter
	uptime         *Gauge
}

// NewWatchMetrics registers the watcher metrics on registry.
func NewWatchMetrics(registry *Registry) *WatchMetrics {
	return &WatchMetrics{
		registry: registry,
		started:  time.Now(),

		Imported: registry.Counter("layouts_imported_total",
			"Total number of layout files imported", nil),
		ImportErrors: registry.Counter("import_errors_total",
			"Total number of layout files that failed to import", nil),
		ImportDuration: registry.Histogram("import_duration_seconds",
			"Time to parse and store a layout file in seconds", nil, nil),
		Warnings: registry.Counter("import_warnings_total",
			"Total number of parser diagnostics reported during imports", nil),
		Sequences: registry.Gauge("last_import_sequences",
			"Number of dead sequences in the most recently imported layout", nil),
		WatchedDirs: registry.Gauge("watched_directories",
			"Number of layout directories being watched", nil),
		Restarts: registry.Counter("watcher_restarts_total",
			"Number of watcher restarts after configuration changes", nil),
		uptime: registry.Gauge("uptime_seconds",
			"Number of seconds the watcher has been running", nil),
	}
}

// Registry returns the registry the metrics live in.
func (m *WatchMetrics) Registry() *Registry {
	return m.registry
}

// RecordImport records a successful import.
func (m *WatchMetrics) RecordImport(d time.Duration, sequences, warnings int) {
	m.Imported.Inc()
	m.ImportDuration.ObserveDuration(d)
	m.Sequences.Set(int64(sequences))
	m.Warnings.Add(uint64(warnings))
}

// RecordImportError records a failed import.
func (m *WatchMetrics) RecordImportError(d time.Duration) {
	m.ImportErrors.Inc()
	m.ImportDuration.ObserveDuration(d)
}

// UpdateUptime refreshes the uptime gauge.
func (m *WatchMetrics) UpdateUptime() {
	m.uptime.Set(int64(time.Since(m.started).Seconds()))
}
