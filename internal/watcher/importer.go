package watcher

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"elk/internal/keylayout"
	"elk/internal/logging"
	"elk/internal/metrics"
	"elk/internal/modifier"
	"elk/internal/parser"
	"elk/internal/store"
)

// Importer parses settled .keylayout files and saves them to the layout
// library.
type Importer struct {
	// Metrics, when set, records every import.
	Metrics *metrics.WatchMetrics

	store  *store.Store
	logger *logging.Logger
}

// NewImporter creates an importer saving to s. logger may be nil.
func NewImporter(s *store.Store, logger *logging.Logger) *Importer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Importer{store: s, logger: logger.WithComponent("importer")}
}

// Import parses the file at path and saves it under its layout name, or the
// file name when the document has none. It returns the saved record and the
// diagnostics reported while reading.
func (im *Importer) Import(path string) (*store.Record, []string, error) {
	start := time.Now()
	diag := keylayout.NewDiagnostics(im.logger.With("path", path))
	l, err := parser.ReadFile(path, diag)
	if err != nil {
		im.failed(start)
		return nil, diag.Messages(), err
	}
	if l.Name() == "" {
		l.SetName(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	}

	rec, err := im.store.Save(l, path)
	if err != nil {
		im.failed(start)
		return nil, diag.Messages(), err
	}

	sequences := 0
	for _, m := range modifier.All() {
		sequences += len(l.Sequences(m))
	}
	im.logger.WithLayout(rec.Name).Info("layout imported",
		"path", path,
		"sequences", sequences,
		"warnings", diag.Len(),
	)
	if im.Metrics != nil {
		im.Metrics.RecordImport(time.Since(start), sequences, diag.Len())
	}
	return rec, diag.Messages(), nil
}

func (im *Importer) failed(start time.Time) {
	if im.Metrics != nil {
		im.Metrics.RecordImportError(time.Since(start))
	}
}

// Run imports every event of w until ctx is done or w is stopped. Import
// failures are logged and do not stop the loop.
func (im *Importer) Run(ctx context.Context, w *Watcher) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-w.Events():
			if !ok {
				return nil
			}
			if _, _, err := im.Import(ev.Path); err != nil {
				im.logger.Error("import failed", "path", ev.Path, "error", err)
			}

		case err, ok := <-w.Errors():
			if !ok {
				return nil
			}
			im.logger.Warn("watch error", "error", err)
		}
	}
}
