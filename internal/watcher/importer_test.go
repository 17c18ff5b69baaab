package watcher

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"elk/internal/compiler"
	"elk/internal/keylayout"
	"elk/internal/layout"
	"elk/internal/logging"
	"elk/internal/metrics"
	"elk/internal/modifier"
	"elk/internal/store"
)

func caretLayout(name string) *layout.Layout {
	l := layout.New(name)
	var plain, shifted layout.KeyMap
	plain[0], plain[14], plain[22] = 'a', 'e', '6'
	shifted[0], shifted[14], shifted[22] = 'A', 'E', '^'
	l.SetKeyMap(modifier.None, plain)
	l.SetKeyMap(modifier.Shift, shifted)
	l.SetSequences(modifier.None, []layout.DeadSequence{
		{Keys: "^a", Output: "â"},
		{Keys: "^e", Output: "ê"},
	})
	return l
}

func writeKeylayout(t *testing.T, path string, l *layout.Layout) {
	t.Helper()
	doc, err := compiler.Compile(l, compiler.Options{})
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	var buf bytes.Buffer
	if err := keylayout.Encode(&buf, doc); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		t.Fatal(err)
	}
}

func newImporter(t *testing.T) (*Importer, *store.Store) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "layouts.db"), 0)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return NewImporter(s, logging.NewWriter(&bytes.Buffer{}, logging.LevelDebug, logging.FormatText)), s
}

func TestImport(t *testing.T) {
	im, s := newImporter(t)
	path := filepath.Join(t.TempDir(), "Caret.keylayout")
	writeKeylayout(t, path, caretLayout("Caret"))

	rec, warnings, err := im.Import(path)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("unexpected warnings: %v", warnings)
	}
	if rec.Name != "Caret" || rec.Source != path {
		t.Errorf("unexpected record %+v", rec)
	}

	l, err := s.Load("Caret")
	if err != nil {
		t.Fatal(err)
	}
	if got := l.Sequences(modifier.None); len(got) != 2 || got[1].Output != "ê" {
		t.Errorf("sequences = %v", got)
	}
}

func TestImportUsesFileNameForUnnamedLayout(t *testing.T) {
	im, _ := newImporter(t)
	path := filepath.Join(t.TempDir(), "Nameless.keylayout")
	writeKeylayout(t, path, caretLayout(""))

	rec, _, err := im.Import(path)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if rec.Name != "Nameless" {
		t.Errorf("name = %q", rec.Name)
	}
}

func TestImportRejectsBrokenFile(t *testing.T) {
	im, s := newImporter(t)
	path := filepath.Join(t.TempDir(), "Broken.keylayout")
	if err := os.WriteFile(path, []byte("<keyboard"), 0600); err != nil {
		t.Fatal(err)
	}

	if _, _, err := im.Import(path); err == nil {
		t.Fatal("expected error")
	}
	if _, err := s.FindBySource(path); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("broken file was stored: %v", err)
	}
}

func TestImportRecordsMetrics(t *testing.T) {
	im, _ := newImporter(t)
	im.Metrics = metrics.NewWatchMetrics(metrics.NewRegistry("elk"))
	dir := t.TempDir()

	good := filepath.Join(dir, "Caret.keylayout")
	writeKeylayout(t, good, caretLayout("Caret"))
	broken := filepath.Join(dir, "Broken.keylayout")
	if err := os.WriteFile(broken, []byte("<keyboard"), 0600); err != nil {
		t.Fatal(err)
	}

	if _, _, err := im.Import(good); err != nil {
		t.Fatal(err)
	}
	im.Import(broken)

	if got := im.Metrics.Imported.Value(); got != 1 {
		t.Errorf("imported = %d, want 1", got)
	}
	if got := im.Metrics.ImportErrors.Value(); got != 1 {
		t.Errorf("errors = %d, want 1", got)
	}
	if got := im.Metrics.ImportDuration.Count(); got != 2 {
		t.Errorf("durations = %d, want 2", got)
	}
	if got := im.Metrics.Sequences.Value(); got != 2 {
		t.Errorf("sequences = %d, want 2", got)
	}
}

func TestImporterRun(t *testing.T) {
	im, s := newImporter(t)
	dir := t.TempDir()

	w, err := New([]string{dir}, nil, 100*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- im.Run(ctx, w) }()

	path := filepath.Join(dir, "Watched.keylayout")
	writeKeylayout(t, path, caretLayout("Watched"))

	deadline := time.Now().Add(3 * time.Second)
	for {
		if rec, err := s.FindBySource(path); err == nil {
			if rec.Name != "Watched" {
				t.Errorf("name = %q", rec.Name)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timeout waiting for import")
		}
		time.Sleep(50 * time.Millisecond)
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run returned %v", err)
	}
	w.Stop()
}

func TestExistingFilesNotReported(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "old.keylayout")
	if err := os.WriteFile(path, []byte("old"), 0600); err != nil {
		t.Fatal(err)
	}

	w, err := New([]string{dir}, nil, 100*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	w.ReportExisting = false
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if w.TrackedFiles() != 0 {
		t.Errorf("existing file queued")
	}

	// Same content again: nothing to report.
	if err := os.WriteFile(path, []byte("old"), 0600); err != nil {
		t.Fatal(err)
	}
	select {
	case ev := <-w.Events():
		t.Errorf("unexpected event %+v", ev)
	case <-time.After(500 * time.Millisecond):
	}

	if err := os.WriteFile(path, []byte("new"), 0600); err != nil {
		t.Fatal(err)
	}
	select {
	case ev := <-w.Events():
		if ev.Path != path {
			t.Errorf("unexpected path %s", ev.Path)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for changed file")
	}
}
