package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sync"
	"time"
)

// CrashReport describes a recovered panic.
type CrashReport struct {
	Timestamp  time.Time         `json:"timestamp"`
	Version    string            `json:"version,omitempty"`
	GOOS       string            `json:"goos"`
	GOARCH     string            `json:"goarch"`
	PanicValue string            `json:"panic_value"`
	StackTrace string            `json:"stack_trace"`
	Component  string            `json:"component,omitempty"`
	Layout     string            `json:"layout,omitempty"`
	SessionID  string            `json:"session_id,omitempty"`
	Context    map[string]string `json:"context,omitempty"`
}

// CrashHandler turns panics into crash reports written to a directory.
type CrashHandler struct {
	mu        sync.Mutex
	crashDir  string
	version   string
	component string
	layout    string
	sessionID string

	// Stderr receives the short crash notice; nil discards it.
	Stderr io.Writer

	// OnCrash runs after the report is written, before Recover returns.
	// The interactive loop uses it to restore the terminal.
	OnCrash func(CrashReport)
}

// DefaultCrashDir returns the platform-specific crash directory.
func DefaultCrashDir() string {
	return filepath.Join(filepath.Dir(defaultLogPath()), "crashes")
}

// NewCrashHandler creates a handler writing to dir, or DefaultCrashDir when
// dir is empty.
func NewCrashHandler(dir, component, version string) *CrashHandler {
	if dir == "" {
		dir = DefaultCrashDir()
	}
	return &CrashHandler{
		crashDir:  dir,
		component: component,
		version:   version,
		Stderr:    os.Stderr,
	}
}

// SetLayout records the layout in use.
func (h *CrashHandler) SetLayout(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.layout = name
}

// SetSessionID records the current composition session.
func (h *CrashHandler) SetSessionID(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessionID = id
}

// Recover runs fn and converts a panic into a crash report. The returned
// error names the report file.
func (h *CrashHandler) Recover(contextInfo map[string]string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = h.HandlePanic(r, contextInfo)
		}
	}()
	return fn()
}

// HandlePanic writes a report for panicValue and returns an error describing
// where it went.
func (h *CrashHandler) HandlePanic(panicValue any, contextInfo map[string]string) error {
	h.mu.Lock()
	report := CrashReport{
		Timestamp:  time.Now().UTC(),
		Version:    h.version,
		GOOS:       runtime.GOOS,
		GOARCH:     runtime.GOARCH,
		PanicValue: fmt.Sprintf("%v", panicValue),
		StackTrace: string(debug.Stack()),
		Component:  h.component,
		Layout:     h.layout,
		SessionID:  h.sessionID,
		Context:    contextInfo,
	}
	onCrash := h.OnCrash
	h.mu.Unlock()

	path, werr := h.writeCrashDump(report)

	if onCrash != nil {
		onCrash(report)
	}
	if h.Stderr != nil {
		fmt.Fprintf(h.Stderr, "elk: panic: %s\n", report.PanicValue)
		if werr == nil {
			fmt.Fprintf(h.Stderr, "crash report written to %s\n", path)
		}
	}
	if werr != nil {
		return fmt.Errorf("panic: %s (crash report not written: %v)", report.PanicValue, werr)
	}
	return fmt.Errorf("panic: %s (report: %s)", report.PanicValue, path)
}

func (h *CrashHandler) writeCrashDump(report CrashReport) (string, error) {
	if err := os.MkdirAll(h.crashDir, 0750); err != nil {
		return "", fmt.Errorf("create crash directory: %w", err)
	}
	name := fmt.Sprintf("crash-%s-%s.json", report.Component, report.Timestamp.Format("20060102-150405.000"))
	path := filepath.Join(h.crashDir, name)

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal crash report: %w", err)
	}
	if err := os.WriteFile(path, data, 0640); err != nil {
		return "", fmt.Errorf("write crash report: %w", err)
	}
	return path, nil
}

// CrashReports returns the reports in the crash directory.
func (h *CrashHandler) CrashReports() ([]CrashReport, error) {
	files, err := filepath.Glob(filepath.Join(h.crashDir, "crash-*.json"))
	if err != nil {
		return nil, err
	}

	reports := make([]CrashReport, 0, len(files))
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			continue
		}
		var report CrashReport
		if err := json.Unmarshal(data, &report); err != nil {
			continue
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// CleanupOldCrashReports removes reports older than maxAge.
func (h *CrashHandler) CleanupOldCrashReports(maxAge time.Duration) error {
	files, err := filepath.Glob(filepath.Join(h.crashDir, "crash-*.json"))
	if err != nil {
		return err
	}

	cutoff := time.Now().Add(-maxAge)
	for _, file := range files {
		info, err := os.Stat(file)
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			os.Remove(file)
		}
	}
	return nil
}
