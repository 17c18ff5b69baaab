// Package logging configures structured slog loggers for elk commands and
// the layout watcher. Output goes to stderr, stdout, a rotated file, or a
// file plus stderr. Attributes that could carry typed text or secrets are
// redacted before they reach a handler.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
)

// Level is an slog level.
type Level = slog.Level

const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// Format selects the handler used for log records.
type Format int

const (
	FormatText Format = iota
	FormatJSON
)

// Config describes where and how a Logger writes.
type Config struct {
	Level  Level
	Format Format

	// Output is "stderr", "stdout", "file" or "both" (file and stderr).
	Output string

	// FilePath, MaxSize (megabytes), MaxAge (days), MaxBackups and Compress
	// apply when Output writes to a file.
	FilePath   string
	MaxSize    int64
	MaxAge     int
	MaxBackups int
	Compress   bool

	AddSource bool

	// Component is attached to every record unless empty.
	Component string
}

// DefaultConfig logs info and above as text to stderr.
func DefaultConfig() *Config {
	return &Config{
		Level:      LevelInfo,
		Format:     FormatText,
		Output:     "stderr",
		FilePath:   defaultLogPath(),
		MaxSize:    10,
		MaxAge:     30,
		MaxBackups: 5,
		Compress:   true,
		Component:  "elk",
	}
}

func defaultLogPath() string {
	home, _ := os.UserHomeDir()
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Logs", "elk", "elk.log")
	case "windows":
		dir := os.Getenv("LOCALAPPDATA")
		if dir == "" {
			dir = os.Getenv("APPDATA")
		}
		return filepath.Join(dir, "elk", "logs", "elk.log")
	}
	dir := os.Getenv("XDG_STATE_HOME")
	if dir == "" {
		dir = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(dir, "elk", "elk.log")
}

// Logger is an slog.Logger that owns its log file, if any. Loggers derived
// with WithComponent, WithLayout or WithSession share the file.
type Logger struct {
	*slog.Logger
	out *output
}

// output is the destination shared by a logger and its children.
type output struct {
	mu      sync.Mutex
	rotator *FileRotator
}

var (
	defaultMu     sync.Mutex
	defaultLogger *Logger
)

// Default returns the process logger, creating one from DefaultConfig the
// first time.
func Default() *Logger {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultLogger == nil {
		l, err := New(DefaultConfig())
		if err != nil {
			l = &Logger{Logger: slog.Default(), out: &output{}}
		}
		defaultLogger = l
	}
	return defaultLogger
}

// SetDefault makes l the process logger and the slog default.
func SetDefault(l *Logger) {
	defaultMu.Lock()
	defaultLogger = l
	defaultMu.Unlock()
	slog.SetDefault(l.Logger)
}

// New builds a logger from cfg. A nil cfg means DefaultConfig.
func New(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	out := &output{}
	var w io.Writer
	switch strings.ToLower(cfg.Output) {
	case "stdout":
		w = os.Stdout
	case "file", "both":
		r, err := NewFileRotator(cfg)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		out.rotator = r
		w = r
		if strings.EqualFold(cfg.Output, "both") {
			w = io.MultiWriter(os.Stderr, r)
		}
	default:
		w = os.Stderr
	}

	h := newHandler(w, cfg.Format, &slog.HandlerOptions{
		Level:       cfg.Level,
		AddSource:   cfg.AddSource,
		ReplaceAttr: redact,
	})
	if cfg.Component != "" {
		h = h.WithAttrs([]slog.Attr{slog.String("component", cfg.Component)})
	}
	return &Logger{Logger: slog.New(h), out: out}, nil
}

// NewWriter returns a logger that writes to w with no component attribute.
func NewWriter(w io.Writer, level Level, format Format) *Logger {
	h := newHandler(w, format, &slog.HandlerOptions{Level: level, ReplaceAttr: redact})
	return &Logger{Logger: slog.New(h), out: &output{}}
}

func newHandler(w io.Writer, format Format, opts *slog.HandlerOptions) slog.Handler {
	if format == FormatJSON {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// sensitive lists substrings of attribute keys whose values are never
// written. Keys and layouts are fine to log; typed text is not.
var sensitive = []string{
	"password", "secret", "token", "credential",
	"private", "auth", "cookie", "api_key", "typed",
}

func shouldRedact(key string) bool {
	key = strings.ToLower(key)
	for _, s := range sensitive {
		if strings.Contains(key, s) {
			return true
		}
	}
	return false
}

func redact(_ []string, a slog.Attr) slog.Attr {
	if shouldRedact(a.Key) {
		a.Value = slog.StringValue("[REDACTED]")
	}
	return a
}

func (l *Logger) with(key, value string) *Logger {
	return &Logger{Logger: l.Logger.With(key, value), out: l.out}
}

// WithComponent tags records with the subsystem that wrote them.
func (l *Logger) WithComponent(name string) *Logger { return l.with("component", name) }

// WithSession tags records with a composition session id.
func (l *Logger) WithSession(id string) *Logger { return l.with("session_id", id) }

// WithLayout tags records with a layout name.
func (l *Logger) WithLayout(name string) *Logger { return l.with("layout", name) }

// Close closes the log file, if the logger writes to one.
func (l *Logger) Close() error {
	return l.file(func(r *FileRotator) error { return r.Close() })
}

// Sync flushes the log file to disk.
func (l *Logger) Sync() error {
	return l.file(func(r *FileRotator) error { return r.Sync() })
}

func (l *Logger) file(fn func(*FileRotator) error) error {
	if l.out == nil {
		return nil
	}
	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	if l.out.rotator == nil {
		return nil
	}
	return fn(l.out.rotator)
}

var levelNames = map[string]Level{
	"debug":   LevelDebug,
	"info":    LevelInfo,
	"warn":    LevelWarn,
	"warning": LevelWarn,
	"error":   LevelError,
}

// ParseLevel accepts debug, info, warn (or warning) and error in any case.
func ParseLevel(s string) (Level, error) {
	if l, ok := levelNames[strings.ToLower(s)]; ok {
		return l, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level: %s", s)
}

// ParseFormat accepts "text", "json" and the empty string (text).
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	}
	return FormatText, fmt.Errorf("unknown log format: %s", s)
}

// LevelString is the inverse of ParseLevel. Unknown levels print as info.
func LevelString(level Level) string {
	switch level {
	case LevelDebug:
		return "debug"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	}
	return "info"
}
