package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidConfig matches every error returned by Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

// maxGroup is the highest keyboard group number.
const maxGroup = 126

// ValidationError is one problem with a configuration field. Warnings
// describe settings that may become valid without editing the file, such
// as a layout directory that has not been created yet.
type ValidationError struct {
	Field   string
	Message string
	Warning bool
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// IsWarning reports whether the problem is non-fatal.
func (e *ValidationError) IsWarning() bool { return e.Warning }

// ValidationErrors is the result of Check.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i := range e {
		msgs[i] = e[i].Error()
	}
	return strings.Join(msgs, "; ")
}

func (e ValidationErrors) Unwrap() error { return ErrInvalidConfig }

func (e ValidationErrors) filter(warnings bool) ValidationErrors {
	var out ValidationErrors
	for _, v := range e {
		if v.Warning == warnings {
			out = append(out, v)
		}
	}
	return out
}

// Warnings returns the non-fatal problems.
func (e ValidationErrors) Warnings() ValidationErrors { return e.filter(true) }

// Errors returns the fatal problems.
func (e ValidationErrors) Errors() ValidationErrors { return e.filter(false) }

// HasErrors reports whether any problem is fatal.
func (e ValidationErrors) HasErrors() bool { return len(e.Errors()) > 0 }

// RequiredFieldError reports an empty mandatory field.
func RequiredFieldError(field string) *ValidationError {
	return &ValidationError{Field: field, Message: "required field is missing"}
}

// RangeError reports a value outside [min, max].
func RangeError(field string, min, max any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf("value must be between %v and %v", min, max)}
}

type checker struct {
	errs ValidationErrors
}

func (c *checker) fail(field, format string, args ...any) {
	c.errs = append(c.errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (c *checker) warn(field, format string, args ...any) {
	c.errs = append(c.errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...), Warning: true})
}

func (c *checker) add(e *ValidationError) { c.errs = append(c.errs, *e) }

// Check returns every problem found in c, warnings included, in field
// order.
func Check(c *Config) ValidationErrors {
	var ck checker
	if c.Version < 1 || c.Version > Version {
		ck.fail("version", "unsupported version %d (current: %d)", c.Version, Version)
	}
	ck.layouts(&c.Layouts)
	ck.storage(&c.Storage)
	if c.Compiler.Group < 0 || c.Compiler.Group > maxGroup {
		ck.add(RangeError("compiler.group", 0, maxGroup))
	}
	ck.logging(&c.Logging)
	return ck.errs
}

// ValidateConfig returns the fatal problems of c, or nil.
func ValidateConfig(c *Config) error {
	if errs := Check(c).Errors(); len(errs) > 0 {
		return errs
	}
	return nil
}

func (ck *checker) layouts(l *LayoutsConfig) {
	for i, dir := range l.Dirs {
		field := fmt.Sprintf("layouts.dirs[%d]", i)
		if dir == "" {
			ck.warn(field, "empty directory")
			continue
		}
		info, err := os.Stat(expandPath(dir))
		if os.IsNotExist(err) {
			ck.warn(field, "directory does not exist: %s", dir)
		} else if err == nil && !info.IsDir() {
			ck.warn(field, "not a directory: %s", dir)
		}
	}

	for i, pattern := range l.IncludePatterns {
		if _, err := filepath.Match(pattern, "x.keylayout"); pattern == "" || err != nil {
			ck.fail(fmt.Sprintf("layouts.include_patterns[%d]", i), "invalid glob pattern: %q", pattern)
		}
	}

	switch {
	case l.DebounceMs < 0:
		ck.fail("layouts.debounce_ms", "debounce cannot be negative")
	case l.DebounceMs > 60000:
		ck.add(RangeError("layouts.debounce_ms", 0, 60000))
	}
}

func (ck *checker) storage(s *StorageConfig) {
	if s.Path == "" {
		ck.add(RequiredFieldError("storage.path"))
	}
	if s.BusyTimeoutMs < 0 {
		ck.fail("storage.busy_timeout_ms", "busy timeout cannot be negative")
	}
}

func (ck *checker) logging(l *LoggingConfig) {
	if _, ok := map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}[strings.ToLower(l.Level)]; !ok {
		ck.fail("logging.level", "invalid log level: %s (valid: debug, info, warn, error)", l.Level)
	}
	if f := strings.ToLower(l.Format); f != "text" && f != "json" {
		ck.fail("logging.format", "invalid log format: %s (valid: text, json)", l.Format)
	}

	switch strings.ToLower(l.Output) {
	case "stdout", "stderr":
	case "file", "both":
		if l.FilePath == "" {
			ck.fail("logging.file_path", "file path is required when output is %q", l.Output)
		}
		if l.MaxSizeMB < 1 {
			ck.fail("logging.max_size_mb", "max size must be at least 1 MB")
		}
	default:
		ck.fail("logging.output", "invalid log output: %q (valid: stdout, stderr, file, both)", l.Output)
	}

	if l.MaxBackups < 0 {
		ck.fail("logging.max_backups", "max backups cannot be negative")
	}
	if l.MaxAgeDays < 0 {
		ck.fail("logging.max_age_days", "max age cannot be negative")
	}
}

// expandPath replaces a leading "~/" with the home directory.
func expandPath(path string) string {
	rest, ok := strings.CutPrefix(path, "~/")
	if !ok {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, rest)
}
