package logging

import (
	"cmp"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
)

const megabyte = 1 << 20

// FileRotator is an io.Writer over a log file that is renamed aside once
// it would grow past MaxSize megabytes. Rotated files carry a timestamp,
// are gzipped when Compress is set, and are pruned to MaxBackups files no
// older than MaxAge days.
type FileRotator struct {
	path       string
	maxBytes   int64
	maxBackups int
	maxAge     time.Duration
	compress   bool

	mu   sync.Mutex
	file *os.File
	size int64

	housekeeping sync.WaitGroup
}

// NewFileRotator opens cfg.FilePath for appending, creating its directory.
func NewFileRotator(cfg *Config) (*FileRotator, error) {
	r := &FileRotator{
		path:       cfg.FilePath,
		maxBytes:   cfg.MaxSize * megabyte,
		maxBackups: cfg.MaxBackups,
		maxAge:     time.Duration(cfg.MaxAge) * 24 * time.Hour,
		compress:   cfg.Compress,
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0750); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	if err := r.open(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *FileRotator) open() error {
	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0640)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	r.file, r.size = f, info.Size()
	return nil
}

// Write appends p, rotating first if p would push a non-empty file over
// the limit. A single oversized entry is still written whole.
func (r *FileRotator) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		if err := r.open(); err != nil {
			return 0, err
		}
	}
	if r.maxBytes > 0 && r.size > 0 && r.size+int64(len(p)) > r.maxBytes {
		if err := r.rotate(); err != nil {
			return 0, fmt.Errorf("rotate log: %w", err)
		}
	}

	n, err := r.file.Write(p)
	r.size += int64(n)
	return n, err
}

// stem splits the log path into its path without extension and the
// extension.
func (r *FileRotator) stem() (string, string) {
	ext := filepath.Ext(r.path)
	return strings.TrimSuffix(r.path, ext), ext
}

// backupName returns an unused name for a file rotated at t.
func (r *FileRotator) backupName(t time.Time) string {
	stem, ext := r.stem()
	stamp := stem + "-" + t.Format("20060102-150405")
	name := stamp + ext
	for i := 1; exists(name) || exists(name+".gz"); i++ {
		name = fmt.Sprintf("%s.%d%s", stamp, i, ext)
	}
	return name
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (r *FileRotator) rotate() error {
	if err := r.file.Close(); err != nil {
		return fmt.Errorf("close log file: %w", err)
	}
	r.file = nil

	backup := r.backupName(time.Now())
	if err := os.Rename(r.path, backup); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("rename log file: %w", err)
	}
	if err := r.open(); err != nil {
		return err
	}

	r.housekeeping.Add(1)
	go func() {
		defer r.housekeeping.Done()
		if r.compress {
			gzipFile(backup)
		}
		r.cleanup()
	}()
	return nil
}

// gzipFile replaces path with path.gz. On failure the original is kept.
func gzipFile(path string) {
	err := func() error {
		in, err := os.Open(path)
		if err != nil {
			return err
		}
		defer in.Close()

		out, err := os.Create(path + ".gz")
		if err != nil {
			return err
		}
		defer out.Close()

		zw := gzip.NewWriter(out)
		zw.Name = filepath.Base(path)
		if _, err := io.Copy(zw, in); err != nil {
			return err
		}
		return zw.Close()
	}()
	if err != nil {
		os.Remove(path + ".gz")
		return
	}
	os.Remove(path)
}

type backup struct {
	path    string
	modTime time.Time
}

// backups lists rotated files, oldest first.
func (r *FileRotator) backups() []backup {
	stem, ext := r.stem()
	matches, _ := filepath.Glob(stem + "-*" + ext + "*")

	var list []backup
	for _, m := range matches {
		if info, err := os.Stat(m); err == nil {
			list = append(list, backup{m, info.ModTime()})
		}
	}
	slices.SortFunc(list, func(a, b backup) int {
		if c := a.modTime.Compare(b.modTime); c != 0 {
			return c
		}
		return cmp.Compare(a.path, b.path)
	})
	return list
}

// cleanup deletes the oldest backups beyond maxBackups and any older than
// maxAge.
func (r *FileRotator) cleanup() {
	list := r.backups()
	if r.maxBackups > 0 && len(list) > r.maxBackups {
		excess := len(list) - r.maxBackups
		for _, b := range list[:excess] {
			os.Remove(b.path)
		}
		list = list[excess:]
	}
	if r.maxAge > 0 {
		cutoff := time.Now().Add(-r.maxAge)
		for _, b := range list {
			if b.modTime.Before(cutoff) {
				os.Remove(b.path)
			}
		}
	}
}

// Close waits for background compression and closes the file.
func (r *FileRotator) Close() error {
	r.housekeeping.Wait()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

// Sync flushes the current file to disk.
func (r *FileRotator) Sync() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	return r.file.Sync()
}

// LogFiles returns the current log file followed by its backups, oldest
// first.
func (r *FileRotator) LogFiles() []string {
	r.housekeeping.Wait()
	files := []string{r.path}
	for _, b := range r.backups() {
		files = append(files, b.path)
	}
	return files
}
