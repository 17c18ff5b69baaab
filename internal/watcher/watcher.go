// Package watcher monitors layout directories and reports files that have
// settled after a change.
package watcher

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/crypto/blake2b"
)

// DefaultPatterns selects the files watched when no pattern is given.
var DefaultPatterns = []string{"*.keylayout"}

const defaultDebounce = 500 * time.Millisecond

// Event reports a file whose content changed and then stayed untouched for
// the debounce interval.
type Event struct {
	Path      string
	Hash      [32]byte
	Size      int64
	Timestamp time.Time
}

// Watcher reports settled layout files under a set of paths. A path may
// be a directory (not recursive) or a single file.
type Watcher struct {
	// ReportExisting makes Start report matching files that are already
	// present. When false they are only hashed, so later rewrites with the
	// same content stay silent.
	ReportExisting bool

	fsw      *fsnotify.Watcher
	paths    []string
	patterns []string
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]time.Time // last change, per file waiting to settle
	seen    map[string][32]byte  // hash of the last reported content

	events  chan Event
	errors  chan error
	started bool
	quit    chan struct{}
	done    chan struct{}
}

// New creates a watcher over paths. Only files whose base name matches one
// of patterns are reported. Nothing is watched until Start.
func New(paths, patterns []string, debounce time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	return &Watcher{
		ReportExisting: true,
		fsw:            fsw,
		paths:          paths,
		patterns:       patterns,
		debounce:       debounce,
		pending:        make(map[string]time.Time),
		seen:           make(map[string][32]byte),
		events:         make(chan Event, 100),
		errors:         make(chan error, 10),
		quit:           make(chan struct{}),
		done:           make(chan struct{}),
	}, nil
}

// Events delivers settled files. It is closed by Stop.
func (w *Watcher) Events() <-chan Event { return w.events }

// Errors delivers watch and hashing failures. It is closed by Stop.
func (w *Watcher) Errors() <-chan error { return w.errors }

// WatchedPaths returns the paths given to New.
func (w *Watcher) WatchedPaths() []string { return w.paths }

// TrackedFiles returns the number of files waiting to settle.
func (w *Watcher) TrackedFiles() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// Matches reports whether path has a watched file name.
func (w *Watcher) Matches(path string) bool {
	base := filepath.Base(path)
	for _, p := range w.patterns {
		if ok, _ := filepath.Match(p, base); ok {
			return true
		}
	}
	return false
}

// Start registers every path and picks up the matching files already there.
func (w *Watcher) Start() error {
	for _, p := range w.paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		info, err := os.Stat(abs)
		if err != nil {
			return err
		}

		if !info.IsDir() {
			if err := w.fsw.Add(filepath.Dir(abs)); err != nil {
				return err
			}
			w.addExisting(abs)
			continue
		}

		if err := w.fsw.Add(abs); err != nil {
			return err
		}
		entries, err := os.ReadDir(abs)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if !e.IsDir() {
				w.addExisting(filepath.Join(abs, e.Name()))
			}
		}
	}

	w.started = true
	go w.loop()
	return nil
}

// Stop ends watching and closes the Events and Errors channels.
func (w *Watcher) Stop() error {
	select {
	case <-w.quit:
		return nil
	default:
	}
	close(w.quit)
	err := w.fsw.Close()
	if w.started {
		<-w.done
	}
	close(w.events)
	close(w.errors)
	return err
}

func (w *Watcher) addExisting(path string) {
	if !w.Matches(path) {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.ReportExisting {
		w.pending[path] = time.Now()
		return
	}
	if hash, _, err := HashFile(path); err == nil {
		w.seen[path] = hash
	}
}

func (w *Watcher) loop() {
	defer close(w.done)

	tick := max(w.debounce/4, 10*time.Millisecond)
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-w.quit:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.sendError(err)
		case now := <-ticker.C:
			w.settle(now)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if !w.Matches(ev.Name) {
		return
	}
	switch {
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		w.mu.Lock()
		delete(w.pending, ev.Name)
		delete(w.seen, ev.Name)
		w.mu.Unlock()
	case ev.Op&(fsnotify.Write|fsnotify.Create) != 0:
		if info, err := os.Stat(ev.Name); err != nil || info.IsDir() {
			return
		}
		w.mu.Lock()
		w.pending[ev.Name] = time.Now()
		w.mu.Unlock()
	}
}

func (w *Watcher) sendError(err error) {
	select {
	case w.errors <- err:
	default:
	}
}

// settle reports the files that have been quiet for the debounce interval.
// Files are hashed without holding the lock; a file touched while it was
// hashed waits for the next tick.
func (w *Watcher) settle(now time.Time) {
	cutoff := now.Add(-w.debounce)

	w.mu.Lock()
	quiet := make(map[string]time.Time)
	for path, changed := range w.pending {
		if changed.Before(cutoff) {
			quiet[path] = changed
		}
	}
	w.mu.Unlock()

	for path, changed := range quiet {
		hash, size, err := HashFile(path)

		w.mu.Lock()
		if w.pending[path] != changed {
			w.mu.Unlock()
			continue
		}
		if err != nil {
			delete(w.pending, path)
			w.mu.Unlock()
			w.sendError(err)
			continue
		}
		if prev, ok := w.seen[path]; ok && prev == hash {
			delete(w.pending, path)
			w.mu.Unlock()
			continue
		}

		select {
		case w.events <- Event{Path: path, Hash: hash, Size: size, Timestamp: now}:
			delete(w.pending, path)
			w.seen[path] = hash
		default:
			// Full; retried on the next tick.
		}
		w.mu.Unlock()
	}
}

// HashFile returns the BLAKE2b-256 digest and size of a file.
func HashFile(path string) ([32]byte, int64, error) {
	var sum [32]byte
	f, err := os.Open(path)
	if err != nil {
		return sum, 0, err
	}
	defer f.Close()

	h, err := blake2b.New256(nil)
	if err != nil {
		return sum, 0, err
	}
	n, err := io.Copy(h, f)
	if err != nil {
		return sum, 0, err
	}
	copy(sum[:], h.Sum(nil))
	return sum, n, nil
}
