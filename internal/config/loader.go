package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// reloadDelay is how long the file must stay quiet before a reload.
const reloadDelay = 100 * time.Millisecond

// Loader reads one configuration file and optionally follows edits to it.
type Loader struct {
	path string

	mu        sync.RWMutex
	current   *Config
	listeners []func(prev, next *Config)

	fsw    *fsnotify.Watcher
	errs   chan error
	closed chan struct{}
	done   chan struct{}
}

// NewLoader returns a loader for path, or for ConfigPath when path is
// empty.
func NewLoader(path string) *Loader {
	if path == "" {
		path = ConfigPath()
	}
	return &Loader{
		path:   path,
		errs:   make(chan error, 1),
		closed: make(chan struct{}),
	}
}

// Path returns the file the loader reads.
func (l *Loader) Path() string { return l.path }

// Load reads the file and makes it the current configuration if it
// validates.
func (l *Loader) Load() (*Config, error) {
	cfg, err := l.read()
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.current = cfg
	l.mu.Unlock()
	return cfg, nil
}

func (l *Loader) read() (*Config, error) {
	cfg, err := Load(l.path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", l.path, err)
	}
	return cfg, nil
}

// Config returns the configuration from the last successful Load or reload.
func (l *Loader) Config() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// OnChange registers fn to run after each successful reload.
func (l *Loader) OnChange(fn func(prev, next *Config)) {
	l.mu.Lock()
	l.listeners = append(l.listeners, fn)
	l.mu.Unlock()
}

// Errors delivers reload failures. Invalid files leave the current
// configuration in place.
func (l *Loader) Errors() <-chan error { return l.errs }

// Watch follows the file until Close. The parent directory is watched
// since editors usually replace the file rather than write it in place.
func (l *Loader) Watch() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(l.path)); err != nil {
		fsw.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(l.path), err)
	}
	l.fsw = fsw
	l.done = make(chan struct{})
	go l.follow()
	return nil
}

func (l *Loader) follow() {
	defer close(l.done)

	timer := time.NewTimer(reloadDelay)
	timer.Stop()
	defer timer.Stop()

	name := filepath.Base(l.path)
	for {
		select {
		case <-l.closed:
			return
		case ev, ok := <-l.fsw.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) == name && ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				timer.Reset(reloadDelay)
			}
		case err, ok := <-l.fsw.Errors:
			if !ok {
				return
			}
			l.report(err)
		case <-timer.C:
			l.reload()
		}
	}
}

func (l *Loader) reload() {
	next, err := l.read()
	if err != nil {
		l.report(fmt.Errorf("reload: %w", err))
		return
	}

	l.mu.Lock()
	prev := l.current
	l.current = next
	listeners := slices.Clone(l.listeners)
	l.mu.Unlock()

	for _, fn := range listeners {
		fn(prev, next)
	}
}

func (l *Loader) report(err error) {
	select {
	case l.errs <- err:
	default:
	}
}

// Close stops watching. It is safe to call without Watch.
func (l *Loader) Close() error {
	select {
	case <-l.closed:
		return nil
	default:
		close(l.closed)
	}
	if l.fsw == nil {
		return nil
	}
	err := l.fsw.Close()
	<-l.done
	return err
}

type decodeFunc func(data []byte, cfg *Config) error

var decoders = map[string]decodeFunc{
	".toml": func(data []byte, cfg *Config) error { return toml.Unmarshal(data, cfg) },
	".json": func(data []byte, cfg *Config) error { return json.Unmarshal(data, cfg) },
	".yaml": func(data []byte, cfg *Config) error { return yaml.Unmarshal(data, cfg) },
	".yml":  func(data []byte, cfg *Config) error { return yaml.Unmarshal(data, cfg) },
}

// loadConfigFromFile decodes path over the defaults, choosing the format
// from the extension. Files without a known extension are tried as TOML,
// JSON and YAML in turn. A missing file yields the defaults.
func loadConfigFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	ext := filepath.Ext(path)
	if decode, ok := decoders[ext]; ok {
		if err := decode(data, cfg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", ext, err)
		}
		return cfg, nil
	}

	for _, ext := range []string{".toml", ".json", ".yaml"} {
		attempt := DefaultConfig()
		if decoders[ext](data, attempt) == nil {
			return attempt, nil
		}
	}
	return nil, fmt.Errorf("%s: not TOML, JSON or YAML", path)
}

// LoadOrCreate loads the configuration at path, first writing the defaults
// there if the file does not exist. The boolean reports creation.
func LoadOrCreate(path string) (*Config, bool, error) {
	if path == "" {
		path = ConfigPath()
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		cfg := DefaultConfig()
		if err := SaveConfig(cfg, path); err != nil {
			return nil, false, fmt.Errorf("create default config: %w", err)
		}
		cfg.ApplyEnvOverrides()
		return cfg, true, nil
	}

	cfg, err := NewLoader(path).Load()
	return cfg, false, err
}
