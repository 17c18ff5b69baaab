// Package config handles configuration loading, validation, and management for elk.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"elk/internal/logging"
)

// Version is the current configuration schema version.
const Version = 2

// Config holds the complete elk configuration.
type Config struct {
	// Version is the configuration schema version for migrations.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Layouts configures the directories of .keylayout files.
	Layouts LayoutsConfig `toml:"layouts" json:"layouts" yaml:"layouts"`

	// Storage configures the layout library.
	Storage StorageConfig `toml:"storage" json:"storage" yaml:"storage"`

	// Compiler holds defaults for compile.
	Compiler CompilerConfig `toml:"compiler" json:"compiler" yaml:"compiler"`

	// Engine configures interactive composition.
	Engine EngineConfig `toml:"engine" json:"engine" yaml:"engine"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`

	mu sync.RWMutex `toml:"-" json:"-" yaml:"-"`
}

// LayoutsConfig holds layout directory configuration.
type LayoutsConfig struct {
	// Dirs are watched and imported by "elk watch".
	Dirs []string `toml:"dirs" json:"dirs" yaml:"dirs"`

	// IncludePatterns are glob patterns matched against file names.
	IncludePatterns []string `toml:"include_patterns" json:"include_patterns" yaml:"include_patterns"`

	// DebounceMs is how long a file must be unchanged before it is imported.
	DebounceMs int `toml:"debounce_ms" json:"debounce_ms" yaml:"debounce_ms"`

	// ImportExisting imports files already present when watching starts.
	ImportExisting bool `toml:"import_existing" json:"import_existing" yaml:"import_existing"`
}

// StorageConfig holds layout library configuration.
type StorageConfig struct {
	// Path is the SQLite database file.
	Path string `toml:"path" json:"path" yaml:"path"`

	// BusyTimeoutMs is the SQLite busy timeout in milliseconds.
	BusyTimeoutMs int `toml:"busy_timeout_ms" json:"busy_timeout_ms" yaml:"busy_timeout_ms"`
}

// CompilerConfig holds compile defaults.
type CompilerConfig struct {
	FillControlKeys bool `toml:"fill_control_keys" json:"fill_control_keys" yaml:"fill_control_keys"`

	// Group is the keyboard group; 0 selects Unicode.
	Group int `toml:"group" json:"group" yaml:"group"`
}

// EngineConfig holds composition settings.
type EngineConfig struct {
	// DefaultLayout names the stored layout used when none is given.
	DefaultLayout string `toml:"default_layout" json:"default_layout" yaml:"default_layout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is text or json.
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is stdout, stderr, file or both.
	Output string `toml:"output" json:"output" yaml:"output"`

	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`

	MaxSizeMB int `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`

	MaxBackups int `toml:"max_backups" json:"max_backups" yaml:"max_backups"`

	MaxAgeDays int `toml:"max_age_days" json:"max_age_days" yaml:"max_age_days"`

	Compress bool `toml:"compress" json:"compress" yaml:"compress"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	dir := ElkDir()

	return &Config{
		Version: Version,
		Layouts: LayoutsConfig{
			Dirs:            []string{},
			IncludePatterns: []string{"*.keylayout"},
			DebounceMs:      500,
			ImportExisting:  true,
		},
		Storage: StorageConfig{
			Path:          filepath.Join(dir, "layouts.db"),
			BusyTimeoutMs: 5000,
		},
		Compiler: CompilerConfig{
			FillControlKeys: true,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			FilePath:   filepath.Join(PlatformLogDir(), "elk.log"),
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
	}
}

// ConfigPath returns the configuration file to use when none is given: the
// first existing file in the search path, otherwise config.toml in ElkDir.
func ConfigPath() string {
	if p := os.Getenv("ELK_CONFIG"); p != "" {
		return p
	}
	if p := FindConfigFile(); p != "" {
		return p
	}
	return filepath.Join(ElkDir(), "config.toml")
}

// Load reads configuration from path. A missing file yields the defaults.
// TOML, JSON and YAML are chosen by extension.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}

	cfg, err := loadConfigFromFile(path)
	if err != nil {
		return nil, err
	}
	if cfg.Version < Version {
		MigrateConfig(cfg)
	}
	cfg.ApplyEnvOverrides()
	cfg.expandPaths()

	return cfg, nil
}

// Validate checks the configuration for errors. Warnings alone do not fail.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// EnsureDirectories creates the directories the configured files live in.
func (c *Config) EnsureDirectories() error {
	dirs := []string{filepath.Dir(c.Storage.Path)}
	if c.Logging.Output == "file" || c.Logging.Output == "both" {
		dirs = append(dirs, filepath.Dir(c.Logging.FilePath))
	}

	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// ElkDir returns the base data directory. ELK_DATA_DIR overrides the
// platform default.
func ElkDir() string {
	if envDir := os.Getenv("ELK_DATA_DIR"); envDir != "" {
		return envDir
	}
	return PlatformDataDir()
}

// ApplyEnvOverrides applies ELK_* environment variables.
func (c *Config) ApplyEnvOverrides() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v := os.Getenv("ELK_LAYOUT_DIRS"); v != "" {
		c.Layouts.Dirs = filepath.SplitList(v)
	}

	if v := os.Getenv("ELK_STORAGE_PATH"); v != "" {
		c.Storage.Path = v
	}

	if v := os.Getenv("ELK_DEFAULT_LAYOUT"); v != "" {
		c.Engine.DefaultLayout = v
	}

	if v := os.Getenv("ELK_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("ELK_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("ELK_LOG_PATH"); v != "" {
		c.Logging.FilePath = v
	}
}

func (c *Config) expandPaths() {
	for i, d := range c.Layouts.Dirs {
		c.Layouts.Dirs[i] = expandPath(d)
	}
	c.Storage.Path = expandPath(c.Storage.Path)
	c.Logging.FilePath = expandPath(c.Logging.FilePath)
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	clone := &Config{
		Version:  c.Version,
		Layouts:  c.Layouts,
		Storage:  c.Storage,
		Compiler: c.Compiler,
		Engine:   c.Engine,
		Logging:  c.Logging,
	}
	clone.Layouts.Dirs = append([]string{}, c.Layouts.Dirs...)
	clone.Layouts.IncludePatterns = append([]string{}, c.Layouts.IncludePatterns...)

	return clone
}

// Debounce returns the layout debounce interval.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.Layouts.DebounceMs) * time.Millisecond
}

// BusyTimeout returns the SQLite busy timeout.
func (c *Config) BusyTimeout() time.Duration {
	return time.Duration(c.Storage.BusyTimeoutMs) * time.Millisecond
}

// LoggerConfig converts the logging section for logging.New.
func (c *Config) LoggerConfig() (*logging.Config, error) {
	level, err := logging.ParseLevel(c.Logging.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(c.Logging.Format)
	if err != nil {
		return nil, err
	}
	return &logging.Config{
		Level:      level,
		Format:     format,
		Output:     strings.ToLower(c.Logging.Output),
		FilePath:   c.Logging.FilePath,
		MaxSize:    int64(c.Logging.MaxSizeMB),
		MaxAge:     c.Logging.MaxAgeDays,
		MaxBackups: c.Logging.MaxBackups,
		Compress:   c.Logging.Compress,
		Component:  "elk",
	}, nil
}
