package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"elk/internal/logging"
)

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("ELK_DATA_DIR", dir)
	for _, v := range []string{"ELK_CONFIG", "ELK_LAYOUT_DIRS", "ELK_STORAGE_PATH", "ELK_DEFAULT_LAYOUT", "ELK_LOG_LEVEL", "ELK_LOG_FORMAT", "ELK_LOG_PATH"} {
		t.Setenv(v, "")
	}
	return dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
}

func TestDefaultConfig(t *testing.T) {
	dir := isolate(t)
	cfg := DefaultConfig()

	if cfg.Version != Version {
		t.Errorf("expected version %d, got %d", Version, cfg.Version)
	}
	if cfg.Debounce() != 500*time.Millisecond {
		t.Errorf("expected debounce 500ms, got %v", cfg.Debounce())
	}
	if cfg.BusyTimeout() != 5*time.Second {
		t.Errorf("expected busy timeout 5s, got %v", cfg.BusyTimeout())
	}
	if cfg.Storage.Path != filepath.Join(dir, "layouts.db") {
		t.Errorf("unexpected storage path %s", cfg.Storage.Path)
	}
	if len(cfg.Layouts.IncludePatterns) != 1 || cfg.Layouts.IncludePatterns[0] != "*.keylayout" {
		t.Errorf("unexpected include patterns %v", cfg.Layouts.IncludePatterns)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

func TestConfigPath(t *testing.T) {
	dir := isolate(t)
	path := ConfigPath()
	if !strings.HasSuffix(path, "config.toml") {
		t.Errorf("expected path ending with config.toml, got %s", path)
	}

	t.Setenv("ELK_CONFIG", filepath.Join(dir, "custom.yaml"))
	if got := ConfigPath(); got != filepath.Join(dir, "custom.yaml") {
		t.Errorf("ELK_CONFIG ignored: %s", got)
	}
}

func TestLoadNonexistent(t *testing.T) {
	isolate(t)
	cfg, err := Load("/nonexistent/path/config.toml")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Layouts.DebounceMs != 500 {
		t.Errorf("expected default debounce, got %d", cfg.Layouts.DebounceMs)
	}
}

func TestLoadTOML(t *testing.T) {
	dir := isolate(t)
	configPath := filepath.Join(dir, "config.toml")
	writeFile(t, configPath, `
# layouts
[layouts]
dirs = ["/tmp/layouts", "/tmp/more"] # inline comment
debounce_ms = 250

[storage]
path = "/custom/path/layouts.db"

[compiler]
fill_control_keys = false
group = 0

[engine]
default_layout = "French"

[logging]
level = "debug"
format = "json"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(cfg.Layouts.Dirs) != 2 || cfg.Layouts.Dirs[0] != "/tmp/layouts" {
		t.Errorf("unexpected dirs %v", cfg.Layouts.Dirs)
	}
	if cfg.Debounce() != 250*time.Millisecond {
		t.Errorf("expected 250ms, got %v", cfg.Debounce())
	}
	if cfg.Storage.Path != "/custom/path/layouts.db" {
		t.Errorf("unexpected storage path %s", cfg.Storage.Path)
	}
	if cfg.Compiler.FillControlKeys {
		t.Error("fill_control_keys not applied")
	}
	if cfg.Engine.DefaultLayout != "French" {
		t.Errorf("unexpected default layout %q", cfg.Engine.DefaultLayout)
	}
	// Unset values keep their defaults.
	if cfg.Storage.BusyTimeoutMs != 5000 || cfg.Logging.Output != "stderr" {
		t.Errorf("defaults lost: %+v %+v", cfg.Storage, cfg.Logging)
	}
}

func TestLoadJSONAndYAML(t *testing.T) {
	dir := isolate(t)

	jsonPath := filepath.Join(dir, "config.json")
	writeFile(t, jsonPath, `{"layouts": {"debounce_ms": 900}, "engine": {"default_layout": "German"}}`)
	cfg, err := Load(jsonPath)
	if err != nil {
		t.Fatalf("Load JSON failed: %v", err)
	}
	if cfg.Layouts.DebounceMs != 900 || cfg.Engine.DefaultLayout != "German" {
		t.Errorf("JSON values not applied: %+v", cfg)
	}

	yamlPath := filepath.Join(dir, "config.yml")
	writeFile(t, yamlPath, "layouts:\n  debounce_ms: 100\nlogging:\n  level: warn\n")
	cfg, err = Load(yamlPath)
	if err != nil {
		t.Fatalf("Load YAML failed: %v", err)
	}
	if cfg.Layouts.DebounceMs != 100 || cfg.Logging.Level != "warn" {
		t.Errorf("YAML values not applied: %+v", cfg)
	}
}

func TestLoadInvalidTOML(t *testing.T) {
	dir := isolate(t)
	configPath := filepath.Join(dir, "config.toml")
	writeFile(t, configPath, "this is not valid toml {{{\n")

	if _, err := Load(configPath); err == nil {
		t.Error("expected error for invalid TOML")
	}
}

func TestEnvOverrides(t *testing.T) {
	dir := isolate(t)
	t.Setenv("ELK_LAYOUT_DIRS", strings.Join([]string{"/a", "/b"}, string(os.PathListSeparator)))
	t.Setenv("ELK_STORAGE_PATH", filepath.Join(dir, "env.db"))
	t.Setenv("ELK_LOG_LEVEL", "error")
	t.Setenv("ELK_DEFAULT_LAYOUT", "Dvorak")

	cfg, err := Load(filepath.Join(dir, "missing.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Layouts.Dirs) != 2 || cfg.Layouts.Dirs[1] != "/b" {
		t.Errorf("unexpected dirs %v", cfg.Layouts.Dirs)
	}
	if cfg.Storage.Path != filepath.Join(dir, "env.db") {
		t.Errorf("unexpected storage path %s", cfg.Storage.Path)
	}
	if cfg.Logging.Level != "error" || cfg.Engine.DefaultLayout != "Dvorak" {
		t.Errorf("overrides not applied: %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	isolate(t)
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"version", func(c *Config) { c.Version = 99 }, "version"},
		{"negative debounce", func(c *Config) { c.Layouts.DebounceMs = -1 }, "layouts.debounce_ms"},
		{"bad pattern", func(c *Config) { c.Layouts.IncludePatterns = []string{"[a"} }, "layouts.include_patterns[0]"},
		{"missing storage", func(c *Config) { c.Storage.Path = "" }, "storage.path"},
		{"group", func(c *Config) { c.Compiler.Group = 127 }, "compiler.group"},
		{"level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"output", func(c *Config) { c.Logging.Output = "syslog" }, "logging.output"},
		{"file path", func(c *Config) { c.Logging.Output = "file"; c.Logging.FilePath = "" }, "logging.file_path"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("error does not match ErrInvalidConfig: %v", err)
			}
			var verrs ValidationErrors
			if !errors.As(err, &verrs) || verrs[0].Field != tt.field {
				t.Errorf("expected field %s, got %v", tt.field, err)
			}
		})
	}
}

func TestMissingLayoutDirIsWarning(t *testing.T) {
	isolate(t)
	cfg := DefaultConfig()
	cfg.Layouts.Dirs = []string{"/nonexistent/layouts"}

	if err := cfg.Validate(); err != nil {
		t.Errorf("missing directory should only warn: %v", err)
	}
	all := Check(cfg)
	if len(all.Warnings()) != 1 || all.HasErrors() {
		t.Errorf("unexpected check result: %v", all)
	}
}

func TestEnsureDirectories(t *testing.T) {
	tmpDir := isolate(t)
	cfg := DefaultConfig()
	cfg.Storage.Path = filepath.Join(tmpDir, "a", "b", "layouts.db")
	cfg.Logging.Output = "file"
	cfg.Logging.FilePath = filepath.Join(tmpDir, "logs", "elk.log")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{filepath.Join(tmpDir, "a", "b"), filepath.Join(tmpDir, "logs")} {
		if _, err := os.Stat(dir); err != nil {
			t.Errorf("%s was not created", dir)
		}
	}
}

func TestCloneIsDeep(t *testing.T) {
	isolate(t)
	cfg := DefaultConfig()
	cfg.Layouts.Dirs = []string{"/one"}
	clone := cfg.Clone()
	clone.Layouts.Dirs[0] = "/two"
	clone.Layouts.IncludePatterns[0] = "*.json"

	if cfg.Layouts.Dirs[0] != "/one" || cfg.Layouts.IncludePatterns[0] != "*.keylayout" {
		t.Error("Clone shares slices with the original")
	}
}

func TestMigrateV1(t *testing.T) {
	dir := isolate(t)
	configPath := filepath.Join(dir, "config.toml")
	writeFile(t, configPath, `
version = 1
[layouts]
include_patterns = []
[storage]
path = "/data/elk.db"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Version != Version {
		t.Errorf("version not migrated: %d", cfg.Version)
	}
	if cfg.Storage.Path != filepath.Join("/data", "layouts.db") {
		t.Errorf("storage path not migrated: %s", cfg.Storage.Path)
	}
	if len(cfg.Layouts.IncludePatterns) != 1 {
		t.Errorf("include patterns not defaulted: %v", cfg.Layouts.IncludePatterns)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := isolate(t)
	cfg := DefaultConfig()
	cfg.Layouts.Dirs = []string{"/layouts"}
	cfg.Engine.DefaultLayout = "French"

	for _, name := range []string{"config.toml", "config.json", "config.yaml"} {
		path := filepath.Join(dir, "saved", name)
		if err := SaveConfig(cfg, path); err != nil {
			t.Fatalf("SaveConfig(%s): %v", name, err)
		}
		back, err := Load(path)
		if err != nil {
			t.Fatalf("Load(%s): %v", name, err)
		}
		if back.Engine.DefaultLayout != "French" || len(back.Layouts.Dirs) != 1 || back.Layouts.Dirs[0] != "/layouts" {
			t.Errorf("%s: round trip lost values: %+v", name, back)
		}
	}
}

func TestLoadOrCreate(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "new", "config.toml")

	_, created, err := LoadOrCreate(path)
	if err != nil || !created {
		t.Fatalf("LoadOrCreate = created %v, err %v", created, err)
	}
	_, created, err = LoadOrCreate(path)
	if err != nil || created {
		t.Fatalf("second LoadOrCreate = created %v, err %v", created, err)
	}
}

func TestLoggerConfig(t *testing.T) {
	isolate(t)
	cfg := DefaultConfig()
	cfg.Logging.Level = "debug"
	cfg.Logging.Format = "json"

	lc, err := cfg.LoggerConfig()
	if err != nil {
		t.Fatal(err)
	}
	if lc.Level != logging.LevelDebug || lc.Format != logging.FormatJSON || lc.MaxSize != 10 {
		t.Errorf("unexpected logger config %+v", lc)
	}

	cfg.Logging.Level = "loud"
	if _, err := cfg.LoggerConfig(); err == nil {
		t.Error("expected error for bad level")
	}
}

func TestLoaderWatchReloads(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "config.toml")
	writeFile(t, path, "[layouts]\ndebounce_ms = 100\n")

	l := NewLoader(path)
	if _, err := l.Load(); err != nil {
		t.Fatal(err)
	}
	changed := make(chan [2]int, 1)
	l.OnChange(func(prev, next *Config) {
		select {
		case changed <- [2]int{prev.Layouts.DebounceMs, next.Layouts.DebounceMs}:
		default:
		}
	})
	if err := l.Watch(); err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	writeFile(t, path, "[layouts]\ndebounce_ms = 300\n")

	select {
	case got := <-changed:
		if got != [2]int{100, 300} {
			t.Errorf("unexpected change %v", got)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for reload")
	}
	if l.Config().Layouts.DebounceMs != 300 {
		t.Errorf("Config not updated: %d", l.Config().Layouts.DebounceMs)
	}
}

func TestLoaderRejectsInvalidReload(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "config.toml")
	writeFile(t, path, "[layouts]\ndebounce_ms = 100\n")

	l := NewLoader(path)
	if _, err := l.Load(); err != nil {
		t.Fatal(err)
	}
	if err := l.Watch(); err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	writeFile(t, path, "[logging]\nlevel = \"loud\"\n")

	select {
	case err := <-l.Errors():
		if !strings.Contains(err.Error(), "logging.level") {
			t.Errorf("unexpected error %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for error")
	}
	if l.Config().Logging.Level != "info" {
		t.Error("invalid config was applied")
	}
}
