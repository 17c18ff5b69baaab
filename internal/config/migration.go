package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// MigrationResult describes the changes made by MigrateConfig.
type MigrationResult struct {
	FromVersion int
	ToVersion   int
	Changes     []string
}

// MigrateConfig upgrades cfg in place to the current Version.
func MigrateConfig(cfg *Config) *MigrationResult {
	result := &MigrationResult{FromVersion: cfg.Version, ToVersion: Version}

	if cfg.Version < 1 {
		cfg.Version = 1
		result.Changes = append(result.Changes, "set version to 1")
	}
	if cfg.Version == 1 {
		result.Changes = append(result.Changes, migrateV1ToV2(cfg)...)
		cfg.Version = 2
	}
	return result
}

// Version 1 had no include patterns and stored the database next to the
// config file as elk.db.
func migrateV1ToV2(cfg *Config) []string {
	var changes []string
	if len(cfg.Layouts.IncludePatterns) == 0 {
		cfg.Layouts.IncludePatterns = []string{"*.keylayout"}
		changes = append(changes, "layouts.include_patterns defaulted to *.keylayout")
	}
	if filepath.Base(cfg.Storage.Path) == "elk.db" {
		cfg.Storage.Path = filepath.Join(filepath.Dir(cfg.Storage.Path), "layouts.db")
		changes = append(changes, "storage.path renamed to layouts.db")
	}
	return changes
}

// SaveConfig writes cfg to path in the format its extension names, TOML by
// default.
func SaveConfig(cfg *Config, path string) error {
	cfg.mu.RLock()
	data, err := encode(cfg, filepath.Ext(path))
	cfg.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func encode(cfg *Config, ext string) ([]byte, error) {
	switch strings.ToLower(ext) {
	case ".json":
		return json.MarshalIndent(cfg, "", "  ")
	case ".yaml", ".yml":
		return yaml.Marshal(cfg)
	default:
		var buf bytes.Buffer
		buf.WriteString("# elk configuration\n\n")
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
}
