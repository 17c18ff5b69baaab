package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// dirs are the per-user locations elk uses on one platform.
type dirs struct {
	data, config, logs string
}

// platformDirs follows each platform's convention:
//
//	macOS:   ~/Library/Application Support/elk, logs in ~/Library/Logs/elk
//	Linux:   $XDG_DATA_HOME/elk and $XDG_CONFIG_HOME/elk
//	Windows: %APPDATA%\elk, logs in %LOCALAPPDATA%\elk\logs
//
// Other systems use ~/.elk for everything.
func platformDirs() dirs {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	env := func(name string, fallback ...string) string {
		if v := os.Getenv(name); v != "" {
			return filepath.Join(v, "elk")
		}
		return filepath.Join(append([]string{home}, fallback...)...)
	}

	switch runtime.GOOS {
	case "darwin":
		support := filepath.Join(home, "Library", "Application Support", "elk")
		return dirs{data: support, config: support, logs: filepath.Join(home, "Library", "Logs", "elk")}
	case "linux":
		data := env("XDG_DATA_HOME", ".local", "share", "elk")
		return dirs{data: data, config: env("XDG_CONFIG_HOME", ".config", "elk"), logs: filepath.Join(data, "logs")}
	case "windows":
		roaming := env("APPDATA", "AppData", "Roaming", "elk")
		local := env("LOCALAPPDATA", "AppData", "Local", "elk")
		return dirs{data: roaming, config: roaming, logs: filepath.Join(local, "logs")}
	}
	base := filepath.Join(home, ".elk")
	return dirs{data: base, config: base, logs: filepath.Join(base, "logs")}
}

// PlatformDataDir is where the layout database lives by default.
func PlatformDataDir() string { return platformDirs().data }

// PlatformConfigDir is searched for config.toml and friends.
func PlatformConfigDir() string { return platformDirs().config }

// PlatformLogDir holds elk.log when logging to a file.
func PlatformLogDir() string { return platformDirs().logs }

// configNames are tried in order in each search directory.
var configNames = []string{"config.toml", "config.json", "config.yaml", "config.yml"}

// FindConfigFile looks for a config file in the working directory, then
// the config directory, then the data directory. It returns "" when there
// is none.
func FindConfigFile() string {
	d := platformDirs()
	for _, dir := range []string{".", d.config, ElkDir()} {
		for _, name := range configNames {
			if p := filepath.Join(dir, name); fileExists(p) {
				return p
			}
		}
	}
	return ""
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
