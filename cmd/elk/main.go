// Command elk compiles keyboard layouts to .keylayout files, parses them
// back, keeps a library of layouts and composes text through their dead
// key sequences.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"elk/internal/config"
	"elk/internal/keylayout"
	"elk/internal/layout"
	"elk/internal/layoutfile"
	"elk/internal/logging"
	"elk/internal/parser"
	"elk/internal/store"
)

// Version is set at build time.
var Version = "dev"

// Output streams, replaced in tests.
var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	if err := run(os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd string, args []string) error {
	switch cmd {
	case "compile":
		return cmdCompile(args)
	case "import":
		return cmdImport(args)
	case "convert":
		return cmdConvert(args)
	case "compose":
		return cmdCompose(args)
	case "type":
		return cmdType(args)
	case "store":
		return cmdStore(args)
	case "watch":
		return cmdWatch(args)
	case "remap-font":
		return cmdRemapFont(args)
	case "config":
		return cmdConfig(args)
	case "version":
		fmt.Fprintf(stdout, "elk %s\n", Version)
		return nil
	case "help", "-h", "--help":
		usage()
		return nil
	default:
		usage()
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

func usage() {
	fmt.Fprintf(stderr, `elk - keyboard layout compiler and composition engine

Usage: elk <command> [options] [arguments]

Layouts:
  compile [-o out] <layout>        Compile a layout to a .keylayout file
  import [-name n] <file>          Parse a .keylayout file into the library
  convert <layout> <out>           Write a layout as .keylayout, .json or .yaml

Composition:
  compose [-m mods] <layout> <text>  Type text through a layout
  type [-m mods] [layout]            Type interactively through a layout

Library:
  store save <file>...             Save layout files to the library
  store list                       List stored layouts
  store show [-format f] <name>    Print a stored layout
  store delete <name>              Remove a stored layout
  store find <keys>                Find dead sequences by their keys
  store verify                     Check stored document fingerprints
  store status                     Show database migration status
  watch [-listen addr]             Import .keylayout files as they change

Other:
  remap-font [-o out] <cmap> <layout>  Re-point a font's key glyphs
  config init|show|validate|path       Manage the configuration file
  version                              Show version information
  help                                 Show this help

A <layout> is a .json, .yaml or .keylayout file, or the name of a stored
layout.

Common options:
  -config path    Configuration file (default: $ELK_CONFIG or the
                  platform config directory)
  -v              Log debug messages

Examples:
  elk import ~/Library/Keyboard\ Layouts/French.keylayout
  elk compile -o French.keylayout french.yaml
  elk compose -m option French "e"
`)
}

// options are the flags every command accepts.
type options struct {
	configPath string
	verbose    bool
}

func newFlagSet(name string) (*flag.FlagSet, *options) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.SetOutput(stderr)
	opts := &options{}
	fs.StringVar(&opts.configPath, "config", "", "Configuration file")
	fs.BoolVar(&opts.verbose, "v", false, "Log debug messages")
	return fs, opts
}

// setup loads the configuration and installs the default logger.
func setup(opts *options) (*config.Config, *logging.Logger, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	logger, err := newLogger(cfg, opts.verbose)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func newLogger(cfg *config.Config, verbose bool) (*logging.Logger, error) {
	lc, err := cfg.LoggerConfig()
	if err != nil {
		return nil, fmt.Errorf("logging config: %w", err)
	}
	if verbose {
		lc.Level = logging.LevelDebug
	}
	logger, err := logging.New(lc)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	logging.SetDefault(logger)
	return logger, nil
}

func openStore(cfg *config.Config) (*store.Store, error) {
	s, err := store.Open(cfg.Storage.Path, cfg.BusyTimeout())
	if err != nil {
		return nil, fmt.Errorf("open layout store: %w", err)
	}
	return s, nil
}

// source resolves layout arguments. The store is opened on first use.
type source struct {
	cfg    *config.Config
	logger *logging.Logger
	store  *store.Store
}

func newSource(cfg *config.Config, logger *logging.Logger) *source {
	return &source{cfg: cfg, logger: logger}
}

func (s *source) Store() (*store.Store, error) {
	if s.store == nil {
		st, err := openStore(s.cfg)
		if err != nil {
			return nil, err
		}
		s.store = st
	}
	return s.store, nil
}

func (s *source) Close() error {
	if s.store != nil {
		return s.store.Close()
	}
	return nil
}

// Load reads arg as a layout file, or looks it up in the library when it is
// not a path to an existing file. An empty arg selects the configured
// default layout.
func (s *source) Load(arg string) (*layout.Layout, error) {
	if arg == "" {
		arg = s.cfg.Engine.DefaultLayout
		if arg == "" {
			return nil, fmt.Errorf("no layout given and engine.default_layout is not set")
		}
	}
	if isKeylayout(arg) {
		diag := keylayout.NewDiagnostics(nil)
		l, err := parser.ReadFile(arg, diag)
		if err != nil {
			return nil, err
		}
		s.logger.Debug("layout parsed", "path", arg, "warnings", diag.Len())
		reportWarnings(diag.Messages())
		if l.Name() == "" {
			l.SetName(baseName(arg))
		}
		return l, nil
	}
	if _, ok := layoutfile.FormatFor(arg); ok {
		if _, err := os.Stat(arg); err == nil {
			return layoutfile.ReadFile(arg)
		}
	}

	st, err := s.Store()
	if err != nil {
		return nil, err
	}
	return st.Load(arg)
}

func isKeylayout(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".keylayout")
}

func baseName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func reportWarnings(msgs []string) {
	for _, m := range msgs {
		fmt.Fprintf(stderr, "warning: %s\n", m)
	}
}
