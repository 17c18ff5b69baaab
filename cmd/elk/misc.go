package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"elk/internal/config"
	"elk/internal/fontmap"
)

func cmdRemapFont(args []string) error {
	fs, opts := newFlagSet("remap-font")
	output := fs.String("o", "", "Output file (default: <cmap>-<layout>.json)")
	dryRun := fs.Bool("n", false, "Only print the changes")
	fs.Parse(args)

	if fs.NArg() != 2 {
		return fmt.Errorf("usage: elk remap-font [-o out.json] <cmap.json> <layout>")
	}

	cfg, logger, err := setup(opts)
	if err != nil {
		return err
	}
	src := newSource(cfg, logger)
	defer src.Close()

	cmap, err := fontmap.LoadCMapFile(fs.Arg(0))
	if err != nil {
		return err
	}
	l, err := src.Load(fs.Arg(1))
	if err != nil {
		return err
	}

	changes := fontmap.Remap(cmap, l)
	for _, m := range changes {
		fmt.Fprintf(stdout, "%-8s shows %-8s (glyph %d)\n", displayRune(m.Key), displayRune(m.Char), m.Glyph)
	}
	if *dryRun {
		return nil
	}

	path := *output
	if path == "" {
		in := fs.Arg(0)
		path = strings.TrimSuffix(in, filepath.Ext(in)) + "-" + l.Name() + ".json"
	}
	if err := fontmap.SaveCMapFile(path, cmap); err != nil {
		return err
	}
	logger.Info("font remapped", "layout", l.Name(), "changes", len(changes), "output", path)
	fmt.Fprintf(stdout, "Wrote %s (%d keys remapped)\n", path, len(changes))
	return nil
}

func cmdConfig(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: elk config init|show|validate|path")
	}
	sub := args[0]
	fs, opts := newFlagSet("config " + sub)
	fs.Parse(args[1:])

	path := opts.configPath
	if path == "" {
		path = config.ConfigPath()
	}

	switch sub {
	case "path":
		fmt.Fprintln(stdout, path)
		return nil

	case "init":
		cfg, created, err := config.LoadOrCreate(path)
		if err != nil {
			return err
		}
		if !created {
			fmt.Fprintf(stdout, "Configuration already exists at %s\n", path)
			return nil
		}
		if err := cfg.EnsureDirectories(); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Created %s\n", path)
		return nil

	case "show":
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		return toml.NewEncoder(stdout).Encode(cfg)

	case "validate":
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		problems := config.Check(cfg)
		for _, w := range problems.Warnings() {
			fmt.Fprintf(stdout, "warning: %v\n", w)
		}
		if problems.HasErrors() {
			for _, e := range problems.Errors() {
				fmt.Fprintf(stdout, "error: %v\n", e)
			}
			return fmt.Errorf("%s: %w", path, config.ErrInvalidConfig)
		}
		if _, err := os.Stat(path); err != nil {
			fmt.Fprintf(stdout, "%s does not exist; defaults are valid\n", path)
			return nil
		}
		fmt.Fprintf(stdout, "%s is valid\n", path)
		return nil

	default:
		return fmt.Errorf("unknown config command: %s", sub)
	}
}
