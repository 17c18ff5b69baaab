package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	"strings"

	"elk/internal/compiler"
	"elk/internal/keylayout"
	"elk/internal/layout"
	"elk/internal/layoutfile"
	"elk/internal/modifier"
)

func cmdCompile(args []string) error {
	fs, opts := newFlagSet("compile")
	output := fs.String("o", "", "Output file (default: <name>.keylayout, - for stdout)")
	fill := fs.Bool("fill", true, "Fill unused keys with control characters")
	group := fs.Int("group", -1, "Keyboard group (default from config)")
	id := fs.Int("id", 0, "Keyboard id (default derived from the name)")
	fs.Parse(args)

	if fs.NArg() < 1 {
		return fmt.Errorf("usage: elk compile [-o out.keylayout] <layout>")
	}

	cfg, logger, err := setup(opts)
	if err != nil {
		return err
	}
	src := newSource(cfg, logger)
	defer src.Close()

	l, err := src.Load(fs.Arg(0))
	if err != nil {
		return err
	}

	copts := compiler.Options{
		FillControlKeys: cfg.Compiler.FillControlKeys,
		Group:           cfg.Compiler.Group,
		ID:              *id,
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "fill" {
			copts.FillControlKeys = *fill
		}
	})
	if *group >= 0 {
		copts.Group = *group
	}

	path := *output
	if path == "" {
		path = l.Name() + ".keylayout"
	}
	if err := writeKeylayout(path, l, copts); err != nil {
		return err
	}
	logger.Info("layout compiled", "layout", l.Name(), "output", path)
	if path != "-" {
		fmt.Fprintf(stdout, "Compiled %s to %s\n", l.Name(), path)
	}
	return nil
}

// writeKeylayout compiles l and writes it to path, or to stdout for "-".
// Sequences the compiler drops are reported as warnings.
func writeKeylayout(path string, l *layout.Layout, opts compiler.Options) error {
	diag := keylayout.NewDiagnostics(nil)
	opts.Diag = diag
	doc, err := compiler.Compile(l, opts)
	if err != nil {
		return fmt.Errorf("compile %s: %w", l.Name(), err)
	}
	reportWarnings(diag.Messages())

	var buf bytes.Buffer
	if err := keylayout.Encode(&buf, doc); err != nil {
		return err
	}
	if path == "-" {
		_, err := stdout.Write(buf.Bytes())
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0644)
}

func cmdImport(args []string) error {
	fs, opts := newFlagSet("import")
	name := fs.String("name", "", "Store under this name instead of the layout's own")
	output := fs.String("o", "", "Also write the layout to a .json or .yaml file")
	noSave := fs.Bool("no-save", false, "Do not save to the library")
	fs.Parse(args)

	if fs.NArg() < 1 {
		return fmt.Errorf("usage: elk import [-name n] [-o out.json] <file.keylayout>...")
	}
	if *name != "" && fs.NArg() > 1 {
		return fmt.Errorf("-name needs a single file")
	}

	cfg, logger, err := setup(opts)
	if err != nil {
		return err
	}
	src := newSource(cfg, logger)
	defer src.Close()

	for _, path := range fs.Args() {
		if !isKeylayout(path) {
			return fmt.Errorf("%s: not a .keylayout file", path)
		}
		l, err := src.Load(path)
		if err != nil {
			return err
		}
		if *name != "" {
			l.SetName(*name)
		}

		if *output != "" {
			if err := layoutfile.WriteFile(*output, l); err != nil {
				return err
			}
			fmt.Fprintf(stdout, "Wrote %s\n", *output)
		}
		if *noSave {
			continue
		}

		st, err := src.Store()
		if err != nil {
			return err
		}
		rec, err := st.Save(l, path)
		if err != nil {
			return err
		}
		logger.Info("layout imported", "layout", rec.Name, "path", path)
		fmt.Fprintf(stdout, "Imported %s (%d sequences)\n", rec.Name, countSequences(l))
	}
	return nil
}

// cmdConvert writes a layout in the format named by the output extension.
func cmdConvert(args []string) error {
	fs, opts := newFlagSet("convert")
	fs.Parse(args)

	if fs.NArg() != 2 {
		return fmt.Errorf("usage: elk convert <layout> <out.keylayout|out.json|out.yaml>")
	}
	in, out := fs.Arg(0), fs.Arg(1)

	cfg, logger, err := setup(opts)
	if err != nil {
		return err
	}
	src := newSource(cfg, logger)
	defer src.Close()

	l, err := src.Load(in)
	if err != nil {
		return err
	}

	if isKeylayout(out) {
		err = writeKeylayout(out, l, compiler.Options{
			FillControlKeys: cfg.Compiler.FillControlKeys,
			Group:           cfg.Compiler.Group,
		})
	} else {
		err = layoutfile.WriteFile(out, l)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Converted %s to %s\n", l.Name(), out)
	return nil
}

func countSequences(l *layout.Layout) int {
	n := 0
	for _, m := range modifier.All() {
		n += len(l.Sequences(m))
	}
	return n
}

func displayRune(r rune) string {
	if r < ' ' || r == 0x7f {
		return fmt.Sprintf("U+%04X", r)
	}
	return strings.TrimSpace(fmt.Sprintf("%q", r))
}
