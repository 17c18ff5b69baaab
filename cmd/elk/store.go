package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"elk/internal/layoutfile"
	"elk/internal/store"
)

func cmdStore(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: elk store save|list|show|delete|find|verify|status")
	}

	sub, rest := args[0], args[1:]
	fs, opts := newFlagSet("store " + sub)
	name := fs.String("name", "", "Store under this name (save, single file)")
	format := fs.String("format", "json", "Output format for show: json or yaml")
	fs.Parse(rest)

	cfg, logger, err := setup(opts)
	if err != nil {
		return err
	}
	src := newSource(cfg, logger)
	defer src.Close()

	st, err := src.Store()
	if err != nil {
		return err
	}

	switch sub {
	case "save":
		if fs.NArg() < 1 {
			return fmt.Errorf("usage: elk store save [-name n] <file>...")
		}
		if *name != "" && fs.NArg() > 1 {
			return fmt.Errorf("-name needs a single file")
		}
		for _, path := range fs.Args() {
			l, err := src.Load(path)
			if err != nil {
				return err
			}
			if *name != "" {
				l.SetName(*name)
			}
			rec, err := st.Save(l, path)
			if err != nil {
				return err
			}
			logger.Info("layout saved", "layout", rec.Name, "path", path)
			fmt.Fprintf(stdout, "Saved %s\n", rec.Name)
		}
		return nil

	case "list":
		records, err := st.List()
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Fprintln(stdout, "No layouts stored.")
			return nil
		}
		fmt.Fprintf(stdout, "%-24s %-12s %-20s %s\n", "NAME", "FINGERPRINT", "UPDATED", "SOURCE")
		for _, r := range records {
			fmt.Fprintf(stdout, "%-24s %-12s %-20s %s\n",
				r.Name, shortFingerprint(r.Fingerprint), r.UpdatedAt.Format("2006-01-02 15:04:05"), r.Source)
		}
		return nil

	case "show":
		if fs.NArg() != 1 {
			return fmt.Errorf("usage: elk store show [-format json|yaml] <name>")
		}
		f := layoutfile.JSON
		switch *format {
		case "json":
		case "yaml", "yml":
			f = layoutfile.YAML
		default:
			return fmt.Errorf("unknown format %q", *format)
		}
		l, err := st.Load(fs.Arg(0))
		if err != nil {
			return err
		}
		return layoutfile.Encode(stdout, l, f)

	case "delete":
		if fs.NArg() < 1 {
			return fmt.Errorf("usage: elk store delete <name>...")
		}
		for _, n := range fs.Args() {
			if err := st.Delete(n); err != nil {
				return err
			}
			logger.Info("layout deleted", "layout", n)
			fmt.Fprintf(stdout, "Deleted %s\n", n)
		}
		return nil

	case "find":
		if fs.NArg() != 1 {
			return fmt.Errorf("usage: elk store find <keys>")
		}
		matches, err := st.FindSequences(fs.Arg(0))
		if err != nil {
			return err
		}
		if len(matches) == 0 {
			fmt.Fprintf(stdout, "No sequence %q found.\n", fs.Arg(0))
			return nil
		}
		for _, m := range matches {
			fmt.Fprintf(stdout, "%-24s %-16s %q -> %q\n", m.Layout, m.Modifier, m.Sequence.Keys, m.Sequence.Output)
		}
		return nil

	case "verify":
		failed, err := st.VerifyAll()
		if err != nil {
			return err
		}
		if len(failed) > 0 {
			for _, n := range failed {
				fmt.Fprintf(stdout, "FAILED %s\n", n)
			}
			return fmt.Errorf("%d stored layouts failed verification", len(failed))
		}
		fmt.Fprintln(stdout, "All stored layouts verified.")
		return nil

	case "status":
		status, err := store.GetMigrationStatus(st.DB())
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Database:       %s\n", cfg.Storage.Path)
		fmt.Fprintf(stdout, "Schema version: %d of %d\n", status.CurrentVersion, status.LatestVersion)
		for _, m := range status.Applied {
			fmt.Fprintf(stdout, "  applied %d  %s  %s\n", m.Version, m.AppliedAt.Format("2006-01-02 15:04:05"), m.Description)
		}
		for _, m := range status.Pending {
			fmt.Fprintf(stdout, "  pending %d  %s\n", m.Version, m.Description)
		}
		if info, err := os.Stat(cfg.Storage.Path); err == nil {
			fmt.Fprintf(stdout, "Size:           %d bytes\n", info.Size())
		}
		return nil

	default:
		return fmt.Errorf("unknown store command: %s", sub)
	}
}

func shortFingerprint(fp [32]byte) string {
	return hex.EncodeToString(fp[:5])
}
