package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"elk/internal/ime"
	"elk/internal/keycode"
	"elk/internal/logging"
	"elk/internal/modifier"
)

// Control keys understood by "elk type".
const (
	keyInterrupt = 0x03 // Ctrl-C
	keyEOF       = 0x04 // Ctrl-D
	keyOption    = 0x0f // Ctrl-O latches Option for the next key
	keyEscape    = 0x1b
	keyReturn    = '\r'
	keyNewline   = '\n'
	keyBackspace = 0x7f
)

// stateFor returns the modifier state a US typist holds to type r, added to
// the modifiers in base.
func stateFor(base modifier.State, r rune) modifier.State {
	code, ok := keycode.FromChar(r)
	if ok && keycode.Upper(code) == r && keycode.Lower(code) != r {
		return base | modifier.Shift
	}
	return base
}

// composeText types text through session with the extra modifiers in base
// and returns the committed text. When trace is non-nil every keystroke is
// written to it.
func composeText(session *ime.Session, base modifier.State, text string, trace io.Writer) string {
	var out strings.Builder
	for _, r := range text {
		m := stateFor(base, r)
		got := session.ProcessChar(r, m)
		out.WriteString(got)
		if trace != nil {
			fmt.Fprintf(trace, "%-10s %-8s -> %-8q pending %q\n",
				fmt.Sprintf("%q", r), m, got, session.Pending())
		}
	}
	rest := session.Flush()
	if trace != nil && rest != "" {
		fmt.Fprintf(trace, "%-10s %-8s -> %-8q\n", "flush", "", rest)
	}
	out.WriteString(rest)
	return out.String()
}

func cmdCompose(args []string) error {
	fs, opts := newFlagSet("compose")
	mods := fs.String("m", "", "Modifiers held while typing, e.g. option or option+caps")
	trace := fs.Bool("trace", false, "Show each keystroke")
	fs.Parse(args)

	if fs.NArg() < 2 {
		return fmt.Errorf("usage: elk compose [-m mods] <layout> <text>...")
	}
	base, err := modifier.Parse(*mods)
	if err != nil {
		return err
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

	engine := ime.NewEngine(l)
	session := engine.NewSession()
	logger.WithLayout(engine.Name()).WithSession(session.ID()).Debug("composing", "modifiers", base.String())

	var traceOut io.Writer
	if *trace {
		traceOut = stderr
	}
	text := strings.Join(fs.Args()[1:], " ")
	fmt.Fprintln(stdout, composeText(session, base, text, traceOut))
	return nil
}

// cmdType composes keystrokes read from the terminal. Input that is not a
// terminal is composed line by line.
func cmdType(args []string) error {
	fs, opts := newFlagSet("type")
	mods := fs.String("m", "", "Modifiers held while typing")
	fs.Parse(args)

	base, err := modifier.Parse(*mods)
	if err != nil {
		return err
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
	engine := ime.NewEngine(l)

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return typeLines(engine, base, os.Stdin)
	}

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("enter raw mode: %w", err)
	}
	restore := func() { term.Restore(fd, oldState) }
	defer restore()

	crash := logging.NewCrashHandler("", "type", Version)
	crash.SetLayout(engine.Name())
	crash.OnCrash = func(logging.CrashReport) { restore() }

	fmt.Fprintf(stdout, "Typing with %s. Ctrl-O holds Option for one key, Ctrl-D quits.\r\n", engine.Name())
	return crash.Recover(map[string]string{"command": "type"}, func() error {
		return typeRaw(engine, base, crash, logger, bufio.NewReader(os.Stdin), stdout)
	})
}

// typeRaw runs the interactive loop over raw terminal input.
func typeRaw(engine *ime.Engine, base modifier.State, crash *logging.CrashHandler, logger *logging.Logger, in *bufio.Reader, out io.Writer) error {
	session := engine.NewSession()
	crash.SetSessionID(session.ID())
	logger = logger.WithLayout(engine.Name()).WithSession(session.ID())
	logger.Debug("interactive session started")

	latched := modifier.None
	for {
		r, _, err := in.ReadRune()
		if errors.Is(err, io.EOF) {
			fmt.Fprint(out, session.Flush())
			return nil
		}
		if err != nil {
			return err
		}

		switch r {
		case keyInterrupt, keyEOF:
			fmt.Fprintf(out, "%s\r\n", session.Flush())
			logger.Debug("interactive session ended")
			return nil
		case keyOption:
			latched ^= modifier.Option
			continue
		case keyEscape:
			session.Reset()
			continue
		case keyReturn, keyNewline:
			fmt.Fprintf(out, "%s\r\n", session.Flush())
			continue
		case keyBackspace:
			if session.Pending() != "" {
				session.Reset()
			} else {
				fmt.Fprint(out, "\b \b")
			}
			continue
		}

		fmt.Fprint(out, session.ProcessChar(r, stateFor(base|latched, r)))
		latched = modifier.None
	}
}

// typeLines composes each line of r separately.
func typeLines(engine *ime.Engine, base modifier.State, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		session := engine.NewSession()
		fmt.Fprintln(stdout, composeText(session, base, scanner.Text(), nil))
	}
	return scanner.Err()
}
