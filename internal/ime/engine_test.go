package ime

import (
	"math/rand"
	"sync"
	"testing"

	"elk/internal/layout"
	"elk/internal/modifier"
)

// caretLayout types a, b, e, x and 6 plainly, their shifted variants with
// Shift, and composes circumflexes after ^.
func caretLayout() *layout.Layout {
	l := layout.New("Caret")
	var plain, shifted layout.KeyMap
	plain[0], plain[11], plain[14], plain[7], plain[22], plain[50] = 'a', 'b', 'e', 'x', '6', '`'
	shifted[0], shifted[11], shifted[14], shifted[7], shifted[22], shifted[50] = 'A', 'B', 'E', 'X', '^', '~'
	l.SetKeyMap(modifier.None, plain)
	l.SetKeyMap(modifier.Shift, shifted)
	l.SetSequences(modifier.None, []layout.DeadSequence{
		{Keys: "^a", Output: "â"},
		{Keys: "^e", Output: "ê"},
		{Keys: "^e`", Output: "ề"},
	})
	return l
}

type stroke struct {
	char rune
	mods modifier.State
	want string
}

func runStrokes(t *testing.T, s *Session, strokes []stroke) {
	t.Helper()
	for i, st := range strokes {
		if got := s.ProcessChar(st.char, st.mods); got != st.want {
			t.Errorf("stroke %d (%q): got %q, want %q", i, st.char, got, st.want)
		}
	}
}

func TestSessionCompletesSequence(t *testing.T) {
	s := NewEngine(caretLayout()).NewSession()
	runStrokes(t, s, []stroke{
		{'^', modifier.None, ""},
		{'a', modifier.None, "â"},
	})
	if p := s.Pending(); p != "" {
		t.Errorf("pending = %q after completed sequence", p)
	}
}

func TestSessionFallsBackToLiteral(t *testing.T) {
	s := NewEngine(caretLayout()).NewSession()
	runStrokes(t, s, []stroke{
		{'^', modifier.None, ""},
		{'b', modifier.None, "^b"},
	})
}

func TestSessionShiftedDeadKey(t *testing.T) {
	s := NewEngine(caretLayout()).NewSession()
	runStrokes(t, s, []stroke{
		{'^', modifier.Shift, ""},
		{'a', modifier.None, "â"},
	})
}

func TestSessionLongestSequenceWins(t *testing.T) {
	tests := []struct {
		name    string
		strokes []stroke
	}{
		{"full", []stroke{
			{'^', modifier.None, ""},
			{'e', modifier.None, ""},
			{'`', modifier.None, "ề"},
		}},
		{"shorter then literal", []stroke{
			{'^', modifier.None, ""},
			{'e', modifier.None, ""},
			{'x', modifier.None, "êx"},
		}},
		{"plain text", []stroke{
			{'a', modifier.None, "a"},
			{'b', modifier.Shift, "B"},
			{' ', modifier.None, " "},
		}},
	}
	engine := NewEngine(caretLayout())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runStrokes(t, engine.NewSession(), tt.strokes)
		})
	}
}

func TestSessionNormalizesLetterCase(t *testing.T) {
	s := NewEngine(caretLayout()).NewSession()
	// A capital typed without shift is looked up as the lower case key.
	runStrokes(t, s, []stroke{
		{'^', modifier.None, ""},
		{'A', modifier.None, "â"},
	})
}

func TestSessionUnknownCharacterIsDropped(t *testing.T) {
	s := NewEngine(caretLayout()).NewSession()
	runStrokes(t, s, []stroke{
		{'é', modifier.None, ""},
		{0, modifier.None, ""},
		{'a', modifier.None, "a"},
	})
}

func TestSessionFlushAndReset(t *testing.T) {
	engine := NewEngine(caretLayout())

	s := engine.NewSession()
	s.ProcessChar('^', modifier.None)
	if p := s.Pending(); p != "^" {
		t.Fatalf("pending = %q, want ^", p)
	}
	if got := s.Flush(); got != "^" {
		t.Errorf("flush = %q, want ^", got)
	}
	if p := s.Pending(); p != "" {
		t.Errorf("pending after flush = %q", p)
	}

	s.ProcessChar('^', modifier.None)
	s.ProcessChar('e', modifier.None)
	if got := s.Flush(); got != "ê" {
		t.Errorf("flush = %q, want ê", got)
	}

	s.ProcessChar('^', modifier.None)
	s.Reset()
	if got := s.ProcessChar('a', modifier.None); got != "a" {
		t.Errorf("after reset got %q, want a", got)
	}
}

func TestEngineProcessKey(t *testing.T) {
	engine := NewEngine(caretLayout())

	if got := engine.ProcessKey(NewKeyWithCode(22, modifier.Shift)); got != "" {
		t.Errorf("dead key produced %q", got)
	}
	if got := engine.ProcessKey(NewKeyWithCode(0, modifier.None)); got != "â" {
		t.Errorf("got %q, want â", got)
	}

	engine.ProcessKey(NewKey('^', modifier.None))
	if got := engine.Blur(); got != "^" {
		t.Errorf("blur = %q, want ^", got)
	}
	if got := engine.Blur(); got != "" {
		t.Errorf("second blur = %q", got)
	}
}

func TestEngineSnapshotsLayout(t *testing.T) {
	l := caretLayout()
	engine := NewEngine(l)
	l.SetSequences(modifier.None, nil)

	s := engine.NewSession()
	s.ProcessChar('^', modifier.None)
	if got := s.ProcessChar('a', modifier.None); got != "â" {
		t.Errorf("got %q, want â", got)
	}
	if engine.Name() != "Caret" {
		t.Errorf("name = %q", engine.Name())
	}
}

func TestSessionIDsAreUnique(t *testing.T) {
	engine := NewEngine(caretLayout())
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := engine.NewSession().ID()
		if seen[id] {
			t.Fatalf("duplicate session id %s", id)
		}
		seen[id] = true
	}
}

func TestSessionAlwaysTerminates(t *testing.T) {
	engine := NewEngine(caretLayout())
	s := engine.NewSession()
	rng := rand.New(rand.NewSource(7))
	alphabet := []rune("^`aAbeEx6 ~é")
	mods := []modifier.State{modifier.None, modifier.Shift, modifier.Caps, modifier.Option}

	for i := 0; i < 5000; i++ {
		s.ProcessChar(alphabet[rng.Intn(len(alphabet))], mods[rng.Intn(len(mods))])
		// Only a proper prefix of "^e`" can stay pending.
		if n := len([]rune(s.Pending())); n > 2 {
			t.Fatalf("pending grew to %q", s.Pending())
		}
	}
	s.Flush()
	if s.Pending() != "" {
		t.Errorf("flush left %q", s.Pending())
	}
}

func TestSessionsRunConcurrently(t *testing.T) {
	engine := NewEngine(caretLayout())
	var wg sync.WaitGroup
	errs := make(chan string, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := engine.NewSession()
			for j := 0; j < 200; j++ {
				s.ProcessChar('^', modifier.None)
				if got := s.ProcessChar('a', modifier.None); got != "â" {
					errs <- got
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for got := range errs {
		t.Errorf("concurrent session produced %q", got)
	}
}
