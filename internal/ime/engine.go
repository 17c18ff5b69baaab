package ime

import (
	"sync"

	"elk/internal/keycode"
	"elk/internal/layout"
	"elk/internal/modifier"
)

// Key represents a key event from the platform input method.
type Key struct {
	// Char is the character the key produces on a US keyboard. When it is
	// zero the character is derived from Code.
	Char rune

	// Code is the virtual key code. It is only consulted when Char is zero.
	Code keycode.Code

	// Modifiers indicates which modifier keys are held.
	Modifiers modifier.State
}

// NewKey creates a Key for a typed character.
func NewKey(char rune, mods modifier.State) Key {
	return Key{Char: char, Code: keycode.Invalid, Modifiers: mods}
}

// NewKeyWithCode creates a Key for a physical key; its character is the one
// printed on the key in the case mods produce.
func NewKeyWithCode(code keycode.Code, mods modifier.State) Key {
	return Key{Char: keycode.Display(code, mods), Code: code, Modifiers: mods}
}

func (k Key) char() rune {
	if k.Char != 0 {
		return k.Char
	}
	return keycode.Display(k.Code, k.Modifiers)
}

// Engine holds a read-only snapshot of a layout.
type Engine struct {
	name      string
	keyMaps   [modifier.Count]layout.KeyMap
	sequences [modifier.Count][]layout.DeadSequence

	mu     sync.Mutex
	active *Session
}

// NewEngine snapshots l. Later changes to l do not affect the engine.
func NewEngine(l *layout.Layout) *Engine {
	e := &Engine{name: l.Name()}
	for _, s := range modifier.All() {
		e.keyMaps[s], _ = l.KeyMap(s)
		e.sequences[s] = l.Sequences(s)
	}
	return e
}

// Name returns the name of the layout the engine was built from.
func (e *Engine) Name() string {
	return e.name
}

// NewSession starts an independent composition session.
func (e *Engine) NewSession() *Session {
	return newSession(e)
}

// ProcessKey feeds key to the engine's current session, starting one if
// needed, and returns the text to commit.
func (e *Engine) ProcessKey(key Key) string {
	e.mu.Lock()
	if e.active == nil {
		e.active = newSession(e)
	}
	s := e.active
	e.mu.Unlock()

	return s.ProcessChar(key.char(), key.Modifiers)
}

// Blur ends the current session, as when the input focus moves elsewhere,
// and returns whatever text it still held.
func (e *Engine) Blur() string {
	e.mu.Lock()
	s := e.active
	e.active = nil
	e.mu.Unlock()

	if s == nil {
		return ""
	}
	return s.Flush()
}

// translate types ch literally with state s. The key map of the state whose
// shift bit agrees with ch is tried first, then its flipped twin.
func (e *Engine) translate(s modifier.State, ch rune) rune {
	if ch == ' ' {
		return ch
	}
	code, ok := keycode.FromChar(ch)
	if !ok {
		return 0
	}
	start := modifier.InferStart(s, ch)
	if r := e.keyMaps[start][code]; r != 0 {
		return r
	}
	return e.keyMaps[modifier.Flip(start)][code]
}

// longest finds the longest sequence of s or its flipped twin that matches
// the head of buf. On equal lengths the sequence of s wins.
func (e *Engine) longest(s modifier.State, buf []rune) (layout.DeadSequence, int, bool) {
	own, n, ok := layout.LongestPrefix(e.sequences[s], buf)
	flip, fn, fok := layout.LongestPrefix(e.sequences[modifier.Flip(s)], buf)
	if fok && fn > n {
		return flip, fn, true
	}
	return own, n, ok
}
