// Package layout holds the keyboard model: per-modifier key maps and the
// dead-key sequences that compose multi-keystroke output.
//
// A Layout is built once, then handed to the compiler or the composition
// engine. After that it is only read, so any number of goroutines may share
// it. Every getter returns a copy.
package layout

import (
	"unicode"

	"elk/internal/keycode"
	"elk/internal/modifier"
)

// KeyMap maps a key code to the character it types. Zero means undefined.
type KeyMap [keycode.Count]rune

// Defined reports whether any key of the map types a character.
func (k *KeyMap) Defined() bool {
	for _, r := range k {
		if r != 0 {
			return true
		}
	}
	return false
}

// DeadSequence is a run of typed characters and the text it composes to.
type DeadSequence struct {
	Keys   string `json:"keys" yaml:"keys"`
	Output string `json:"output" yaml:"output"`
}

// Layout is a complete keyboard: one key map and one sorted sequence list
// per modifier state.
type Layout struct {
	name      string
	keyMaps   [modifier.Count]*KeyMap
	sequences [modifier.Count][]DeadSequence
}

// New returns an empty layout.
func New(name string) *Layout {
	return &Layout{name: name}
}

// Name returns the layout's language name.
func (l *Layout) Name() string {
	return l.name
}

// SetName renames the layout.
func (l *Layout) SetName(name string) {
	l.name = name
}

// SetKeyMap stores a copy of km for state m.
func (l *Layout) SetKeyMap(m modifier.State, km KeyMap) {
	if !m.Valid() {
		return
	}
	cp := km
	l.keyMaps[m] = &cp
}

// KeyMap returns a copy of the key map for m. The second result is false
// when none was set.
func (l *Layout) KeyMap(m modifier.State) (KeyMap, bool) {
	if !m.Valid() || l.keyMaps[m] == nil {
		return KeyMap{}, false
	}
	return *l.keyMaps[m], true
}

// SetSequences stores a sorted copy of seqs for state m. Entries with
// duplicate keys are kept; the compiler reports them.
func (l *Layout) SetSequences(m modifier.State, seqs []DeadSequence) {
	if !m.Valid() {
		return
	}
	if len(seqs) == 0 {
		l.sequences[m] = nil
		return
	}
	cp := make([]DeadSequence, len(seqs))
	copy(cp, seqs)
	Sort(cp)
	l.sequences[m] = cp
}

// Sequences returns a copy of the sorted sequence list for m.
func (l *Layout) Sequences(m modifier.State) []DeadSequence {
	if !m.Valid() || len(l.sequences[m]) == 0 {
		return nil
	}
	cp := make([]DeadSequence, len(l.sequences[m]))
	copy(cp, l.sequences[m])
	return cp
}

// Equal reports whether states m1 and m2 behave alike: their key maps match
// ignoring letter case and their sequence lists match element for element
// (keys ignoring case, output exactly). A missing key map equals an empty
// one.
func (l *Layout) Equal(m1, m2 modifier.State) bool {
	if !m1.Valid() || !m2.Valid() {
		return false
	}
	var empty KeyMap
	a, b := l.keyMaps[m1], l.keyMaps[m2]
	if a == nil {
		a = &empty
	}
	if b == nil {
		b = &empty
	}
	for i := range a {
		if unicode.ToUpper(a[i]) != unicode.ToUpper(b[i]) {
			return false
		}
	}

	sa, sb := l.sequences[m1], l.sequences[m2]
	if len(sa) != len(sb) {
		return false
	}
	for i := range sa {
		if !equalFold(sa[i].Keys, sb[i].Keys) || sa[i].Output != sb[i].Output {
			return false
		}
	}
	return true
}

// HasSequences reports whether any state carries dead sequences.
func (l *Layout) HasSequences() bool {
	for _, seqs := range l.sequences {
		if len(seqs) > 0 {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of l.
func (l *Layout) Clone() *Layout {
	c := &Layout{name: l.name}
	for m := range l.keyMaps {
		if l.keyMaps[m] != nil {
			km := *l.keyMaps[m]
			c.keyMaps[m] = &km
		}
		if len(l.sequences[m]) > 0 {
			c.sequences[m] = append([]DeadSequence(nil), l.sequences[m]...)
		}
	}
	return c
}
