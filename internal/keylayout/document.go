// Package keylayout models the persisted keyboard automaton and reads and
// writes it as a .keylayout XML file.
//
// The document is an arena: keys refer to actions by index into
// Document.Actions, and a When names its successor state by string, the way
// the file does. Terminators give the output of a state that no further key
// continues.
package keylayout

import "errors"

// Unicode is the keyboard group of layouts that produce Unicode output.
const Unicode = 126

// NoneState is the start state of every action.
const NoneState = "none"

// NoAction marks a key that carries a literal output.
const NoAction = -1

// ErrNotKeyboard is returned when the root element is not <keyboard>.
var ErrNotKeyboard = errors.New("keylayout: document is not a keyboard")

// Document is a parsed or compiled keyboard layout automaton.
type Document struct {
	Name   string
	Group  int
	ID     int
	MaxOut int

	Layouts     []LayoutRef
	ModifierMap *ModifierMap
	KeyMapSet   *KeyMapSet
	Actions     []Action
	Terminators []Terminator
}

// LayoutRef ties a hardware keyboard range to a modifier map and key map set.
type LayoutRef struct {
	First     int
	Last      int
	MapSet    string
	Modifiers string
}

// ModifierMap selects a key map table for each modifier combination.
type ModifierMap struct {
	ID           string
	DefaultIndex int
	Selects      []Select
}

// Select routes the modifier combinations matched by any of Keys to the
// table at MapIndex.
type Select struct {
	MapIndex int
	Keys     []string
}

// KeyMapSet holds the key map tables, addressed by Table.Index.
type KeyMapSet struct {
	ID     string
	Tables []Table
}

// Table maps key codes to literal output or actions.
type Table struct {
	Index int
	Keys  []Key
}

// Key is one <key> element. Action is NoAction for literal keys.
type Key struct {
	Code   int
	Output string
	Action int
}

// Literal reports whether the key outputs text directly.
func (k Key) Literal() bool {
	return k.Action == NoAction
}

// Action is a shared node of the automaton.
type Action struct {
	ID    string
	Whens []When
}

// When is the behaviour of an action in one state. It is transitional when
// Next is set and terminal otherwise. Through and Multiplier hold the
// compact range form verbatim; they are interpreted by the parser.
type When struct {
	State      string
	Output     string
	Next       string
	Through    string
	Multiplier string
}

// Terminal reports whether the clause emits output rather than advancing.
func (w When) Terminal() bool {
	return w.Next == ""
}

// Terminator is the output of an abandoned state.
type Terminator struct {
	State  string
	Output string
}

// FindAction returns the index of the action with the given id.
func (d *Document) FindAction(id string) (int, bool) {
	if id == "" {
		return NoAction, false
	}
	for i := range d.Actions {
		if d.Actions[i].ID == id {
			return i, true
		}
	}
	return NoAction, false
}

// Terminator returns the fallback output of state.
func (d *Document) Terminator(state string) (string, bool) {
	for _, t := range d.Terminators {
		if t.State == state {
			return t.Output, true
		}
	}
	return "", false
}

// TerminatorMap indexes the terminators by state. When a state appears more
// than once the first entry wins.
func (d *Document) TerminatorMap() map[string]string {
	m := make(map[string]string, len(d.Terminators))
	for _, t := range d.Terminators {
		if _, ok := m[t.State]; !ok {
			m[t.State] = t.Output
		}
	}
	return m
}

// Table returns the table with the given index.
func (s *KeyMapSet) Table(index int) (*Table, bool) {
	for i := range s.Tables {
		if s.Tables[i].Index == index {
			return &s.Tables[i], true
		}
	}
	return nil, false
}
