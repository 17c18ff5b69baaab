// Package modifier implements the modifier-state algebra used by keyboard
// layouts: five boolean modifiers combined into 32 states, case folding
// driven by Shift/Caps, and the modifier predicates written to .keylayout
// files.
package modifier

import (
	"fmt"
	"strings"
)

// State is a combination of modifier keys. Every per-modifier table in a
// layout is indexed by a State.
type State uint8

const (
	Shift State = 1 << iota
	Control
	Command
	Option
	Caps
)

// Count is the number of distinct modifier states.
const Count = 32

// None is the state with no modifier held.
const None State = 0

var names = [...]string{"shift", "control", "command", "option", "caps"}

// All returns every state in ascending order.
func All() []State {
	states := make([]State, Count)
	for i := range states {
		states[i] = State(i)
	}
	return states
}

// Has reports whether all bits of f are set in s.
func (s State) Has(f State) bool {
	return s&f == f
}

// Valid reports whether s is one of the 32 modifier states.
func (s State) Valid() bool {
	return s < Count
}

// String returns a readable form such as "shift+caps".
func (s State) String() string {
	if s == None {
		return "none"
	}
	var parts []string
	for i, name := range names {
		if s&(1<<i) != 0 {
			parts = append(parts, name)
		}
	}
	if s >= Count {
		parts = append(parts, fmt.Sprintf("0x%02x", uint8(s&^(Count-1))))
	}
	return strings.Join(parts, "+")
}

// Parse converts a string like "shift+option" (also accepting "alt", "ctrl",
// "cmd" and "capslock") into a State.
func Parse(text string) (State, error) {
	text = strings.TrimSpace(strings.ToLower(text))
	if text == "" || text == "none" {
		return None, nil
	}
	var s State
	for _, part := range strings.FieldsFunc(text, func(r rune) bool {
		return r == '+' || r == ',' || r == ' ' || r == '|'
	}) {
		switch part {
		case "shift":
			s |= Shift
		case "control", "ctrl":
			s |= Control
		case "command", "cmd", "meta":
			s |= Command
		case "option", "alt":
			s |= Option
		case "caps", "capslock":
			s |= Caps
		default:
			return None, fmt.Errorf("unknown modifier %q", part)
		}
	}
	return s, nil
}

// Flip toggles the Shift bit. Flip(Flip(s)) == s.
func Flip(s State) State {
	return s ^ Shift
}
