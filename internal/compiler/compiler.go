// Package compiler turns a layout into a keyboard automaton document.
//
// States that behave alike share one key map table. Each dead sequence is
// threaded through the tables one character at a time: the key typing the
// character gets an action, and the action gets a When clause for the state
// the sequence has reached. Intermediate states get terminators, the text
// emitted when the sequence is abandoned.
package compiler

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"unicode/utf8"

	"elk/internal/keycode"
	"elk/internal/keylayout"
	"elk/internal/layout"
	"elk/internal/modifier"
)

// Options tunes a compilation.
type Options struct {
	// FillControlKeys gives undefined keys the conventional control
	// characters for return, tab, escape, arrows, the keypad and
	// control-letter combinations.
	FillControlKeys bool

	// Group is the keyboard group; zero means keylayout.Unicode.
	Group int

	// ID is the keyboard id; zero derives a negative id from the name.
	ID int

	// Diag receives notes about sequences that could not be represented.
	Diag *keylayout.Diagnostics
}

const (
	modifierMapID = "mods"
	keyMapSetID   = "maps"
)

type keySlot struct {
	defined bool
	output  string
	action  int
}

type actionRef struct {
	code  keycode.Code
	table int
}

type whenRef struct {
	action int
	state  string
}

type builder struct {
	l       *layout.Layout
	opts    Options
	groups  []group
	groupOf [modifier.Count]int

	keys    [][keycode.Count]keySlot
	actions []keylayout.Action
	refs    []actionRef
	byRef   map[actionRef]int

	terminators []keylayout.Terminator
	termIndex   map[string]int
	// explicit holds the sequence keys that fixed a terminator; terminators
	// absent here still carry the default literal text.
	explicit map[string]string
	// origin holds the sequence keys that produced each terminal When.
	origin map[whenRef]string

	counter int
}

// Compile builds the automaton for l. It fails with a *ConflictError when
// two sequences with the same keys produce different text, and with
// ErrUnmappable when a sequence uses a character no key types.
func Compile(l *layout.Layout, opts Options) (*keylayout.Document, error) {
	b := &builder{
		l:         l,
		opts:      opts,
		byRef:     make(map[actionRef]int),
		termIndex: make(map[string]int),
		explicit:  make(map[string]string),
		origin:    make(map[whenRef]string),
	}
	b.groups, b.groupOf = groupStates(l)
	b.keys = make([][keycode.Count]keySlot, len(b.groups))

	for t, g := range b.groups {
		b.fillLiterals(t, g.seed)
	}
	for _, g := range b.groups {
		for _, seq := range l.Sequences(g.seed) {
			if err := b.addSequence(g.seed, seq); err != nil {
				return nil, err
			}
		}
	}
	b.fillDefaults()
	return b.document(), nil
}

func (b *builder) fillLiterals(table int, seed modifier.State) {
	km, _ := b.l.KeyMap(seed)
	for code := keycode.Code(0); code < keycode.Count; code++ {
		r := km[code]
		if r == 0 && b.opts.FillControlKeys {
			r = keycode.ControlDefault(code, seed)
		}
		if r != 0 {
			b.keys[table][code] = keySlot{defined: true, output: string(r), action: keylayout.NoAction}
		}
	}
}

func (b *builder) key(table int, code keycode.Code) *keySlot {
	slot := &b.keys[table][code]
	if !slot.defined {
		*slot = keySlot{defined: true, action: keylayout.NoAction}
	}
	return slot
}

func (b *builder) action(table int, code keycode.Code) int {
	slot := b.key(table, code)
	if slot.action != keylayout.NoAction {
		return slot.action
	}
	ref := actionRef{code: code, table: table}
	idx, ok := b.byRef[ref]
	if !ok {
		idx = len(b.actions)
		b.actions = append(b.actions, keylayout.Action{})
		b.refs = append(b.refs, ref)
		b.byRef[ref] = idx
	}
	slot.action = idx
	return idx
}

func (b *builder) findWhen(action int, state string) int {
	for i, w := range b.actions[action].Whens {
		if w.State == state {
			return i
		}
	}
	return -1
}

func (b *builder) nextState() string {
	b.counter++
	return fmt.Sprintf("s%d", b.counter)
}

func (b *builder) ensureTerminator(state, output string) {
	if _, ok := b.termIndex[state]; ok {
		return
	}
	b.termIndex[state] = len(b.terminators)
	b.terminators = append(b.terminators, keylayout.Terminator{State: state, Output: output})
}

func (b *builder) setTerminator(state, output, keys string, seed modifier.State) error {
	if by, ok := b.explicit[state]; ok {
		current := b.terminators[b.termIndex[state]].Output
		if current == output {
			return nil
		}
		if by == keys {
			return &ConflictError{Modifier: seed, Keys: keys, Existing: current, Output: output}
		}
		b.opts.Diag.Warnf("sequence %q under %s collides with %q; keeping %q",
			keys, seed, by, current)
		return nil
	}
	b.ensureTerminator(state, output)
	b.terminators[b.termIndex[state]].Output = output
	b.explicit[state] = keys
	return nil
}

func (b *builder) addSequence(seed modifier.State, seq layout.DeadSequence) error {
	chars := []rune(seq.Keys)
	if len(chars) == 0 {
		return nil
	}

	prev := keylayout.NoneState
	var literal strings.Builder
	for i, ch := range chars {
		last := i == len(chars)-1
		code, ok := keycode.FromChar(ch)
		if !ok {
			return fmt.Errorf("%w: %q in sequence %q under %s", ErrUnmappable, ch, seq.Keys, seed)
		}
		table := b.groupOf[seed]
		if i == 0 {
			table = b.groupOf[modifier.InferStart(seed, ch)]
		}
		literal.WriteString(b.key(table, code).output)
		act := b.action(table, code)

		ref := whenRef{action: act, state: prev}
		wi := b.findWhen(act, prev)
		switch {
		case wi < 0 && last:
			b.actions[act].Whens = append(b.actions[act].Whens, keylayout.When{State: prev, Output: seq.Output})
			b.origin[ref] = seq.Keys
			return nil

		case wi < 0:
			next := b.nextState()
			b.actions[act].Whens = append(b.actions[act].Whens, keylayout.When{State: prev, Next: next})
			prev = next

		case b.actions[act].Whens[wi].Terminal() && last:
			existing := b.actions[act].Whens[wi].Output
			if existing == seq.Output {
				return nil
			}
			if by := b.origin[ref]; by == seq.Keys {
				return &ConflictError{Modifier: seed, Keys: seq.Keys, Existing: existing, Output: seq.Output}
			}
			b.opts.Diag.Warnf("sequence %q under %s collides with %q; keeping %q",
				seq.Keys, seed, b.origin[ref], existing)
			return nil

		case b.actions[act].Whens[wi].Terminal():
			w := &b.actions[act].Whens[wi]
			next := b.nextState()
			old := w.Output
			w.Output, w.Next = "", next
			b.ensureTerminator(next, old)
			b.terminators[b.termIndex[next]].Output = old
			b.explicit[next] = b.origin[ref]
			delete(b.origin, ref)
			literal.Reset()
			literal.WriteString(old)
			prev = next

		default:
			next := b.actions[act].Whens[wi].Next
			if last {
				return b.setTerminator(next, seq.Output, seq.Keys, seed)
			}
			prev = next
		}
		b.ensureTerminator(prev, literal.String())
	}
	return nil
}

// fillDefaults moves the literal output of every key that gained an action
// into the action's "none" state.
func (b *builder) fillDefaults() {
	for t := range b.keys {
		for code := range b.keys[t] {
			slot := &b.keys[t][code]
			if !slot.defined || slot.action == keylayout.NoAction {
				continue
			}
			if slot.output != "" && b.findWhen(slot.action, keylayout.NoneState) < 0 {
				a := &b.actions[slot.action]
				a.Whens = append(a.Whens, keylayout.When{State: keylayout.NoneState, Output: slot.output})
			}
			slot.output = ""
		}
	}
}

func (b *builder) document() *keylayout.Document {
	// Actions are ordered by key code, then table.
	order := make([]int, len(b.actions))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool {
		ri, rj := b.refs[order[i]], b.refs[order[j]]
		if ri.code != rj.code {
			return ri.code < rj.code
		}
		return ri.table < rj.table
	})
	remap := make([]int, len(b.actions))
	actions := make([]keylayout.Action, len(b.actions))
	for newIdx, oldIdx := range order {
		remap[oldIdx] = newIdx
		a := b.actions[oldIdx]
		ref := b.refs[oldIdx]
		a.ID = fmt.Sprintf("a%d.%02d", ref.code, ref.table)
		actions[newIdx] = a
	}

	mm := &keylayout.ModifierMap{ID: modifierMapID, DefaultIndex: 0}
	set := &keylayout.KeyMapSet{ID: keyMapSetID}
	maxOut := 0
	for t, g := range b.groups {
		mm.Selects = append(mm.Selects, keylayout.Select{MapIndex: t, Keys: g.predicates})
		table := keylayout.Table{Index: t}
		for code, slot := range b.keys[t] {
			if !slot.defined {
				continue
			}
			k := keylayout.Key{Code: code, Output: slot.output, Action: keylayout.NoAction}
			if slot.action != keylayout.NoAction {
				k.Action = remap[slot.action]
			}
			maxOut = max(maxOut, utf8.RuneCountInString(k.Output))
			table.Keys = append(table.Keys, k)
		}
		set.Tables = append(set.Tables, table)
	}
	for _, a := range actions {
		for _, w := range a.Whens {
			if w.Terminal() {
				maxOut = max(maxOut, utf8.RuneCountInString(w.Output))
			}
		}
	}
	for _, t := range b.terminators {
		maxOut = max(maxOut, utf8.RuneCountInString(t.Output))
	}

	group := b.opts.Group
	if group == 0 {
		group = keylayout.Unicode
	}
	name := strings.TrimSuffix(b.l.Name(), ".keylayout")
	id := b.opts.ID
	if id == 0 {
		id = DefaultID(name)
	}

	return &keylayout.Document{
		Name:        name,
		Group:       group,
		ID:          id,
		MaxOut:      maxOut,
		Layouts:     []keylayout.LayoutRef{{First: 0, Last: 0, MapSet: keyMapSetID, Modifiers: modifierMapID}},
		ModifierMap: mm,
		KeyMapSet:   set,
		Actions:     actions,
		Terminators: b.terminators,
	}
}

// DefaultID derives a stable negative keyboard id from a layout name, in
// the range used for Unicode layouts.
func DefaultID(name string) int {
	h := fnv.New32a()
	h.Write([]byte(name))
	return -1 - int(h.Sum32()%10000)
}
