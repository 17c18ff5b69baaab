// Package parser recovers a layout from a keyboard automaton document.
//
// Each table's key map comes from the "none" state outputs of its keys.
// Dead sequences are found by walking the automaton depth first from the
// "none" state: transitional edges extend the typed text by the character
// printed on the key, terminal edges and terminators yield sequences.
package parser

import (
	"errors"
	"strconv"
	"unicode/utf8"

	"elk/internal/keycode"
	"elk/internal/keylayout"
	"elk/internal/layout"
	"elk/internal/modifier"
)

var (
	ErrNoModifierMap = errors.New("parser: document has no modifier map")
	ErrNoKeyMapSet   = errors.New("parser: document has no key map set")
)

// maxRange bounds the number of states one range clause may expand to.
const maxRange = 1 << 16

type edge struct {
	state int
	next  bool
	// data is the output of a terminal edge or the successor state name.
	data   string
	nextID int
	term   string
}

type table struct {
	index  int
	states []modifier.State
	edges  [keycode.Count][]edge
}

func (t *table) first() modifier.State {
	return t.states[0]
}

func (t *table) display(code int) rune {
	return keycode.Display(keycode.Code(code), t.first())
}

type parser struct {
	doc    *keylayout.Document
	diag   *keylayout.Diagnostics
	terms  map[string]string
	ids    map[string]int
	none   int
	tables []*table
}

// Parse builds a layout from doc. Only a missing modifier map or key map set
// is fatal; other problems are reported to diag and the offending element
// is skipped.
func Parse(doc *keylayout.Document, diag *keylayout.Diagnostics) (*layout.Layout, error) {
	if doc.ModifierMap == nil {
		return nil, ErrNoModifierMap
	}
	if doc.KeyMapSet == nil {
		return nil, ErrNoKeyMapSet
	}

	p := &parser{
		doc:   doc,
		diag:  diag,
		terms: doc.TerminatorMap(),
		ids:   make(map[string]int),
	}
	p.none = p.intern(keylayout.NoneState)

	tableOf := p.resolveModifiers()
	p.buildTables(tableOf)

	l := layout.New(doc.Name)
	for _, t := range p.tables {
		if len(t.states) == 0 {
			continue
		}
		km := p.keyMap(t)
		seqs := p.sequences(t)
		for _, s := range t.states {
			l.SetKeyMap(s, km)
			l.SetSequences(s, seqs)
		}
	}
	return l, nil
}

func (p *parser) intern(state string) int {
	id, ok := p.ids[state]
	if !ok {
		id = len(p.ids)
		p.ids[state] = id
	}
	return id
}

// resolveModifiers assigns every state the table of the first select whose
// predicate matches it, or the default table.
func (p *parser) resolveModifiers() [modifier.Count]int {
	mm := p.doc.ModifierMap
	var tableOf [modifier.Count]int
	var matched [modifier.Count]bool
	for s := range tableOf {
		tableOf[s] = mm.DefaultIndex
	}
	for _, sel := range mm.Selects {
		if sel.MapIndex < 0 || sel.MapIndex >= modifier.Count {
			p.diag.Warnf("keyMapSelect mapIndex %d out of range", sel.MapIndex)
			continue
		}
		for _, keys := range sel.Keys {
			required, allowed := modifier.ParsePredicate(keys)
			for _, s := range modifier.All() {
				if !matched[s] && modifier.Matches(s, required, allowed) {
					tableOf[s] = sel.MapIndex
					matched[s] = true
				}
			}
		}
	}
	return tableOf
}

func (p *parser) buildTables(tableOf [modifier.Count]int) {
	for i := range p.doc.KeyMapSet.Tables {
		src := &p.doc.KeyMapSet.Tables[i]
		t := &table{index: src.Index}
		for _, s := range modifier.All() {
			if tableOf[s] == src.Index {
				t.states = append(t.states, s)
			}
		}
		for _, key := range src.Keys {
			if key.Code < 0 || key.Code >= keycode.Count {
				p.diag.Warnf("keyMap %d: key code %d out of range", src.Index, key.Code)
				continue
			}
			t.edges[key.Code] = append(t.edges[key.Code], p.keyEdges(src.Index, key)...)
		}
		p.tables = append(p.tables, t)
	}

	for _, s := range modifier.All() {
		if _, ok := p.doc.KeyMapSet.Table(tableOf[s]); !ok {
			p.diag.Warnf("modifier state %s selects missing keyMap %d", s, tableOf[s])
		}
	}
}

func (p *parser) keyEdges(index int, key keylayout.Key) []edge {
	if key.Literal() {
		return []edge{{state: p.none, data: key.Output}}
	}
	if key.Action < 0 || key.Action >= len(p.doc.Actions) {
		p.diag.Warnf("keyMap %d: key %d refers to missing action %d", index, key.Code, key.Action)
		return nil
	}
	var edges []edge
	for _, w := range p.doc.Actions[key.Action].Whens {
		if w.Through != "" {
			edges = append(edges, p.expandRange(index, key.Code, w)...)
			continue
		}
		e := edge{state: p.intern(w.State), data: w.Output}
		if !w.Terminal() {
			e.next = true
			e.data = w.Next
			e.nextID = p.intern(w.Next)
			e.term = p.terms[w.Next]
		}
		edges = append(edges, e)
	}
	return edges
}

// expandRange unrolls a when clause covering the numeric states
// state..through. Successive states produce successive characters, or
// move to successive numeric states, spaced by the multiplier.
func (p *parser) expandRange(index, code int, w keylayout.When) []edge {
	first, err := strconv.Atoi(w.State)
	if err != nil {
		p.diag.Warnf("keyMap %d key %d: range state %q is not a number", index, code, w.State)
		return nil
	}
	last, err := strconv.Atoi(w.Through)
	if err != nil {
		p.diag.Warnf("keyMap %d key %d: through %q is not a number", index, code, w.Through)
		return nil
	}
	mult := 1
	if w.Multiplier != "" {
		if mult, err = strconv.Atoi(w.Multiplier); err != nil {
			p.diag.Warnf("keyMap %d key %d: multiplier %q is not a number", index, code, w.Multiplier)
			return nil
		}
	}
	if last < first || last-first >= maxRange {
		p.diag.Warnf("keyMap %d key %d: range %d-%d skipped", index, code, first, last)
		return nil
	}

	var base int
	if w.Terminal() {
		r, _ := utf8.DecodeRuneInString(w.Output)
		if w.Output == "" || r == utf8.RuneError {
			p.diag.Warnf("keyMap %d key %d: range output %q unusable", index, code, w.Output)
			return nil
		}
		base = int(r)
	} else if base, err = strconv.Atoi(w.Next); err != nil {
		p.diag.Warnf("keyMap %d key %d: range next %q is not a number", index, code, w.Next)
		return nil
	}

	edges := make([]edge, 0, last-first+1)
	for k := 0; first+k <= last; k++ {
		v := base + k*mult
		e := edge{state: p.intern(strconv.Itoa(first + k))}
		if w.Terminal() {
			if v < 0 || v > utf8.MaxRune {
				p.diag.Warnf("keyMap %d key %d: range output leaves Unicode at state %d", index, code, first+k)
				break
			}
			e.data = string(rune(v))
		} else {
			e.next = true
			e.data = strconv.Itoa(v)
			e.nextID = p.intern(e.data)
			e.term = p.terms[e.data]
		}
		edges = append(edges, e)
	}
	return edges
}

// keyMap returns the single-character "none" output of each key.
func (p *parser) keyMap(t *table) layout.KeyMap {
	var km layout.KeyMap
	for code, edges := range t.edges {
		for _, e := range edges {
			if e.state != p.none {
				continue
			}
			data := e.data
			if e.next {
				data = e.term
			}
			if utf8.RuneCountInString(data) != 1 {
				continue
			}
			r, _ := utf8.DecodeRuneInString(data)
			km[code] = r
		}
	}
	return km
}
