package keylayout

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/ianaindex"
)

// controlPicture is U+2400, the first of the control picture symbols. Control
// character references are moved into that block so that an XML 1.0 decoder
// accepts them, and moved back once the values are extracted.
const controlPicture = 0x2400

var (
	xmlVersion11 = regexp.MustCompile(`^(\s*<\?xml[^>]*?version\s*=\s*["'])1\.1(["'])`)
	charRef      = regexp.MustCompile(`&#(x[0-9A-Fa-f]+|[0-9]+);`)
)

type xmlKeyboard struct {
	XMLName      xml.Name
	Group        *string          `xml:"group,attr"`
	ID           *string          `xml:"id,attr"`
	Name         string           `xml:"name,attr"`
	MaxOut       *string          `xml:"maxout,attr"`
	Layouts      []xmlLayout      `xml:"layouts>layout"`
	ModifierMaps []xmlModifierMap `xml:"modifierMap"`
	KeyMapSets   []xmlKeyMapSet   `xml:"keyMapSet"`
	Actions      []xmlAction      `xml:"actions>action"`
	Terminators  []xmlWhen        `xml:"terminators>when"`
}

type xmlLayout struct {
	First     string `xml:"first,attr"`
	Last      string `xml:"last,attr"`
	MapSet    string `xml:"mapSet,attr"`
	Modifiers string `xml:"modifiers,attr"`
}

type xmlModifierMap struct {
	ID           string         `xml:"id,attr"`
	DefaultIndex string         `xml:"defaultIndex,attr"`
	Selects      []xmlKeyMapSel `xml:"keyMapSelect"`
}

type xmlKeyMapSel struct {
	MapIndex  string        `xml:"mapIndex,attr"`
	Modifiers []xmlModifier `xml:"modifier"`
}

type xmlModifier struct {
	Keys string `xml:"keys,attr"`
}

type xmlKeyMapSet struct {
	ID      string      `xml:"id,attr"`
	KeyMaps []xmlKeyMap `xml:"keyMap"`
}

type xmlKeyMap struct {
	Index      string   `xml:"index,attr"`
	BaseMapSet *string  `xml:"baseMapSet,attr"`
	Keys       []xmlKey `xml:"key"`
}

type xmlKey struct {
	Code   string     `xml:"code,attr"`
	Output *string    `xml:"output,attr"`
	Action *string    `xml:"action,attr"`
	Inline *xmlAction `xml:"action"`
}

type xmlAction struct {
	ID    string    `xml:"id,attr"`
	Whens []xmlWhen `xml:"when"`
}

type xmlWhen struct {
	State      string  `xml:"state,attr"`
	Output     *string `xml:"output,attr"`
	Next       string  `xml:"next,attr"`
	Through    string  `xml:"through,attr"`
	Multiplier string  `xml:"multiplier,attr"`
}

// Decode reads a .keylayout file. Problems confined to one element are
// reported to diag and the element is skipped. A document without a
// modifier map or key map set decodes with the corresponding field nil.
func Decode(r io.Reader, diag *Diagnostics) (*Document, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("keylayout: read: %w", err)
	}

	dec := xml.NewDecoder(bytes.NewReader(prepare(raw)))
	dec.CharsetReader = charsetReader

	var kb xmlKeyboard
	if err := dec.Decode(&kb); err != nil {
		return nil, fmt.Errorf("keylayout: decode: %w", err)
	}
	if kb.XMLName.Local != "keyboard" {
		return nil, fmt.Errorf("%w: root element is <%s>", ErrNotKeyboard, kb.XMLName.Local)
	}

	return convert(&kb, diag), nil
}

// prepare rewrites what an XML 1.0 decoder rejects: the 1.1 version
// declaration and references to control characters.
func prepare(raw []byte) []byte {
	raw = xmlVersion11.ReplaceAll(raw, []byte("${1}1.0${2}"))
	return charRef.ReplaceAllFunc(raw, func(ref []byte) []byte {
		body := string(ref[2 : len(ref)-1])
		var n int64
		var err error
		if body[0] == 'x' {
			n, err = strconv.ParseInt(body[1:], 16, 32)
		} else {
			n, err = strconv.ParseInt(body, 10, 32)
		}
		if err != nil || n >= 0x20 {
			return ref
		}
		return []byte(fmt.Sprintf("&#x%X;", controlPicture+n))
	})
}

// restore maps control pictures back to the control characters they stand
// for.
func restore(s string) string {
	if !strings.ContainsFunc(s, isControlPicture) {
		return s
	}
	return strings.Map(func(r rune) rune {
		if isControlPicture(r) {
			return r - controlPicture
		}
		return r
	}, s)
}

func isControlPicture(r rune) bool {
	return r >= controlPicture && r < controlPicture+0x20
}

func charsetReader(label string, input io.Reader) (io.Reader, error) {
	enc, err := ianaindex.IANA.Encoding(label)
	if err != nil {
		return nil, err
	}
	if enc == nil {
		return nil, errors.New("keylayout: unsupported charset " + label)
	}
	return enc.NewDecoder().Reader(input), nil
}

func convert(kb *xmlKeyboard, diag *Diagnostics) *Document {
	doc := &Document{
		Name:   restore(kb.Name),
		Group:  intAttr(diag, "keyboard group", kb.Group, Unicode),
		ID:     intAttr(diag, "keyboard id", kb.ID, 0),
		MaxOut: intAttr(diag, "keyboard maxout", kb.MaxOut, 0),
	}

	for _, l := range kb.Layouts {
		first, err1 := strconv.Atoi(l.First)
		last, err2 := strconv.Atoi(l.Last)
		if err1 != nil || err2 != nil {
			diag.Warnf("skipped layout with range %q-%q", l.First, l.Last)
			continue
		}
		doc.Layouts = append(doc.Layouts, LayoutRef{First: first, Last: last, MapSet: l.MapSet, Modifiers: l.Modifiers})
	}

	for _, a := range kb.Actions {
		if a.ID == "" {
			diag.Warnf("skipped action without id")
			continue
		}
		if _, dup := doc.FindAction(a.ID); dup {
			diag.Warnf("duplicate action %q ignored", a.ID)
			continue
		}
		doc.Actions = append(doc.Actions, convertAction(a))
	}

	for _, t := range kb.Terminators {
		out := ""
		if t.Output != nil {
			out = restore(*t.Output)
		}
		doc.Terminators = append(doc.Terminators, Terminator{State: t.State, Output: out})
	}

	modsID, setID := "", ""
	if len(doc.Layouts) > 0 {
		modsID, setID = doc.Layouts[0].Modifiers, doc.Layouts[0].MapSet
	}
	if mm := pickModifierMap(kb.ModifierMaps, modsID, diag); mm != nil {
		doc.ModifierMap = convertModifierMap(mm, diag)
	}
	if set := pickKeyMapSet(kb.KeyMapSets, setID, diag); set != nil {
		doc.KeyMapSet = convertKeyMapSet(doc, set, diag)
	}
	return doc
}

func intAttr(diag *Diagnostics, what string, v *string, def int) int {
	if v == nil {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(*v))
	if err != nil {
		diag.Warnf("%s %q is not a number", what, *v)
		return def
	}
	return n
}

func convertAction(a xmlAction) Action {
	act := Action{ID: a.ID, Whens: make([]When, 0, len(a.Whens))}
	for _, w := range a.Whens {
		when := When{
			State:      w.State,
			Next:       w.Next,
			Through:    w.Through,
			Multiplier: w.Multiplier,
		}
		if w.Output != nil {
			when.Output = restore(*w.Output)
		}
		act.Whens = append(act.Whens, when)
	}
	return act
}

func pickModifierMap(maps []xmlModifierMap, id string, diag *Diagnostics) *xmlModifierMap {
	if len(maps) == 0 {
		return nil
	}
	if len(maps) > 1 {
		diag.Warnf("%d modifier maps present; using the one named by the first layout", len(maps))
	}
	for i := range maps {
		if maps[i].ID == id {
			return &maps[i]
		}
	}
	return &maps[0]
}

func pickKeyMapSet(sets []xmlKeyMapSet, id string, diag *Diagnostics) *xmlKeyMapSet {
	if len(sets) == 0 {
		return nil
	}
	if len(sets) > 1 {
		diag.Warnf("%d key map sets present; using the one named by the first layout", len(sets))
	}
	for i := range sets {
		if sets[i].ID == id {
			return &sets[i]
		}
	}
	return &sets[0]
}

func convertModifierMap(mm *xmlModifierMap, diag *Diagnostics) *ModifierMap {
	out := &ModifierMap{ID: mm.ID}
	if mm.DefaultIndex != "" {
		n, err := strconv.Atoi(mm.DefaultIndex)
		if err != nil {
			diag.Warnf("modifier map defaultIndex %q is not a number", mm.DefaultIndex)
		} else {
			out.DefaultIndex = n
		}
	}
	for _, sel := range mm.Selects {
		n, err := strconv.Atoi(sel.MapIndex)
		if err != nil {
			diag.Warnf("skipped keyMapSelect with mapIndex %q", sel.MapIndex)
			continue
		}
		s := Select{MapIndex: n}
		for _, m := range sel.Modifiers {
			s.Keys = append(s.Keys, m.Keys)
		}
		out.Selects = append(out.Selects, s)
	}
	return out
}

func convertKeyMapSet(doc *Document, set *xmlKeyMapSet, diag *Diagnostics) *KeyMapSet {
	out := &KeyMapSet{ID: set.ID}
	for _, km := range set.KeyMaps {
		index, err := strconv.Atoi(km.Index)
		if err != nil {
			diag.Warnf("skipped keyMap with index %q", km.Index)
			continue
		}
		if km.BaseMapSet != nil {
			diag.Warnf("keyMap %d: baseMapSet %q is not followed", index, *km.BaseMapSet)
		}
		table := Table{Index: index}
		for _, k := range km.Keys {
			key, ok := convertKey(doc, index, k, diag)
			if ok {
				table.Keys = append(table.Keys, key)
			}
		}
		out.Tables = append(out.Tables, table)
	}
	return out
}

func convertKey(doc *Document, table int, k xmlKey, diag *Diagnostics) (Key, bool) {
	code, err := strconv.Atoi(strings.TrimSpace(k.Code))
	if err != nil || code < 0 || code > 0xff {
		diag.Warnf("keyMap %d: skipped key with code %q", table, k.Code)
		return Key{}, false
	}

	switch {
	case k.Output != nil:
		if k.Action != nil || k.Inline != nil {
			diag.Warnf("keyMap %d: key %d has both output and action; using output", table, code)
		}
		return Key{Code: code, Output: restore(*k.Output), Action: NoAction}, true
	case k.Action != nil:
		idx, ok := doc.FindAction(*k.Action)
		if !ok {
			diag.Warnf("keyMap %d: key %d refers to unknown action %q", table, code, *k.Action)
			return Key{}, false
		}
		return Key{Code: code, Action: idx}, true
	case k.Inline != nil:
		a := convertAction(*k.Inline)
		a.ID = ""
		doc.Actions = append(doc.Actions, a)
		return Key{Code: code, Action: len(doc.Actions) - 1}, true
	default:
		diag.Warnf("keyMap %d: key %d has neither output nor action", table, code)
		return Key{}, false
	}
}
