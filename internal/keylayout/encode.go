package keylayout

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (
	xmlHeader = `<?xml version="1.1" encoding="UTF-8"?>`
	doctype   = `<!DOCTYPE keyboard SYSTEM "file://localhost/System/Library/DTDs/KeyboardLayout.dtd">`
	indent    = "   "
)

// Encode writes doc as a .keylayout file.
//
// Every character outside printable ASCII, and the XML specials, is written
// as a hexadecimal character reference. Control characters therefore
// survive, which is why the file declares XML 1.1.
func Encode(w io.Writer, doc *Document) error {
	if doc.ModifierMap == nil {
		return errors.New("keylayout: encode: document has no modifier map")
	}
	if doc.KeyMapSet == nil {
		return errors.New("keylayout: encode: document has no key map set")
	}

	e := &emitter{w: bufio.NewWriter(w)}
	e.line(0, xmlHeader)
	e.line(0, doctype)
	e.open(0, "keyboard",
		attr{"group", strconv.Itoa(doc.Group)},
		attr{"id", strconv.Itoa(doc.ID)},
		attr{"name", doc.Name},
		attr{"maxout", strconv.Itoa(doc.MaxOut)})

	layouts := doc.Layouts
	if len(layouts) == 0 {
		layouts = []LayoutRef{{MapSet: doc.KeyMapSet.ID, Modifiers: doc.ModifierMap.ID}}
	}
	e.open(1, "layouts")
	for _, l := range layouts {
		e.empty(2, "layout",
			attr{"first", strconv.Itoa(l.First)},
			attr{"last", strconv.Itoa(l.Last)},
			attr{"mapSet", l.MapSet},
			attr{"modifiers", l.Modifiers})
	}
	e.close(1, "layouts")

	mm := doc.ModifierMap
	e.open(1, "modifierMap", attr{"id", mm.ID}, attr{"defaultIndex", strconv.Itoa(mm.DefaultIndex)})
	for _, sel := range mm.Selects {
		e.open(2, "keyMapSelect", attr{"mapIndex", strconv.Itoa(sel.MapIndex)})
		for _, keys := range sel.Keys {
			e.empty(3, "modifier", attr{"keys", keys})
		}
		e.close(2, "keyMapSelect")
	}
	e.close(1, "modifierMap")

	e.open(1, "keyMapSet", attr{"id", doc.KeyMapSet.ID})
	for _, table := range doc.KeyMapSet.Tables {
		e.open(2, "keyMap", attr{"index", strconv.Itoa(table.Index)})
		for _, key := range table.Keys {
			if err := e.key(3, doc, key); err != nil {
				return err
			}
		}
		e.close(2, "keyMap")
	}
	e.close(1, "keyMapSet")

	if hasSharedActions(doc) {
		e.open(1, "actions")
		for _, a := range doc.Actions {
			if a.ID == "" {
				continue
			}
			e.action(2, a)
		}
		e.close(1, "actions")
	}

	if len(doc.Terminators) > 0 {
		e.open(1, "terminators")
		for _, t := range doc.Terminators {
			e.empty(2, "when", attr{"state", t.State}, attr{"output", t.Output})
		}
		e.close(1, "terminators")
	}
	e.close(0, "keyboard")

	return e.w.Flush()
}

func hasSharedActions(doc *Document) bool {
	for _, a := range doc.Actions {
		if a.ID != "" {
			return true
		}
	}
	return false
}

type attr struct {
	name  string
	value string
}

// emitter writes indented elements. Write errors are sticky in the
// bufio.Writer and surface from Flush.
type emitter struct {
	w *bufio.Writer
}

func (e *emitter) line(depth int, s string) {
	for i := 0; i < depth; i++ {
		e.w.WriteString(indent)
	}
	e.w.WriteString(s)
	e.w.WriteByte('\n')
}

func (e *emitter) tag(name string, attrs []attr) string {
	var b strings.Builder
	b.WriteByte('<')
	b.WriteString(name)
	for _, a := range attrs {
		b.WriteByte(' ')
		b.WriteString(a.name)
		b.WriteString(`="`)
		b.WriteString(Escape(a.value))
		b.WriteByte('"')
	}
	return b.String()
}

func (e *emitter) open(depth int, name string, attrs ...attr) {
	e.line(depth, e.tag(name, attrs)+">")
}

func (e *emitter) empty(depth int, name string, attrs ...attr) {
	e.line(depth, e.tag(name, attrs)+"/>")
}

func (e *emitter) close(depth int, name string) {
	e.line(depth, "</"+name+">")
}

func (e *emitter) key(depth int, doc *Document, key Key) error {
	code := attr{"code", strconv.Itoa(key.Code)}
	if key.Literal() {
		e.empty(depth, "key", code, attr{"output", key.Output})
		return nil
	}
	if key.Action < 0 || key.Action >= len(doc.Actions) {
		return fmt.Errorf("keylayout: encode: key %d refers to missing action %d", key.Code, key.Action)
	}
	a := doc.Actions[key.Action]
	if a.ID != "" {
		e.empty(depth, "key", code, attr{"action", a.ID})
		return nil
	}
	e.open(depth, "key", code)
	e.action(depth+1, a)
	e.close(depth, "key")
	return nil
}

func (e *emitter) action(depth int, a Action) {
	if a.ID != "" {
		e.open(depth, "action", attr{"id", a.ID})
	} else {
		e.open(depth, "action")
	}
	for _, w := range a.Whens {
		attrs := []attr{{"state", w.State}}
		if w.Through != "" {
			attrs = append(attrs, attr{"through", w.Through})
		}
		if w.Terminal() {
			attrs = append(attrs, attr{"output", w.Output})
		} else {
			attrs = append(attrs, attr{"next", w.Next})
		}
		if w.Multiplier != "" {
			attrs = append(attrs, attr{"multiplier", w.Multiplier})
		}
		e.empty(depth+1, "when", attrs...)
	}
	e.close(depth, "action")
}

// Escape returns s with every rune outside printable ASCII, and each of
// & < > " ', replaced by a hexadecimal character reference.
func Escape(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r < 0x20, r > 0x7e, r == '&', r == '<', r == '>', r == '"', r == '\'':
			fmt.Fprintf(&b, "&#x%04X;", r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
