package keylayout

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDocument() *Document {
	return &Document{
		Name:   "Test <&> \"layout\"",
		Group:  Unicode,
		ID:     -42,
		MaxOut: 2,
		Layouts: []LayoutRef{
			{First: 0, Last: 0, MapSet: "maps", Modifiers: "mods"},
		},
		ModifierMap: &ModifierMap{
			ID:           "mods",
			DefaultIndex: 0,
			Selects: []Select{
				{MapIndex: 0, Keys: []string{""}},
				{MapIndex: 1, Keys: []string{"anyShift caps?", "caps"}},
			},
		},
		KeyMapSet: &KeyMapSet{
			ID: "maps",
			Tables: []Table{
				{Index: 0, Keys: []Key{
					{Code: 0, Output: "a", Action: NoAction},
					{Code: 22, Action: 0},
					{Code: 51, Output: "\b", Action: NoAction},
				}},
				{Index: 1, Keys: []Key{
					{Code: 0, Output: "A", Action: NoAction},
				}},
			},
		},
		Actions: []Action{
			{ID: "a22.00", Whens: []When{
				{State: NoneState, Next: "s1"},
				{State: "s2", Output: "é\x01"},
			}},
		},
		Terminators: []Terminator{{State: "s1", Output: "^"}},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	doc := sampleDocument()

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, doc))

	text := buf.String()
	assert.True(t, strings.HasPrefix(text, `<?xml version="1.1" encoding="UTF-8"?>`))
	assert.Contains(t, text, "KeyboardLayout.dtd")
	assert.Contains(t, text, `output="&#x0008;"`)
	assert.Contains(t, text, `name="Test &#x003C;&#x0026;&#x003E; &#x0022;layout&#x0022;"`)
	assert.Contains(t, text, `<key code="22" action="a22.00"/>`)

	diag := NewDiagnostics(nil)
	got, err := Decode(&buf, diag)
	require.NoError(t, err)
	assert.Empty(t, diag.Messages())
	assert.Equal(t, doc, got)
}

func TestDecodeInlineActionAndRanges(t *testing.T) {
	const src = `<?xml version="1.1" encoding="UTF-8"?>
<!DOCTYPE keyboard SYSTEM "file://localhost/System/Library/DTDs/KeyboardLayout.dtd">
<keyboard group="126" id="7" name="Inline" maxout="1">
  <layouts><layout first="0" last="17" mapSet="m" modifiers="f"/></layouts>
  <modifierMap id="f" defaultIndex="0">
    <keyMapSelect mapIndex="0"><modifier keys=""/></keyMapSelect>
  </modifierMap>
  <keyMapSet id="m">
    <keyMap index="0">
      <key code="12"><action><when state="none" output="q"/><when state="1" through="3" output="&#x3B1;" multiplier="2"/></action></key>
      <key code="x" output="z"/>
      <key code="13" action="missing"/>
      <key code="14" output="e" action="other"/>
      <key code="36" output="&#13;"/>
    </keyMap>
  </keyMapSet>
</keyboard>`

	diag := NewDiagnostics(nil)
	doc, err := Decode(strings.NewReader(src), diag)
	require.NoError(t, err)

	require.NotNil(t, doc.KeyMapSet)
	table, ok := doc.KeyMapSet.Table(0)
	require.True(t, ok)
	require.Len(t, table.Keys, 3)

	inline := table.Keys[0]
	require.False(t, inline.Literal())
	action := doc.Actions[inline.Action]
	assert.Empty(t, action.ID)
	assert.Equal(t, When{State: "1", Through: "3", Output: "α", Multiplier: "2"}, action.Whens[1])

	assert.Equal(t, Key{Code: 14, Output: "e", Action: NoAction}, table.Keys[1])
	assert.Equal(t, "\r", table.Keys[2].Output)
	assert.Equal(t, []LayoutRef{{First: 0, Last: 17, MapSet: "m", Modifiers: "f"}}, doc.Layouts)
	assert.Len(t, diag.Messages(), 3)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, doc))
	assert.Contains(t, buf.String(), `<when state="1" through="3" output="&#x03B1;" multiplier="2"/>`)
	assert.NotContains(t, buf.String(), "<actions>")
}

func TestDecodeRejectsOtherRoots(t *testing.T) {
	_, err := Decode(strings.NewReader(`<?xml version="1.0"?><plist/>`), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotKeyboard))

	_, err = Decode(strings.NewReader(`<keyboard`), nil)
	require.Error(t, err)
}

func TestDecodeMissingSections(t *testing.T) {
	doc, err := Decode(strings.NewReader(`<keyboard group="126" id="1" name="x" maxout="oops"/>`), nil)
	require.NoError(t, err)
	assert.Nil(t, doc.ModifierMap)
	assert.Nil(t, doc.KeyMapSet)
	assert.Equal(t, 0, doc.MaxOut)
}

func TestEncodeRequiresSections(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, Encode(&buf, &Document{Name: "x"}))
}

func TestEscape(t *testing.T) {
	assert.Equal(t, "abc", Escape("abc"))
	assert.Equal(t, "&#x0027;&#x0009;&#x00E2;&#x1F600;", Escape("'\tâ😀"))
}

func TestDiagnosticsNilSafe(t *testing.T) {
	var d *Diagnostics
	d.Warnf("ignored %d", 1)
	assert.Nil(t, d.Messages())
	assert.Zero(t, d.Len())
}
