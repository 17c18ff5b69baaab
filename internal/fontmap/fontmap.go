// Package fontmap re-points the glyphs of a font so that each key of the
// main block shows the character a layout assigns to it.
//
// Fonts are reached only through GlyphTable; parsing and writing font
// files is left to the caller.
package fontmap

import (
	"elk/internal/keycode"
	"elk/internal/layout"
	"elk/internal/modifier"
)

// GlyphID identifies a glyph in a font. Zero is the missing glyph.
type GlyphID uint16

// GlyphTable is a character to glyph map of a font.
type GlyphTable interface {
	MapCharacterToGlyph(r rune) (GlyphID, bool)
	SetCharacterToGlyph(r rune, g GlyphID)
}

// Mapping records one change made by Remap: the key character now shows
// the glyph that used to belong to Char.
type Mapping struct {
	Key   rune
	Char  rune
	Glyph GlyphID
}

// Remap points every unshifted and shifted main-block key character of t at
// the glyph of the character l types on that key. All glyphs are looked up
// before t is changed, so chains of swaps resolve against the original
// font. Keys whose target character has no glyph are left alone.
func Remap(t GlyphTable, l *layout.Layout) []Mapping {
	rows := []struct {
		state modifier.State
		key   func(keycode.Code) rune
	}{
		{modifier.None, keycode.Lower},
		{modifier.Shift, keycode.Upper},
	}

	var changes []Mapping
	for _, row := range rows {
		km, ok := l.KeyMap(row.state)
		if !ok {
			continue
		}
		for c := 0; c < keycode.MainBlock(); c++ {
			code := keycode.Code(c)
			key, char := row.key(code), km[code]
			if key == 0 || char == 0 {
				continue
			}
			g, ok := t.MapCharacterToGlyph(char)
			if !ok || g == 0 {
				continue
			}
			changes = append(changes, Mapping{Key: key, Char: char, Glyph: g})
		}
	}

	for _, m := range changes {
		t.SetCharacterToGlyph(m.Key, m.Glyph)
	}
	return changes
}
