package fontmap

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"unicode/utf8"
)

// CMap is an in-memory GlyphTable that can be stored as JSON:
//
//	{"family": "Geneva", "glyphs": {"a": 68, "b": 69}}
type CMap struct {
	Family string
	glyphs map[rune]GlyphID
}

type cmapFile struct {
	Family string             `json:"family"`
	Glyphs map[string]GlyphID `json:"glyphs"`
}

// NewCMap returns an empty table.
func NewCMap(family string) *CMap {
	return &CMap{Family: family, glyphs: make(map[rune]GlyphID)}
}

func (c *CMap) MapCharacterToGlyph(r rune) (GlyphID, bool) {
	g, ok := c.glyphs[r]
	return g, ok
}

func (c *CMap) SetCharacterToGlyph(r rune, g GlyphID) {
	c.glyphs[r] = g
}

// Len returns the number of mapped characters.
func (c *CMap) Len() int {
	return len(c.glyphs)
}

// ReadCMap decodes a JSON table.
func ReadCMap(r io.Reader) (*CMap, error) {
	var f cmapFile
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("decode cmap: %w", err)
	}
	c := NewCMap(f.Family)
	for key, g := range f.Glyphs {
		r, size := utf8.DecodeRuneInString(key)
		if r == utf8.RuneError || size != len(key) {
			return nil, fmt.Errorf("cmap: key %q is not one character", key)
		}
		c.glyphs[r] = g
	}
	return c, nil
}

// Write encodes the table as JSON.
func (c *CMap) Write(w io.Writer) error {
	f := cmapFile{Family: c.Family, Glyphs: make(map[string]GlyphID, len(c.glyphs))}
	for r, g := range c.glyphs {
		f.Glyphs[string(r)] = g
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(f)
}

// Characters returns the mapped characters in ascending order.
func (c *CMap) Characters() []rune {
	chars := make([]rune, 0, len(c.glyphs))
	for r := range c.glyphs {
		chars = append(chars, r)
	}
	sort.Slice(chars, func(i, j int) bool { return chars[i] < chars[j] })
	return chars
}

// LoadCMapFile reads a JSON table from path.
func LoadCMapFile(path string) (*CMap, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCMap(f)
}

// SaveCMapFile writes c to path.
func SaveCMapFile(path string, c *CMap) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := c.Write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
