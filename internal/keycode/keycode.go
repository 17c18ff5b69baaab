// Package keycode translates between Macintosh virtual key codes and the
// characters a US keyboard prints on those keys.
package keycode

import "elk/internal/modifier"

// Code is a hardware-independent physical key number in [0, Count).
type Code uint8

// Count is the number of key codes a key map covers.
const Count = 128

// Invalid is returned for characters that no key produces.
const Invalid Code = 255

// Valid reports whether c addresses a key map slot.
func (c Code) Valid() bool {
	return c < Count
}

// codeTable is the character engraved on each key. Letters are upper case.
var codeTable = [Count]rune{
	'A', 'S', 'D', 'F', 'H', 'G', 'Z', 'X', 'C', 'V',
	'|', 'B', 'Q', 'W', 'E', 'R', 'Y', 'T', '1', '2',
	'3', '4', '6', '5', '=', '9', '7', '-', '8', '0',
	']', 'O', 'U', '[', 'I', 'P', '\n', 'L', 'J', '\'',
	'K', ';', '\\', ',', '/', 'N', 'M', '.', '\t', ' ',
	'`', 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, '.', 0, '*', 0, '+',
	0, 0, 0, 0, 0, '/', '\n', 0, '-', 0,
	0, '=', '0', '1', '2', '3', '4', '5', '6', '7',
	0, '8', '9', 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, '?', 0, 0, 0, 0, 0,
}

// Unshifted and shifted characters of the main block, indexed by code.
// A zero marks keys that have no printable character.
const (
	lowerMapping = "asdfhgzxcv\x00bqweryt12" +
		"3465=97-80]ou[ip\x00lj'" +
		"k;\\,/nm.\x00\x00`"
	upperMapping = "ASDFHGZXCV\x00BQWERYT!@" +
		"#$^%+(&_*)}OU{IP\x00LJ\"" +
		"K:|<?NM>\x00\x00~"
)

var fromChar = buildFromChar()

func buildFromChar() map[rune]Code {
	m := make(map[rune]Code, 2*len(lowerMapping)+1)
	for i := 0; i < len(lowerMapping); i++ {
		if c := rune(lowerMapping[i]); c != 0 {
			m[c] = Code(i)
		}
		if c := rune(upperMapping[i]); c != 0 {
			m[c] = Code(i)
		}
	}
	m[' '] = 49
	return m
}

// Char returns the character engraved on the key, or 0.
func Char(c Code) rune {
	if !c.Valid() {
		return 0
	}
	return codeTable[c]
}

// Display returns the key's character in the case that state s produces.
func Display(c Code, s modifier.State) rune {
	r := Char(c)
	if r == 0 {
		return 0
	}
	return modifier.FoldRune(s, r)
}

// FromChar returns the key that types r on a US keyboard, with or without
// shift. It returns Invalid, false when no key does.
func FromChar(r rune) (Code, bool) {
	c, ok := fromChar[r]
	if !ok {
		return Invalid, false
	}
	return c, true
}

// Lower returns the unshifted character of the main-block key c, or 0.
func Lower(c Code) rune {
	if int(c) >= len(lowerMapping) {
		return 0
	}
	return rune(lowerMapping[c])
}

// Upper returns the shifted character of the main-block key c, or 0.
func Upper(c Code) rune {
	if int(c) >= len(upperMapping) {
		return 0
	}
	return rune(upperMapping[c])
}

// MainBlock returns the number of codes covered by Lower and Upper.
func MainBlock() int {
	return len(lowerMapping)
}
