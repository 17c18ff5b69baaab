package keycode

import "elk/internal/modifier"

// functionKeys holds the conventional output of keys that print nothing:
// return, tab, escape, arrows, the keypad and the function row.
var functionKeys = map[Code]rune{
	36: '\r', 48: '\t', 49: ' ', 51: 0x08, 52: 0x03, 53: 0x1b,
	64: 0x10, 65: '.', 66: 0x1d, 67: '*', 69: '+', 70: 0x1c,
	71: 0x1b, 72: 0x1f, 75: '/', 76: 0x03, 77: 0x1e, 78: '-',
	79: 0x10, 80: 0x10, 81: '=', 82: '0', 83: '1', 84: '2',
	85: '3', 86: '4', 87: '5', 88: '6', 89: '7', 91: '8',
	92: '9', 96: 0x10, 97: 0x10, 98: 0x10, 99: 0x10, 100: 0x10,
	101: 0x10, 102: 0x10, 103: 0x10, 104: 0x10, 105: 0x10, 106: 0x10,
	107: 0x10, 108: 0x10, 109: 0x10, 110: 0x10, 111: 0x10, 112: 0x10,
	113: 0x10, 114: 0x05, 115: 0x01, 116: 0x0b, 117: 0x7f, 118: 0x10,
	119: 0x04, 120: 0x10, 121: 0x0c, 122: 0x10, 123: 0x1c, 124: 0x1d,
	125: 0x1f, 126: 0x1e,
}

// controlKeys holds what a key types while Control is held.
var controlKeys = map[Code]rune{
	0: 0x01, 1: 0x13, 2: 0x04, 3: 0x06, 4: 0x08, 5: 0x07,
	6: 0x1a, 7: 0x18, 8: 0x03, 9: 0x16, 10: '0', 11: 0x02,
	12: 0x11, 13: 0x17, 14: 0x05, 15: 0x12, 16: 0x19, 17: 0x14,
	27: 0x1f, 30: 0x1d, 31: 0x0f, 32: 0x15, 33: 0x1b, 34: 0x09,
	35: 0x10, 37: 0x0c, 38: 0x0a, 40: 0x0b, 42: 0x1c, 45: 0x0e,
	46: 0x0d, 48: 0x09, 49: 0,
}

// ControlDefault returns the character a key conventionally types in state
// s when the layout leaves it undefined. A zero result means the key stays
// undefined.
func ControlDefault(c Code, s modifier.State) rune {
	var r rune
	if c == 10 {
		r = 0xa7
		if s.Has(modifier.Shift) {
			r = 0xb1
		}
	} else {
		r = functionKeys[c]
	}
	if s.Has(modifier.Control) {
		if ctrl, ok := controlKeys[c]; ok {
			r = ctrl
		}
	}
	return r
}
