package modifier

import "strings"

const (
	lowerLetters = "abcdefghijklmnopqrstuvwxyz"
	upperLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	lowerSpecial = "`1234567890-=[]\\;',./"
	upperSpecial = "~!@#$%^&*()_+{}|:\"<>?"
)

// alphabet is a positional substitution: the rune at index i of from is
// replaced with the rune at index i of to.
type alphabet struct {
	from []rune
	to   []rune
}

var (
	shiftAlphabet     = newAlphabet(lowerLetters+lowerSpecial, upperLetters+upperSpecial)
	capsAlphabet      = newAlphabet(lowerLetters+upperSpecial, upperLetters+lowerSpecial)
	shiftCapsAlphabet = newAlphabet(upperLetters+lowerSpecial, lowerLetters+upperSpecial)
	plainAlphabet     = newAlphabet(upperLetters+upperSpecial, lowerLetters+lowerSpecial)
)

func newAlphabet(from, to string) alphabet {
	return alphabet{from: []rune(from), to: []rune(to)}
}

func (a alphabet) convert(r rune) rune {
	for i, c := range a.from {
		if c == r {
			return a.to[i]
		}
	}
	return r
}

func alphabetFor(s State) alphabet {
	switch s & (Shift | Caps) {
	case Shift:
		return shiftAlphabet
	case Caps:
		return capsAlphabet
	case Shift | Caps:
		return shiftCapsAlphabet
	default:
		return plainAlphabet
	}
}

// CaseFold rewrites text into the case that the Shift/Caps bits of s
// produce on a US keyboard. Runes outside the letter and punctuation rows
// pass through unchanged.
func CaseFold(s State, text string) string {
	a := alphabetFor(s)
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		b.WriteRune(a.convert(r))
	}
	return b.String()
}

// FoldRune is CaseFold for a single rune.
func FoldRune(s State, r rune) rune {
	return alphabetFor(s).convert(r)
}

// InferStart adjusts the Shift bit of s so that first is a character the
// resulting state naturally produces. It is used to pick the table a dead
// sequence starts in.
func InferStart(s State, first rune) State {
	upperS := strings.ContainsRune(upperSpecial, first)
	upperL := strings.ContainsRune(upperLetters, first)
	lowerS := strings.ContainsRune(lowerSpecial, first)
	lowerL := strings.ContainsRune(lowerLetters, first)

	switch s & (Shift | Caps) {
	case Shift:
		if upperS || upperL {
			return s
		}
		return s &^ Shift
	case Caps:
		if lowerS || upperL {
			return s
		}
		return s | Shift
	case Shift | Caps:
		if upperS || lowerL {
			return s
		}
		return s &^ Shift
	default:
		if lowerS || lowerL {
			return s
		}
		return s | Shift
	}
}

// IsLetter reports whether r is an ASCII letter.
func IsLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

// NormalizeLetter puts an ASCII letter into the case s produces: upper case
// when exactly one of Shift and Caps is held, lower case otherwise. Other
// runes are returned unchanged.
func NormalizeLetter(s State, r rune) rune {
	if !IsLetter(r) {
		return r
	}
	flag := s & (Shift | Caps)
	upper := flag == Shift || flag == Caps
	if upper && r >= 'a' && r <= 'z' {
		return r - 'a' + 'A'
	}
	if !upper && r >= 'A' && r <= 'Z' {
		return r - 'A' + 'a'
	}
	return r
}
