package modifier

import "strings"

// Predicate tokens as they appear in a keyMapSelect modifier element,
// ordered by bit.
var predicateTokens = [...]string{"anyShift", "anyControl", "command", "anyOption", "caps"}

// Predicate renders the keys attribute selecting required plus any subset
// of optional. Required tokens come first in bit order; optional tokens
// follow from the highest bit down with a trailing "?". Optional bits that
// are also required are dropped.
func Predicate(required, optional State) string {
	var parts []string
	for i, tok := range predicateTokens {
		if required&(1<<i) != 0 {
			parts = append(parts, tok)
		}
	}
	optional &^= required
	for i := len(predicateTokens) - 1; i >= 0; i-- {
		if optional&(1<<i) != 0 {
			parts = append(parts, predicateTokens[i]+"?")
		}
	}
	return strings.Join(parts, " ")
}

// ParsePredicate returns the required and allowed bit masks of a
// keyMapSelect modifier string. Matching is by case-insensitive substring,
// so "anyShift", "shift" and "rightShift" all name the Shift bit; a name
// directly followed by "?" is optional.
func ParsePredicate(keys string) (required, allowed State) {
	keys = strings.ToLower(keys)
	for i, name := range names {
		if !strings.Contains(keys, name) {
			continue
		}
		if strings.Contains(keys, name+"?") {
			allowed |= 1 << i
		} else {
			required |= 1 << i
		}
	}
	return required, allowed
}

// Matches reports whether s is selected by the masks returned from
// ParsePredicate: every required bit set and nothing outside
// required|allowed.
func Matches(s, required, allowed State) bool {
	return s|allowed == required|allowed
}
