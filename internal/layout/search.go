package layout

import (
	"sort"
	"strings"
)

func fold(s string) string {
	return strings.ToLower(s)
}

func equalFold(a, b string) bool {
	return fold(a) == fold(b)
}

// Compare orders sequences by keys ignoring case, then by output.
func Compare(a, b DeadSequence) int {
	if c := strings.Compare(fold(a.Keys), fold(b.Keys)); c != 0 {
		return c
	}
	return strings.Compare(a.Output, b.Output)
}

// Sort orders seqs in place with Compare.
func Sort(seqs []DeadSequence) {
	sort.SliceStable(seqs, func(i, j int) bool {
		return Compare(seqs[i], seqs[j]) < 0
	})
}

// lowerBound returns the index of the first entry whose folded keys are not
// less than the folded key.
func lowerBound(seqs []DeadSequence, key string) int {
	k := fold(key)
	return sort.Search(len(seqs), func(i int) bool {
		return fold(seqs[i].Keys) >= k
	})
}

// Find returns the entry whose keys equal keys exactly. seqs must be sorted.
func Find(seqs []DeadSequence, keys string) (DeadSequence, bool) {
	k := fold(keys)
	for i := lowerBound(seqs, keys); i < len(seqs) && fold(seqs[i].Keys) == k; i++ {
		if seqs[i].Keys == keys {
			return seqs[i], true
		}
	}
	return DeadSequence{}, false
}

// HasExtension reports whether some entry's keys begin with prefix and are
// longer than it, meaning more keystrokes may still complete a sequence.
// seqs must be sorted.
func HasExtension(seqs []DeadSequence, prefix string) bool {
	p := fold(prefix)
	for i := lowerBound(seqs, prefix); i < len(seqs); i++ {
		keys := seqs[i].Keys
		if !strings.HasPrefix(fold(keys), p) {
			break
		}
		if len(keys) > len(prefix) && strings.HasPrefix(keys, prefix) {
			return true
		}
	}
	return false
}

// LongestPrefix returns the entry matching the longest leading run of buf,
// and the number of runes it covers.
func LongestPrefix(seqs []DeadSequence, buf []rune) (DeadSequence, int, bool) {
	for n := len(buf); n > 0; n-- {
		if seq, ok := Find(seqs, string(buf[:n])); ok {
			return seq, n, true
		}
	}
	return DeadSequence{}, 0, false
}

// Dedupe collapses entries with the same keys. Identical outputs merge; a
// non-empty output wins over an empty one; of two different non-empty
// outputs the first is kept and warn is called. The result is sorted.
func Dedupe(seqs []DeadSequence, warn func(keys, kept, dropped string)) []DeadSequence {
	out := make([]DeadSequence, 0, len(seqs))
	index := make(map[string]int, len(seqs))
	for _, seq := range seqs {
		i, ok := index[seq.Keys]
		if !ok {
			index[seq.Keys] = len(out)
			out = append(out, seq)
			continue
		}
		prev := out[i].Output
		switch {
		case prev == seq.Output, seq.Output == "":
		case prev == "":
			out[i].Output = seq.Output
		default:
			if warn != nil {
				warn(seq.Keys, prev, seq.Output)
			}
		}
	}
	Sort(out)
	return out
}
