package compiler

import (
	"elk/internal/layout"
	"elk/internal/modifier"
)

// group is one key map table of the output: the states sharing it and the
// modifier predicates that select them.
type group struct {
	seed       modifier.State
	predicates []string
}

// groupStates partitions the 32 states into tables. States are visited in
// ascending order; an unassigned state seeds a table and absorbs the
// supersets that behave the same. Later states equal to the seed join the
// same table under their own predicate.
func groupStates(l *layout.Layout) ([]group, [modifier.Count]int) {
	var (
		groups   []group
		groupOf  [modifier.Count]int
		assigned [modifier.Count]bool
	)

	for s := modifier.State(0); s < modifier.Count; s++ {
		if assigned[s] {
			continue
		}
		index := len(groups)
		g := group{seed: s}
		for t := s; t < modifier.Count; t++ {
			if assigned[t] || (t != s && !l.Equal(s, t)) {
				continue
			}
			covered, top := absorb(l, t, &assigned)
			for _, c := range covered {
				assigned[c] = true
				groupOf[c] = index
			}
			g.predicates = append(g.predicates, modifier.Predicate(t, top&^t))
		}
		groups = append(groups, g)
	}
	return groups, groupOf
}

// absorb returns the states a predicate seeded at seed can select, and the
// widest state among them. A superset m qualifies when it equals seed and
// every state between seed and m qualifies as well.
func absorb(l *layout.Layout, seed modifier.State, assigned *[modifier.Count]bool) ([]modifier.State, modifier.State) {
	var optional [modifier.Count]bool
	optional[seed] = true

	for m := seed + 1; m < modifier.Count; m++ {
		if m&seed != seed || assigned[m] || !l.Equal(seed, m) {
			continue
		}
		ok := true
		for j := seed; j < m; j++ {
			if j&seed != seed || j&m != j {
				continue
			}
			if !optional[j] || assigned[j] || !l.Equal(m, j) {
				ok = false
				break
			}
		}
		optional[m] = ok
	}

	top := seed
	for m := modifier.State(0); m < modifier.Count; m++ {
		if optional[m] {
			top = m
		}
	}

	var covered []modifier.State
	for m := seed; m <= top; m++ {
		if m&seed == seed && m&top == m {
			covered = append(covered, m)
		}
	}
	return covered, top
}
