package parser

import (
	"unicode/utf8"

	"elk/internal/layout"
)

// collector gathers candidate sequences for one table in discovery order.
type collector struct {
	seqs []layout.DeadSequence
}

func (c *collector) add(keys, output string) {
	c.seqs = append(c.seqs, layout.DeadSequence{Keys: keys, Output: output})
}

// sequences recovers the dead sequences of table t. Sequences may start on
// a key of any table, but continue through t's own keys.
func (p *parser) sequences(t *table) []layout.DeadSequence {
	c := &collector{}
	onPath := make([]bool, len(p.ids))

	for code, edges := range t.edges {
		ch := t.display(code)
		if ch == 0 {
			continue
		}
		for _, e := range edges {
			if e.state != p.none {
				continue
			}
			if !e.next {
				if utf8.RuneCountInString(e.data) > 1 {
					c.add(string(ch), e.data)
				}
				continue
			}
			if utf8.RuneCountInString(e.term) > 1 {
				c.add(string(ch), e.term)
			}
			p.walkFrom(t, c, onPath, []rune{ch}, e.nextID)
		}
	}

	for _, j := range p.tables {
		if j == t || len(j.states) == 0 {
			continue
		}
		for code, edges := range j.edges {
			ch := j.display(code)
			if ch == 0 {
				continue
			}
			for _, e := range edges {
				if e.state == p.none && e.next {
					p.walkFrom(t, c, onPath, []rune{ch}, e.nextID)
				}
			}
		}
	}

	return layout.Dedupe(c.seqs, func(keys, kept, dropped string) {
		p.diag.Warnf("keyMap %d: sequence %q has outputs %q and %q; keeping %q",
			t.index, keys, kept, dropped, kept)
	})
}

func (p *parser) walkFrom(t *table, c *collector, onPath []bool, prefix []rune, state int) {
	onPath[state] = true
	p.walk(t, c, onPath, prefix, state)
	onPath[state] = false
}

// walk follows every edge of t leaving state. States already on the current
// path are not entered again.
func (p *parser) walk(t *table, c *collector, onPath []bool, prefix []rune, state int) {
	for code, edges := range t.edges {
		ch := t.display(code)
		if ch == 0 || ch == '?' {
			continue
		}
		for _, e := range edges {
			if e.state != state || e.state == p.none {
				continue
			}
			keys := append(prefix[:len(prefix):len(prefix)], ch)
			if !e.next {
				c.add(string(keys), e.data)
				continue
			}
			if !onPath[e.nextID] {
				p.walkFrom(t, c, onPath, keys, e.nextID)
			}
			if e.term != "" {
				c.add(string(keys), e.term)
			}
		}
	}
}
