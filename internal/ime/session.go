package ime

import (
	"strings"
	"sync"

	"github.com/google/uuid"

	"elk/internal/layout"
	"elk/internal/modifier"
)

// Session is the composition state of one input focus target.
type Session struct {
	mu     sync.Mutex
	id     string
	engine *Engine

	buffer []rune
	// first is the state the pending sequence started in; previous is the
	// state of the most recent keystroke after the first.
	first    modifier.State
	previous modifier.State
}

func newSession(e *Engine) *Session {
	return &Session{id: uuid.NewString(), engine: e}
}

// ID returns the session's unique identifier.
func (s *Session) ID() string {
	return s.id
}

// ProcessChar feeds one keystroke typed with state m and returns the text it
// completes, possibly empty while a dead sequence is pending.
func (s *Session) ProcessChar(r rune, m modifier.State) string {
	if r == 0 {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	r = modifier.NormalizeLetter(m, r)
	switch len(s.buffer) {
	case 0:
		s.first = m
	case 1:
		s.previous = m
	}
	s.buffer = append(s.buffer, r)
	return s.resolve(m, false)
}

// Flush resolves the pending keystrokes as if no further key could extend
// them, and returns the resulting text.
func (s *Session) Flush() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolve(s.previous, true)
}

// Pending returns the keystrokes waiting for a sequence to complete.
func (s *Session) Pending() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return string(s.buffer)
}

// Reset discards the pending keystrokes.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buffer = nil
	s.first, s.previous = modifier.None, modifier.None
}

// resolve consumes the buffer from the front. Unless final is set it stops
// as soon as the buffer is a proper prefix of a sequence.
func (s *Session) resolve(m modifier.State, final bool) string {
	e := s.engine
	var out strings.Builder
	for len(s.buffer) > 0 {
		if !final {
			text := string(s.buffer)
			if layout.HasExtension(e.sequences[s.first], text) {
				break
			}
			flip := modifier.Flip(s.first)
			if layout.HasExtension(e.sequences[flip], text) {
				s.first = flip
				break
			}
		}

		if seq, n, ok := e.longest(s.first, s.buffer); ok {
			out.WriteString(seq.Output)
			s.buffer = s.buffer[n:]
			s.first = m
			continue
		}

		if r := e.translate(s.first, s.buffer[0]); r != 0 {
			out.WriteRune(r)
		}
		s.first = s.previous
		s.previous = m
		s.buffer = s.buffer[1:]
	}
	if len(s.buffer) == 0 {
		s.buffer = nil
	}
	return out.String()
}
