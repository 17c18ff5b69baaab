// Package ime composes text from a stream of keystrokes against a layout.
//
// # Architecture Overview
//
// An Engine is built once per layout and never changes afterwards, so any
// number of sessions may read it at the same time. A Session belongs to one
// input focus target and must be fed keystrokes in the order they were
// typed:
//
//	Key Event → Session.ProcessChar → Committed Text
//	               ↓
//	      [buffer, first, previous]
//	               ↓
//	 Dead sequences of the first state,
//	 then of its shift-flipped twin,
//	 then the literal key map
//
// # Composition Loop
//
// Every keystroke is appended to the session buffer. The buffer is then
// resolved from the front until it is empty or until it is the proper
// prefix of some dead sequence, in which case the session waits for more
// keys:
//
//  1. A sequence of the first state that extends the buffer keeps it pending.
//  2. The same test against the flipped state switches to that state.
//  3. The longest sequence matching the head of the buffer is emitted.
//  4. Otherwise the first buffered character is typed literally and dropped.
//
// Each round either returns or consumes at least one buffered character, so
// ProcessChar always terminates.
//
// # Usage
//
//	engine := ime.NewEngine(l)
//	s := engine.NewSession()
//	s.ProcessChar('^', modifier.None) // ""
//	s.ProcessChar('a', modifier.None) // "â"
//	s.Flush()                          // focus lost: resolve what is left
package ime
