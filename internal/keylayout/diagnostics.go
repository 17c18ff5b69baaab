package keylayout

import (
	"fmt"
	"log/slog"
	"sync"
)

// Diagnostics collects messages about problems that were skipped while
// reading a document. A nil *Diagnostics discards everything.
type Diagnostics struct {
	mu       sync.Mutex
	messages []string
	logger   *slog.Logger
}

// NewDiagnostics returns a collector that also logs each message at warn
// level when logger is non-nil.
func NewDiagnostics(logger *slog.Logger) *Diagnostics {
	return &Diagnostics{logger: logger}
}

// Warnf records a message.
func (d *Diagnostics) Warnf(format string, args ...any) {
	if d == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	d.mu.Lock()
	d.messages = append(d.messages, msg)
	d.mu.Unlock()
	if d.logger != nil {
		d.logger.Warn(msg)
	}
}

// Messages returns the recorded messages in order.
func (d *Diagnostics) Messages() []string {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.messages...)
}

// Len returns the number of recorded messages.
func (d *Diagnostics) Len() int {
	if d == nil {
		return 0
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.messages)
}
