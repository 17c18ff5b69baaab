package parser

import (
	"fmt"
	"os"

	"elk/internal/keylayout"
	"elk/internal/layout"
)

// ReadFile decodes and parses the keylayout file at path.
func ReadFile(path string, diag *keylayout.Diagnostics) (*layout.Layout, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	doc, err := keylayout.Decode(f, diag)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	l, err := Parse(doc, diag)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return l, nil
}
