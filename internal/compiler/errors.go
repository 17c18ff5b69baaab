package compiler

import (
	"errors"
	"fmt"

	"elk/internal/modifier"
)

var (
	// ErrConflict is wrapped by every ConflictError.
	ErrConflict = errors.New("conflicting dead sequence")

	// ErrUnmappable is returned when a sequence contains a character that
	// no key types.
	ErrUnmappable = errors.New("character has no key")
)

// ConflictError reports two dead sequences with the same keys and
// different output under one modifier group.
type ConflictError struct {
	Modifier modifier.State
	Keys     string
	Existing string
	Output   string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: %q under %s produces both %q and %q",
		ErrConflict, e.Keys, e.Modifier, e.Existing, e.Output)
}

func (e *ConflictError) Unwrap() error {
	return ErrConflict
}
