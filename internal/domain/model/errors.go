package model

import (
	"errors"
	"fmt"
)

// Sentinel error kinds shared by every registry component. Callers match them
// with errors.Is; the HTTP layer maps each kind to a status code.
var (
	ErrNotFound          = errors.New("not found")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrAlreadyInactive   = errors.New("already inactive")
	ErrInvalidTransition = errors.New("invalid transition")
)

// Errorf builds an error of the given kind labelled with the failing op.
func Errorf(op string, kind error, format string, args ...any) error {
	return fmt.Errorf("%s: %w: %s", op, kind, fmt.Sprintf(format, args...))
}

// Rejected reports whether err is one of the registry's own error kinds, as
// opposed to a storage or encoding failure.
func Rejected(err error) bool {
	for _, kind := range []error{ErrNotFound, ErrUnauthorized, ErrInvalidArgument, ErrAlreadyInactive, ErrInvalidTransition} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}
