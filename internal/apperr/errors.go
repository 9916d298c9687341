// Package apperr holds the error values shared across livetext packages.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrUnknownGrammar    = errors.New("unknown grammar")
	ErrOversizedInput    = errors.New("input exceeds capacity")
	ErrInconsistentState = errors.New("inconsistent state")
	ErrIndexOutOfRange   = errors.New("index out of range")
	ErrIO                = errors.New("i/o failure")
)

// IOError reports a file that could not be opened, read or written.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Is makes every IOError match ErrIO.
func (e *IOError) Is(target error) bool { return target == ErrIO }
