package apperr

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"
)

func TestIOError_MatchesErrIOAndCause(t *testing.T) {
	err := fmt.Errorf("mirror: %w", &IOError{Op: "write", Path: "/x", Err: fs.ErrPermission})
	if !errors.Is(err, ErrIO) {
		t.Error("expected errors.Is(err, ErrIO)")
	}
	if !errors.Is(err, fs.ErrPermission) {
		t.Error("expected cause to unwrap")
	}
	var ioErr *IOError
	if !errors.As(err, &ioErr) || ioErr.Path != "/x" {
		t.Errorf("errors.As failed: %v", ioErr)
	}
}

func TestIOError_Message(t *testing.T) {
	err := &IOError{Op: "read", Path: "a.glsl", Err: fs.ErrNotExist}
	if got := err.Error(); got != "read a.glsl: file does not exist" {
		t.Errorf("Error() = %q", got)
	}
}
