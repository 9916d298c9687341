// Package editor opens mirror files in an external program.
package editor

import (
	"fmt"
	"log/slog"
	"os/exec"
)

// Launcher opens a path for a human to view or edit. Implementations must
// not block until the editor exits.
type Launcher interface {
	Open(path string, foreground bool) error
}

// Command launches a configured program with the path as its last argument.
type Command struct {
	Program string
	Args    []string
	// BackgroundArgs are inserted before the path when foreground is false
	// (e.g. "-b" for editors that can open without taking focus).
	BackgroundArgs []string

	logger *slog.Logger
}

// NewCommand creates a Command launcher.
func NewCommand(program string, args, backgroundArgs []string, logger *slog.Logger) *Command {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Command{Program: program, Args: args, BackgroundArgs: backgroundArgs, logger: logger}
}

// Open starts the program and returns once it is running. The process is
// reaped in the background; its exit status is only logged.
func (c *Command) Open(path string, foreground bool) error {
	if c.Program == "" {
		return fmt.Errorf("editor: no program configured")
	}
	args := append([]string{}, c.Args...)
	if !foreground {
		args = append(args, c.BackgroundArgs...)
	}
	args = append(args, path)

	cmd := exec.Command(c.Program, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("editor: start %s: %w", c.Program, err)
	}
	c.logger.Debug("editor: launched",
		slog.String("program", c.Program),
		slog.String("path", path),
		slog.Bool("foreground", foreground))

	go func() {
		if err := cmd.Wait(); err != nil {
			c.logger.Warn("editor: exited with error",
				slog.String("program", c.Program),
				slog.String("error", err.Error()))
		}
	}()
	return nil
}
