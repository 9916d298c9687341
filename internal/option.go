package internal

import (
	"log/slog"

	"github.com/starford/livetext/internal/editor"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config   *Config
	launcher editor.Launcher
	logger   *slog.Logger
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithLauncher replaces the editor built from the editor config section.
func WithLauncher(l editor.Launcher) Option {
	return func(a *application) {
		a.launcher = l
	}
}

// WithLogger replaces the default JSON logger on stdout.
func WithLogger(l *slog.Logger) Option {
	return func(a *application) {
		a.logger = l
	}
}
