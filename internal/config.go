package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/livetext/internal/mirror"
	"github.com/starford/livetext/internal/parser"
	"github.com/starford/livetext/pkg/config"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app" toml:"app"`
	Mirror    MirrorConfig      `yaml:"mirror" toml:"mirror"`
	Inbox     InboxConfig       `yaml:"inbox" toml:"inbox"`
	Workspace WorkspaceConfig   `yaml:"workspace" toml:"workspace"`
	SQLite    SQLiteConfig      `yaml:"sqlite" toml:"sqlite"`
	Auth      AuthConfig        `yaml:"auth" toml:"auth"`
	Editor    EditorConfig      `yaml:"editor" toml:"editor"`
	Grammars  []parser.Grammar  `yaml:"grammars" toml:"grammars"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Mirror.Validate(); err != nil {
		return err
	}
	if err := c.Inbox.Validate(); err != nil {
		return err
	}
	if err := c.Workspace.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	return validateGrammars(c.Grammars)
}

// GrammarTable indexes the configured grammars by name. A later grammar
// replaces an earlier one with the same name.
func (c *Config) GrammarTable() parser.Grammars {
	return parser.NewGrammars(c.Grammars...)
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level" toml:"log_level"`
	HTTP     HTTPConfig `yaml:"http" toml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port" toml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// MirrorConfig controls where mirrors are written and how edits are detected.
//
// MinOverrideSize is the size a pre-existing mirror must exceed to be kept
// over generated text. Zero selects the default of 10 bytes; -1 keeps any
// non-empty mirror.
type MirrorConfig struct {
	Dir             string          `yaml:"dir" toml:"dir"`
	SettleInterval  config.Duration `yaml:"settle_interval" toml:"settle_interval"`
	StableSamples   int             `yaml:"stable_samples" toml:"stable_samples"`
	MinOverrideSize int             `yaml:"min_override_size" toml:"min_override_size"`
	Overwrite       bool            `yaml:"overwrite" toml:"overwrite"`
	// PollInterval is the period of the background poll loop. Zero disables it.
	PollInterval config.Duration `yaml:"poll_interval" toml:"poll_interval"`
}

// Validate validates the mirror configuration.
func (c *MirrorConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Dir, validation.Required),
		validation.Field(&c.SettleInterval, validation.Min(config.Duration(0))),
		validation.Field(&c.StableSamples, validation.Min(0)),
		validation.Field(&c.MinOverrideSize, validation.Min(-1)),
		validation.Field(&c.PollInterval, validation.Min(config.Duration(0))),
	)
}

// Options converts the settle parameters into mirror options.
func (c *MirrorConfig) Options(logger *slog.Logger) []mirror.Option {
	return []mirror.Option{
		mirror.WithSettleInterval(c.SettleInterval.Std()),
		mirror.WithStableSamples(c.StableSamples),
		mirror.WithLogger(logger),
	}
}

// InboxConfig holds the directory watched for generated files.
type InboxConfig struct {
	Path  string `yaml:"path" toml:"path"`
	Watch bool   `yaml:"watch" toml:"watch"`
}

// Validate validates the inbox configuration.
func (c *InboxConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// WorkspaceConfig holds exposure limits.
type WorkspaceConfig struct {
	MaxArtifactBytes int `yaml:"max_artifact_bytes" toml:"max_artifact_bytes"`
}

// Validate validates the workspace configuration.
func (c *WorkspaceConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MaxArtifactBytes, validation.Min(0)),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode" toml:"mode"`
	Token string `yaml:"token" toml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// EditorConfig names the program that opens mirror files. An empty Command
// disables opening.
type EditorConfig struct {
	Command        string   `yaml:"command" toml:"command"`
	Args           []string `yaml:"args" toml:"args"`
	BackgroundArgs []string `yaml:"background_args" toml:"background_args"`
}

func validateGrammars(gs []parser.Grammar) error {
	for i := range gs {
		g := &gs[i]
		if err := validation.ValidateStruct(g,
			validation.Field(&g.Name, validation.Required),
		); err != nil {
			return fmt.Errorf("grammars[%d]: %w", i, err)
		}
		if len(g.Markers) > 0 && g.Markers[0] == "" {
			return fmt.Errorf("grammars[%d]: %q has an empty first marker", i, g.Name)
		}
	}
	return nil
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Mirror: MirrorConfig{
			Dir:             "./mirror",
			SettleInterval:  config.Duration(100 * time.Millisecond),
			StableSamples:   3,
			MinOverrideSize: 10,
			PollInterval:    config.Duration(time.Second),
		},
		Inbox: InboxConfig{
			Path:  "./inbox",
			Watch: true,
		},
		Workspace: WorkspaceConfig{
			MaxArtifactBytes: 4 << 20,
		},
		SQLite: SQLiteConfig{
			Path: "./livetext.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Grammars: []parser.Grammar{
			{Name: "arb", Suffix: ".arb", Markers: []string{"!!ARBvp", "!!ARBfp"}},
			{Name: "glsl", Suffix: ".glsl", Markers: []string{"//!!GLSLV", "//!!GLSLF"}},
			{Name: "text", Suffix: ".txt"},
		},
	}
}
