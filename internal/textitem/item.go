// Package textitem gives a generated text buffer a stable on-disk identity
// and decides whether the generated text or a human edit of its mirror file
// is authoritative.
//
// The mirror file name is derived from a hash of the generated bytes, so a
// generator that keeps producing identical output keeps finding the same
// file, and any edit made to it survives restarts. Changing the generated
// text changes the hash and starts a fresh, unedited mirror.
package textitem

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/starford/livetext/internal/apperr"
	"github.com/starford/livetext/internal/checksum"
	"github.com/starford/livetext/internal/editor"
	"github.com/starford/livetext/internal/mirror"
)

// DefaultMinOverrideSize is the largest pre-existing mirror, in bytes, that
// is still treated as a stub and overwritten.
const DefaultMinOverrideSize = 10

// Source identifies which buffer is authoritative.
type Source int

const (
	SourceUnresolved Source = iota
	SourceGenerated
	SourceDisk
)

// String returns the source name used in logs and the index.
func (s Source) String() string {
	switch s {
	case SourceGenerated:
		return "generated"
	case SourceDisk:
		return "disk"
	default:
		return "unresolved"
	}
}

// Config controls mirror placement and the override policy.
type Config struct {
	// Overwrite forces the generated text onto disk even when an edited
	// mirror already exists.
	Overwrite bool
	// Prefix is prepended verbatim to the hex digest, typically a directory
	// ending in a path separator.
	Prefix string
	// Suffix is appended to the digest, typically a file extension.
	Suffix string
	// MinOverrideSize: an existing mirror must be larger than this to win.
	// Zero selects DefaultMinOverrideSize; a negative value lets any
	// non-empty mirror win.
	MinOverrideSize int
}

// MirrorPath returns the mirror location for content with the given hash.
func MirrorPath(prefix, hash, suffix string) string {
	return prefix + hash + suffix
}

// Item is a content-addressed editable text buffer.
type Item struct {
	original []byte
	hash     string
	path     string
	mirror   *mirror.Mirror

	current []byte
	source  Source

	logger *slog.Logger
}

// New hashes text, opens its mirror and resolves the authoritative content.
func New(text []byte, cfg Config, logger *slog.Logger, opts ...mirror.Option) (*Item, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	minSize := cfg.MinOverrideSize
	switch {
	case minSize == 0:
		minSize = DefaultMinOverrideSize
	case minSize < 0:
		minSize = 0
	}

	it := &Item{
		original: bytes.Clone(text),
		logger:   logger,
	}
	if it.original == nil {
		it.original = []byte{}
	}
	it.hash = checksum.Sum(it.original)
	it.path = MirrorPath(cfg.Prefix, it.hash, cfg.Suffix)

	mopts := append([]mirror.Option{mirror.WithLogger(logger)}, opts...)
	m, err := mirror.New(it.path, mopts...)
	if err != nil {
		return nil, fmt.Errorf("textitem: open mirror: %w", err)
	}
	it.mirror = m

	if !cfg.Overwrite && m.HasData() && len(m.Data()) > minSize {
		it.adopt(SourceDisk)
		logger.Info("textitem: using edited mirror",
			slog.String("path", it.path),
			slog.Int("size", len(it.current)))
		return it, nil
	}

	if err := m.Write(it.original); err != nil {
		return nil, fmt.Errorf("textitem: publish generated text: %w", err)
	}
	it.current = bytes.Clone(it.original)
	it.source = SourceGenerated
	return it, nil
}

// Hash returns the hex digest of the generated text.
func (it *Item) Hash() string { return it.hash }

// Path returns the mirror file path.
func (it *Item) Path() string { return it.path }

// Original returns a copy of the generated text.
func (it *Item) Original() []byte { return bytes.Clone(it.original) }

// Source reports which buffer is currently authoritative.
func (it *Item) Source() Source { return it.source }

// HasData reports whether the mirror holds any bytes.
func (it *Item) HasData() bool { return it.mirror != nil && it.mirror.HasData() }

// CurrentText returns a copy of the authoritative text.
func (it *Item) CurrentText() ([]byte, error) {
	if it.source == SourceUnresolved {
		return nil, fmt.Errorf("textitem: current text requested before resolution: %w", apperr.ErrInconsistentState)
	}
	return bytes.Clone(it.current), nil
}

// PollForChanges checks the mirror for a settled external edit and adopts it.
// An edit that leaves the file empty is rejected: the current text is
// written back and no change is reported.
func (it *Item) PollForChanges(ctx context.Context) (bool, error) {
	if it.source == SourceUnresolved {
		return false, fmt.Errorf("textitem: poll before resolution: %w", apperr.ErrInconsistentState)
	}
	changed, err := it.mirror.PollForChanges(ctx)
	if err != nil || !changed {
		return false, err
	}
	if !it.mirror.HasData() {
		it.logger.Warn("textitem: mirror emptied externally, restoring", slog.String("path", it.path))
		if err := it.mirror.Write(it.current); err != nil {
			return false, err
		}
		return false, nil
	}
	it.adopt(SourceDisk)
	it.logger.Info("textitem: adopted external edit",
		slog.String("path", it.path),
		slog.Int("size", len(it.current)))
	return true, nil
}

// OpenInEditor opens the mirror file with l.
func (it *Item) OpenInEditor(l editor.Launcher, foreground bool) error {
	return l.Open(it.path, foreground)
}

func (it *Item) adopt(src Source) {
	it.current = it.mirror.Data()
	it.source = src
}
