// Package mirror reflects one in-memory byte buffer to one file on disk and
// detects external edits to that file by stat polling.
//
// A detected difference in size or modification time is not reported until
// the file has stopped changing for a number of consecutive samples (the
// settle window). Editors commonly save through a temp file and rename, or
// flush several times; reporting the first difference would surface those
// intermediate states.
package mirror

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/starford/livetext/internal/apperr"
	"github.com/starford/livetext/internal/storage"
)

// Settle window defaults.
const (
	DefaultSettleInterval = 100 * time.Millisecond
	DefaultStableSamples  = 3
)

// Metadata is the stat snapshot compared between polls.
type Metadata struct {
	Size    int64
	ModTime time.Time
}

// Equal reports whether both snapshots describe the same file state.
func (m Metadata) Equal(o Metadata) bool {
	return m.Size == o.Size && m.ModTime.Equal(o.ModTime)
}

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Option configures a Mirror.
type Option func(*Mirror)

// WithSettleInterval sets the delay between samples of the settle loop.
func WithSettleInterval(d time.Duration) Option {
	return func(m *Mirror) {
		if d > 0 {
			m.settleInterval = d
		}
	}
}

// WithStableSamples sets how many consecutive unchanged samples end the settle loop.
func WithStableSamples(n int) Option {
	return func(m *Mirror) {
		if n > 0 {
			m.stableSamples = n
		}
	}
}

// WithSleeper replaces the wall-clock sleep used by the settle loop.
func WithSleeper(s Sleeper) Option {
	return func(m *Mirror) {
		if s != nil {
			m.sleep = s
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Mirror) {
		if l != nil {
			m.logger = l
		}
	}
}

// Mirror owns exactly one disk path. It is not safe for concurrent use.
type Mirror struct {
	path   string
	exists bool
	meta   Metadata
	data   []byte // never nil

	settleInterval time.Duration
	stableSamples  int
	sleep          Sleeper
	logger         *slog.Logger
}

// New creates a Mirror for path and loads the file if it already exists.
func New(path string, opts ...Option) (*Mirror, error) {
	m := &Mirror{
		path:           path,
		data:           []byte{},
		settleInterval: DefaultSettleInterval,
		stableSamples:  DefaultStableSamples,
		sleep:          sleepContext,
		logger:         slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(m)
	}

	if err := m.refreshStat(); err != nil {
		return nil, err
	}
	if m.exists {
		if err := m.Read(); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Path returns the mirrored file path.
func (m *Mirror) Path() string { return m.path }

// Exists reports whether the file existed at the last stat.
func (m *Mirror) Exists() bool { return m.exists }

// Metadata returns the last observed stat snapshot.
func (m *Mirror) Metadata() Metadata { return m.meta }

// HasData reports whether the cached buffer is non-empty.
func (m *Mirror) HasData() bool { return len(m.data) != 0 }

// Data returns a copy of the cached buffer.
func (m *Mirror) Data() []byte { return bytes.Clone(m.data) }

// Write replaces the disk content with data and makes it the new baseline
// for change detection. The cache holds data even when the write fails, so a
// later self-heal pushes it out again.
func (m *Mirror) Write(data []byte) error {
	m.data = bytes.Clone(data)
	if m.data == nil {
		m.data = []byte{}
	}
	if err := storage.WriteFile(m.path, m.data); err != nil {
		return &apperr.IOError{Op: "write", Path: m.path, Err: err}
	}
	return m.refreshStat()
}

// Read reloads the cache and metadata from disk. A missing file leaves an
// empty cache and is not an error.
func (m *Mirror) Read() error {
	f, err := os.Open(m.path)
	if errors.Is(err, fs.ErrNotExist) {
		m.exists = false
		m.meta = Metadata{}
		m.data = []byte{}
		return nil
	}
	if err != nil {
		return &apperr.IOError{Op: "open", Path: m.path, Err: err}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return &apperr.IOError{Op: "stat", Path: m.path, Err: err}
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return &apperr.IOError{Op: "read", Path: m.path, Err: err}
	}

	m.data = data
	m.meta = Metadata{Size: info.Size(), ModTime: info.ModTime()}
	m.exists = true
	return nil
}

// PollForChanges stats the file and reports whether a settled external
// change was loaded into the cache.
//
// A missing file is recreated from the cache and reported as no change.
// When the metadata differs from the last snapshot, PollForChanges blocks
// until it has been stable for the configured number of samples. If ctx is
// cancelled during that wait the previous snapshot is restored, so the
// change is detected again on the next poll.
func (m *Mirror) PollForChanges(ctx context.Context) (bool, error) {
	prev := m.meta
	if err := m.refreshStat(); err != nil {
		return false, err
	}

	if !m.exists {
		m.logger.Info("mirror: recreating missing file", slog.String("path", m.path))
		if err := m.Write(m.data); err != nil {
			return false, err
		}
		return false, nil
	}

	if m.meta.Equal(prev) {
		return false, nil
	}

	m.logger.Debug("mirror: change detected, settling",
		slog.String("path", m.path),
		slog.Int64("size", m.meta.Size))

	if err := m.settle(ctx); err != nil {
		m.meta = prev
		return false, err
	}
	if err := m.Read(); err != nil {
		return false, err
	}
	return true, nil
}

func (m *Mirror) settle(ctx context.Context) error {
	for stable := 0; stable < m.stableSamples; {
		if err := m.sleep(ctx, m.settleInterval); err != nil {
			return err
		}
		last := m.meta
		if err := m.refreshStat(); err != nil {
			return err
		}
		if m.meta.Equal(last) {
			stable++
		} else {
			stable = 0
		}
	}
	return nil
}

func (m *Mirror) refreshStat() error {
	info, err := os.Stat(m.path)
	if errors.Is(err, fs.ErrNotExist) {
		m.exists = false
		m.meta = Metadata{}
		return nil
	}
	if err != nil {
		return &apperr.IOError{Op: "stat", Path: m.path, Err: err}
	}
	m.exists = true
	m.meta = Metadata{Size: info.Size(), ModTime: info.ModTime()}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
