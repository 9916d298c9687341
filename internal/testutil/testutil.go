// Package testutil provides shared test helpers for databases, inbox
// directories and workspaces.
package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/starford/livetext/internal/index"
	"github.com/starford/livetext/internal/mirror"
	"github.com/starford/livetext/internal/parser"
	"github.com/starford/livetext/internal/storage"
	"github.com/starford/livetext/internal/workspace"
)

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "livetext-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestInbox creates a temporary inbox directory with a storage provider
// that accepts every grammar suffix.
func TestInbox(t *testing.T) (string, *storage.FS) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFS(dir, Grammars().Suffixes()...)
	if err != nil {
		t.Fatal(err)
	}
	return dir, store
}

// Grammars returns the grammars used across tests.
func Grammars() parser.Grammars {
	return parser.NewGrammars(
		parser.Grammar{Name: "arb", Suffix: ".arb", Markers: []string{"!!ARBvp", "!!ARBfp"}},
		parser.Grammar{Name: "glsl", Suffix: ".glsl", Markers: []string{"//!!GLSLV", "//!!GLSLF"}},
		parser.Grammar{Name: "text", Suffix: ".txt"},
	)
}

// InstantSleeper returns immediately unless ctx is done.
func InstantSleeper(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

// TestService creates a workspace whose mirrors live in a temp directory and
// settle without sleeping. It returns the service and its mirror directory.
func TestService(t *testing.T, opts ...workspace.Option) (*workspace.Service, string) {
	t.Helper()
	mirrorDir := t.TempDir()
	svc := workspace.NewService(TestDB(t), Grammars(), workspace.Config{
		MirrorDir:        mirrorDir,
		MaxArtifactBytes: 1 << 20,
		MirrorOptions:    []mirror.Option{mirror.WithSleeper(InstantSleeper)},
	}, opts...)
	return svc, mirrorDir
}
