// Package storage provides file-system access for generated artifacts.
package storage

import "github.com/starford/livetext/internal/models"

// Provider is the interface for inbox file operations.
type Provider interface {
	// List returns metadata for every artifact under dir (relative to root)
	// whose name ends in one of the provider's suffixes.
	List(dir string) ([]models.ArtifactMetadata, error)
	// Read returns the raw bytes of the file at path (relative to root).
	Read(path string) ([]byte, error)
	// Root returns the absolute root directory.
	Root() string
	// Matches reports whether name carries one of the provider's suffixes.
	Matches(name string) bool
}

var _ Provider = (*FS)(nil)
