package index

// ArtifactIndex defines the registry operations used by the workspace.
// Consumers depend on this interface rather than *DB so tests can substitute it.
type ArtifactIndex interface {
	UpsertArtifact(a ArtifactRow, body string, sections []SectionRow) error
	DeleteArtifact(name string) error
	GetArtifact(name string) (*ArtifactRow, error)
	ListArtifacts(grammar string) ([]ArtifactRow, error)
	Sections(name string) ([]SectionRow, error)
	AllHashes() (map[string]string, error)
	Search(query string, limit int) ([]SearchResult, error)
	Close() error
}

var _ ArtifactIndex = (*DB)(nil)
