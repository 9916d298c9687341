package workspace

import "time"

// Event kinds published when the live set changes.
const (
	EventExposed = "artifact.exposed"
	EventChanged = "artifact.changed"
	EventRemoved = "artifact.removed"
)

// ExposeRequest describes generated text handed to the workspace.
type ExposeRequest struct {
	Name    string `json:"name"`
	Content string `json:"content"`
	// Grammar names the marker table. Empty selects a grammar by the
	// name's suffix, falling back to no sections.
	Grammar   string `json:"grammar,omitempty"`
	Overwrite bool   `json:"overwrite,omitempty"`
}

// Artifact is the full representation of a live artifact.
type Artifact struct {
	Name       string        `json:"name"`
	Grammar    string        `json:"grammar"`
	Hash       string        `json:"hash"`
	MirrorPath string        `json:"mirror_path"`
	Source     string        `json:"source"`
	Content    string        `json:"content"`
	Sections   []SectionInfo `json:"sections"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// ArtifactListItem is a lightweight item in a list response.
type ArtifactListItem struct {
	Name       string    `json:"name"`
	Grammar    string    `json:"grammar"`
	Hash       string    `json:"hash"`
	MirrorPath string    `json:"mirror_path"`
	Source     string    `json:"source"`
	Size       int       `json:"size"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// SectionInfo locates one section within an artifact's current text.
type SectionInfo struct {
	Index       int    `json:"index"`
	MarkerIndex int    `json:"marker_index"`
	Marker      string `json:"marker"`
	Header      string `json:"header"`
	Offset      int    `json:"offset"`
	Length      int    `json:"length"`
}

// SectionDetail is a section together with its text.
type SectionDetail struct {
	SectionInfo
	Content string `json:"content"`
}
