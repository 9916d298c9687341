package api

import (
	"github.com/starford/livetext/internal/index"
	"github.com/starford/livetext/internal/workspace"
)

// ExposeRequest is the request body for exposing generated text.
type ExposeRequest = workspace.ExposeRequest

// Artifact is the full artifact response type (aliased from the domain layer).
type Artifact = workspace.Artifact

// ArtifactListItem is a lightweight item in a list response (aliased from the domain layer).
type ArtifactListItem = workspace.ArtifactListItem

// SectionDetail is a single section response (aliased from the domain layer).
type SectionDetail = workspace.SectionDetail

// ArtifactListResponse wraps artifact listings.
type ArtifactListResponse struct {
	Artifacts []ArtifactListItem `json:"artifacts" validate:"required"`
	Total     int                `json:"total" example:"3" validate:"required"`
}

// PollResponse lists the artifacts whose mirrors changed during a poll.
type PollResponse struct {
	Changed []string `json:"changed" validate:"required"`
	Error   string   `json:"error,omitempty" example:"workspace: poll /tmp/m/ab.glsl: ..."`
}

// OpenResponse reports which file was handed to the editor.
type OpenResponse struct {
	Path string `json:"path" example:"/tmp/livetext/9f86d0.glsl" validate:"required"`
}

// SearchResult is a single search hit in the API response.
type SearchResult = index.SearchResult

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []SearchResult `json:"results" validate:"required"`
}

// GrammarResponse describes one configured grammar.
type GrammarResponse struct {
	Name    string   `json:"name" example:"glsl" validate:"required"`
	Suffix  string   `json:"suffix" example:".glsl"`
	Markers []string `json:"markers" example:"//!!GLSLV,//!!GLSLF" validate:"required"`
}
