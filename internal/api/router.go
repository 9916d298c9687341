package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/starford/livetext/internal/workspace"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *workspace.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Artifacts.
	r.Get("/artifacts", h.ListArtifacts)
	r.Post("/artifacts", h.ExposeArtifact)
	r.Get("/artifacts/*", h.GetArtifact)
	r.Delete("/artifacts/*", h.RemoveArtifact)
	r.Post("/uploads", h.UploadArtifact)

	// Sections.
	r.Get("/sections/*", h.GetSection)

	// Mirror polling and editor.
	r.Post("/poll", h.Poll)
	r.Post("/open/*", h.OpenInEditor)

	r.Get("/search", h.Search)
	r.Get("/grammars", h.Grammars)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
