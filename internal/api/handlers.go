package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/starford/livetext/internal/apperr"
	"github.com/starford/livetext/internal/workspace"
)

// JSON escapes expand a content byte to at most six ("\u00XX"); the
// envelope (name, grammar, keys) gets a fixed allowance on top.
const (
	jsonEscapeFactor  = 6
	bodyOverheadBytes = 16 << 10
	maxFormMemory     = 32 << 20
)

// Handler holds API route handlers.
type Handler struct {
	svc *workspace.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *workspace.Service) *Handler {
	return &Handler{svc: svc}
}

// limitBody caps the request body relative to the workspace content limit.
// Without a limit the body is not capped.
func (h *Handler) limitBody(w http.ResponseWriter, r *http.Request, factor int) {
	if limit := h.svc.MaxArtifactBytes(); limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, int64(limit)*int64(factor)+bodyOverheadBytes)
	}
}

// bodyError reports a body that could not be read, with 413 when it
// exceeded the cap.
func bodyError(w http.ResponseWriter, msg string, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, "read body", "", fmt.Errorf("api: body over %d bytes: %w", tooLarge.Limit, apperr.ErrOversizedInput))
		return
	}
	writeJSON(w, http.StatusBadRequest, errorBody(msg))
}

// artifactName extracts the artifact name from the wildcard part of the URL.
// Supports encoded slashes from OpenAPI clients (e.g. shaders%2Fwater.glsl).
func artifactName(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// ListArtifacts handles GET /api/artifacts.
//
//	@Summary		List exposed artifacts
//	@Tags			artifacts
//	@Produce		json
//	@Param			grammar	query		string	false	"Filter by grammar"
//	@Success		200		{object}	ArtifactListResponse
//	@Security		BearerAuth
//	@Router			/artifacts [get]
func (h *Handler) ListArtifacts(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.List(r.Context(), r.URL.Query().Get("grammar"))
	if err != nil {
		writeError(w, "list artifacts", "", err)
		return
	}
	if items == nil {
		items = []ArtifactListItem{}
	}
	writeJSON(w, http.StatusOK, ArtifactListResponse{Artifacts: items, Total: len(items)})
}

// ExposeArtifact handles POST /api/artifacts.
//
//	@Summary		Expose generated text as an editable mirror file
//	@Tags			artifacts
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ExposeRequest	true	"Generated text"
//	@Success		201		{object}	Artifact
//	@Failure		400		{object}	errResponse
//	@Failure		413		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/artifacts [post]
func (h *Handler) ExposeArtifact(w http.ResponseWriter, r *http.Request) {
	h.limitBody(w, r, jsonEscapeFactor)
	var req ExposeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		bodyError(w, "invalid JSON body", err)
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("name is required"))
		return
	}
	a, err := h.svc.Expose(r.Context(), req)
	if err != nil {
		writeError(w, "expose artifact", req.Name, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// UploadArtifact handles POST /api/uploads.
//
//	@Summary		Expose an uploaded file
//	@Tags			artifacts
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			file		formData	file	true	"Generated file; its name becomes the artifact name"
//	@Param			grammar		formData	string	false	"Grammar name"
//	@Param			overwrite	formData	bool	false	"Replace an edited mirror"
//	@Success		201			{object}	Artifact
//	@Failure		400			{object}	errResponse
//	@Failure		413			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/uploads [post]
func (h *Handler) UploadArtifact(w http.ResponseWriter, r *http.Request) {
	h.limitBody(w, r, 1)
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		bodyError(w, "invalid multipart form", err)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read file"))
		return
	}
	name := r.FormValue("name")
	if name == "" {
		name = path.Base(header.Filename)
	}
	overwrite, _ := strconv.ParseBool(r.FormValue("overwrite"))

	a, err := h.svc.Expose(r.Context(), workspace.ExposeRequest{
		Name:      name,
		Content:   string(data),
		Grammar:   r.FormValue("grammar"),
		Overwrite: overwrite,
	})
	if err != nil {
		writeError(w, "upload artifact", name, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// GetArtifact handles GET /api/artifacts/*.
//
//	@Summary		Get an artifact's current text and sections
//	@Tags			artifacts
//	@Produce		json
//	@Param			name	path		string	true	"Artifact name"
//	@Success		200		{object}	Artifact
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/artifacts/{name} [get]
func (h *Handler) GetArtifact(w http.ResponseWriter, r *http.Request) {
	name := artifactName(r)
	if name == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("name is required"))
		return
	}
	a, err := h.svc.Get(r.Context(), name)
	if err != nil {
		writeError(w, "get artifact", name, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// RemoveArtifact handles DELETE /api/artifacts/*.
//
//	@Summary		Forget an artifact; its mirror file is kept
//	@Tags			artifacts
//	@Param			name	path	string	true	"Artifact name"
//	@Success		204		"Artifact removed"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/artifacts/{name} [delete]
func (h *Handler) RemoveArtifact(w http.ResponseWriter, r *http.Request) {
	name := artifactName(r)
	if name == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("name is required"))
		return
	}
	if err := h.svc.Remove(r.Context(), name); err != nil {
		writeError(w, "remove artifact", name, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetSection handles GET /api/sections/*.
//
//	@Summary		Get one marker-delimited section of an artifact
//	@Tags			sections
//	@Produce		json
//	@Param			name	path		string	true	"Artifact name"
//	@Param			index	query		int		true	"Zero-based section index"
//	@Success		200		{object}	SectionDetail
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sections/{name} [get]
func (h *Handler) GetSection(w http.ResponseWriter, r *http.Request) {
	name := artifactName(r)
	if name == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("name is required"))
		return
	}
	i, err := strconv.Atoi(r.URL.Query().Get("index"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'index' must be an integer"))
		return
	}
	sec, err := h.svc.Section(r.Context(), name, i)
	if err != nil {
		writeError(w, "get section", name, err)
		return
	}
	writeJSON(w, http.StatusOK, sec)
}

// Poll handles POST /api/poll.
//
//	@Summary		Poll every mirror for settled external edits
//	@Tags			mirrors
//	@Produce		json
//	@Success		200	{object}	PollResponse
//	@Security		BearerAuth
//	@Router			/poll [post]
func (h *Handler) Poll(w http.ResponseWriter, r *http.Request) {
	changed, err := h.svc.Poll(r.Context())
	resp := PollResponse{Changed: changed}
	if resp.Changed == nil {
		resp.Changed = []string{}
	}
	if err != nil {
		slog.Warn("poll reported failures", slog.String("error", err.Error()))
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// OpenInEditor handles POST /api/open/*.
//
//	@Summary		Open an artifact's mirror file in the configured editor
//	@Tags			mirrors
//	@Produce		json
//	@Param			name		path		string	true	"Artifact name"
//	@Param			foreground	query		bool	false	"Give the editor focus"
//	@Success		200			{object}	OpenResponse
//	@Failure		404			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/open/{name} [post]
func (h *Handler) OpenInEditor(w http.ResponseWriter, r *http.Request) {
	name := artifactName(r)
	if name == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("name is required"))
		return
	}
	fg, _ := strconv.ParseBool(r.URL.Query().Get("foreground"))
	p, err := h.svc.Open(r.Context(), name, fg)
	if err != nil {
		writeError(w, "open in editor", name, err)
		return
	}
	writeJSON(w, http.StatusOK, OpenResponse{Path: p})
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across current artifact text
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		writeError(w, "search", q, err)
		return
	}
	if results == nil {
		results = []SearchResult{}
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// Grammars handles GET /api/grammars.
//
//	@Summary		List configured grammars
//	@Tags			grammars
//	@Produce		json
//	@Success		200	{array}	GrammarResponse
//	@Security		BearerAuth
//	@Router			/grammars [get]
func (h *Handler) Grammars(w http.ResponseWriter, _ *http.Request) {
	gs := h.svc.Grammars()
	out := make([]GrammarResponse, len(gs))
	for i, g := range gs {
		markers := g.Markers
		if markers == nil {
			markers = []string{}
		}
		out[i] = GrammarResponse{Name: g.Name, Suffix: g.Suffix, Markers: markers}
	}
	writeJSON(w, http.StatusOK, out)
}
