// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes livetext tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/livetext/internal/apperr"
	"github.com/starford/livetext/internal/workspace"
)

// Server wraps the MCP server with livetext tools.
type Server struct {
	mcp *server.MCPServer
	svc *workspace.Service
}

// New creates a new MCP server with all livetext tools registered.
func New(svc *workspace.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"livetext",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_artifacts",
		mcp.WithDescription("List exposed artifacts with their grammar, content hash, mirror file and authoritative source."),
		mcp.WithString("grammar", mcp.Description("Optional grammar name to filter by")),
	), s.listArtifacts)

	s.mcp.AddTool(mcp.NewTool("read_artifact",
		mcp.WithDescription("Read the current text of an artifact. This is the human-edited mirror content if an edit was adopted."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Artifact name (e.g. shaders/water.glsl)")),
	), s.readArtifact)

	s.mcp.AddTool(mcp.NewTool("get_sections",
		mcp.WithDescription("List the marker-delimited sections of an artifact, or return the text of one section when index is given. "+
			"Read the livetext://grammars resource for the sectioning rules."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Artifact name")),
		mcp.WithNumber("index", mcp.Description("Zero-based section index")),
	), s.getSections)

	s.mcp.AddTool(mcp.NewTool("expose_artifact",
		mcp.WithDescription("Expose generated text as an editable mirror file. If the mirror already holds a human edit, "+
			"the edit wins unless overwrite is true."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Artifact name; its suffix selects a grammar when none is given")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Generated text")),
		mcp.WithString("grammar", mcp.Description("Grammar name (see list_grammars)")),
		mcp.WithBoolean("overwrite", mcp.Description("Replace an existing edited mirror with the generated text")),
	), s.exposeArtifact)

	s.mcp.AddTool(mcp.NewTool("poll_changes",
		mcp.WithDescription("Check every mirror file once for settled external edits and adopt them. Returns the changed artifact names."),
	), s.pollChanges)

	s.mcp.AddTool(mcp.NewTool("search_artifacts",
		mcp.WithDescription("Full-text search through the current text of all artifacts."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchArtifacts)

	s.mcp.AddTool(mcp.NewTool("list_grammars",
		mcp.WithDescription("List configured grammars and their marker tables."),
	), s.listGrammars)

	s.mcp.AddResource(
		mcp.NewResource(GrammarContractURI, "Sectioning Contract",
			mcp.WithResourceDescription("How artifacts are split into sections, and the configured grammars."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readGrammarContract,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func toolError(name string, err error) *mcp.CallToolResult {
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError("not found: " + name)
	}
	return mcp.NewToolResultError(err.Error())
}

func (s *Server) listArtifacts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items, err := s.svc.List(ctx, req.GetString("grammar", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(items) == 0 {
		return mcp.NewToolResultText("no artifacts exposed"), nil
	}
	return jsonResult(items)
}

func (s *Server) readArtifact(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	a, err := s.svc.Get(ctx, name)
	if err != nil {
		return toolError(name, err), nil
	}
	return mcp.NewToolResultText(a.Content), nil
}

func (s *Server) getSections(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if i, err := req.RequireInt("index"); err == nil {
		sec, err := s.svc.Section(ctx, name, i)
		if err != nil {
			return toolError(name, err), nil
		}
		return mcp.NewToolResultText(sec.Content), nil
	}
	a, err := s.svc.Get(ctx, name)
	if err != nil {
		return toolError(name, err), nil
	}
	return jsonResult(a.Sections)
}

func (s *Server) exposeArtifact(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	a, err := s.svc.Expose(ctx, workspace.ExposeRequest{
		Name:      name,
		Content:   content,
		Grammar:   req.GetString("grammar", ""),
		Overwrite: req.GetBool("overwrite", false),
	})
	if err != nil {
		return toolError(name, err), nil
	}
	return jsonResult(map[string]any{
		"name":        a.Name,
		"hash":        a.Hash,
		"mirror_path": a.MirrorPath,
		"source":      a.Source,
		"sections":    len(a.Sections),
	})
}

func (s *Server) pollChanges(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	changed, err := s.svc.Poll(ctx)
	if err != nil && len(changed) == 0 {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(changed) == 0 {
		return mcp.NewToolResultText("no changes"), nil
	}
	text := strings.Join(changed, "\n")
	if err != nil {
		// Some items changed and others failed; report both.
		text += "\nerror: " + err.Error()
	}
	return mcp.NewToolResultText(text), nil
}

func (s *Server) searchArtifacts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(results)
}

func (s *Server) listGrammars(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.svc.Grammars())
}

func (s *Server) readGrammarContract(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      GrammarContractURI,
			MIMEType: "text/markdown",
			Text:     GrammarContract(s.svc.Grammars()),
		},
	}, nil
}
