package mcpserver

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/livetext/internal/testutil"
	"github.com/starford/livetext/internal/workspace"
)

const glslProgram = "//!!GLSLV\nvoid main() { gl_Position = vec4(0); }\n//!!GLSLF\nvoid main() { gl_FragColor = vec4(1); }\n"

func testServer(t *testing.T) (*Server, *workspace.Service) {
	t.Helper()
	svc, _ := testutil.TestService(t)
	return New(svc, "test"), svc
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no direct call-tool test helper; handlers are invoked directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "list_artifacts":
		result, err = srv.listArtifacts(ctx, req)
	case "read_artifact":
		result, err = srv.readArtifact(ctx, req)
	case "get_sections":
		result, err = srv.getSections(ctx, req)
	case "expose_artifact":
		result, err = srv.exposeArtifact(ctx, req)
	case "poll_changes":
		result, err = srv.pollChanges(ctx, req)
	case "search_artifacts":
		result, err = srv.searchArtifacts(ctx, req)
	case "list_grammars":
		result, err = srv.listGrammars(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestExposeAndReadArtifact(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "expose_artifact", map[string]any{
		"name":    "water.glsl",
		"content": glslProgram,
	})
	if r.IsError {
		t.Fatalf("expose failed: %s", resultText(r))
	}
	var exposed map[string]any
	if err := json.Unmarshal([]byte(resultText(r)), &exposed); err != nil {
		t.Fatalf("expose result not JSON: %v", err)
	}
	if exposed["source"] != "generated" || exposed["sections"] != float64(2) {
		t.Errorf("expose result = %v", exposed)
	}

	r = callTool(t, srv, "read_artifact", map[string]any{"name": "water.glsl"})
	if text := resultText(r); text != glslProgram {
		t.Errorf("read result = %q", text)
	}
}

func TestReadArtifactMissing(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "read_artifact", map[string]any{"name": "nope.glsl"})
	if !r.IsError || !strings.Contains(resultText(r), "not found") {
		t.Errorf("expected not-found error, got %q", resultText(r))
	}
}

func TestExposeArtifact_UnknownGrammar(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "expose_artifact", map[string]any{
		"name": "a.hlsl", "content": "x", "grammar": "hlsl",
	})
	if !r.IsError {
		t.Error("expected error for unknown grammar")
	}
}

func TestGetSections(t *testing.T) {
	srv, _ := testServer(t)
	_ = callTool(t, srv, "expose_artifact", map[string]any{"name": "water.glsl", "content": glslProgram})

	r := callTool(t, srv, "get_sections", map[string]any{"name": "water.glsl"})
	var secs []workspace.SectionInfo
	if err := json.Unmarshal([]byte(resultText(r)), &secs); err != nil {
		t.Fatalf("sections not JSON: %v", err)
	}
	if len(secs) != 2 || secs[0].Marker != "//!!GLSLV" {
		t.Errorf("sections = %+v", secs)
	}

	r = callTool(t, srv, "get_sections", map[string]any{"name": "water.glsl", "index": float64(1)})
	if text := resultText(r); !strings.HasPrefix(text, "//!!GLSLF\n") {
		t.Errorf("section 1 = %q", text)
	}

	r = callTool(t, srv, "get_sections", map[string]any{"name": "water.glsl", "index": float64(5)})
	if !r.IsError {
		t.Error("expected error for out-of-range index")
	}
}

func TestPollChanges(t *testing.T) {
	srv, svc := testServer(t)
	a, err := svc.Expose(context.Background(), workspace.ExposeRequest{Name: "water.glsl", Content: glslProgram})
	if err != nil {
		t.Fatal(err)
	}

	r := callTool(t, srv, "poll_changes", map[string]any{})
	if resultText(r) != "no changes" {
		t.Errorf("idle poll = %q", resultText(r))
	}

	if err := os.WriteFile(a.MirrorPath, []byte("//!!GLSLF\nvoid main() { discard; }\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	r = callTool(t, srv, "poll_changes", map[string]any{})
	if resultText(r) != "water.glsl" {
		t.Errorf("poll = %q", resultText(r))
	}
}

func TestPollChanges_PartialFailure(t *testing.T) {
	srv, svc := testServer(t)
	ctx := context.Background()
	broken, err := svc.Expose(ctx, workspace.ExposeRequest{Name: "broken.glsl", Content: glslProgram})
	if err != nil {
		t.Fatal(err)
	}
	edited, err := svc.Expose(ctx, workspace.ExposeRequest{Name: "p.arb", Content: "!!ARBfp1.0\nMOV result.color, 1;\nEND\n"})
	if err != nil {
		t.Fatal(err)
	}

	// A directory where the mirror file was makes the read fail.
	if err := os.Remove(broken.MirrorPath); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(broken.MirrorPath, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(edited.MirrorPath, []byte("!!ARBfp1.0\nMOV result.color, 0;\nEND\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := callTool(t, srv, "poll_changes", map[string]any{})
	text := resultText(r)
	if r.IsError || !strings.HasPrefix(text, "p.arb\nerror: ") || !strings.Contains(text, broken.MirrorPath) {
		t.Errorf("poll = %q (isError=%v)", text, r.IsError)
	}
}

func TestListArtifactsAndGrammars(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "list_artifacts", map[string]any{})
	if resultText(r) != "no artifacts exposed" {
		t.Errorf("empty list = %q", resultText(r))
	}

	_ = callTool(t, srv, "expose_artifact", map[string]any{"name": "water.glsl", "content": glslProgram})
	r = callTool(t, srv, "list_artifacts", map[string]any{"grammar": "glsl"})
	if !strings.Contains(resultText(r), `"name": "water.glsl"`) {
		t.Errorf("list = %q", resultText(r))
	}

	r = callTool(t, srv, "list_grammars", map[string]any{})
	if !strings.Contains(resultText(r), "!!ARBvp") {
		t.Errorf("grammars = %q", resultText(r))
	}
}

func TestSearchArtifacts(t *testing.T) {
	srv, _ := testServer(t)
	_ = callTool(t, srv, "expose_artifact", map[string]any{"name": "water.glsl", "content": glslProgram})

	r := callTool(t, srv, "search_artifacts", map[string]any{"query": "gl_Position"})
	if !strings.Contains(resultText(r), "water.glsl") {
		t.Errorf("search = %q", resultText(r))
	}
}

func TestGrammarContract(t *testing.T) {
	srv, svc := testServer(t)
	contents, err := srv.readGrammarContract(context.Background(), mcp.ReadResourceRequest{})
	if err != nil || len(contents) != 1 {
		t.Fatalf("readGrammarContract = %v, %v", contents, err)
	}
	text := contents[0].(mcp.TextResourceContents).Text
	for _, g := range svc.Grammars() {
		if !strings.Contains(text, "### "+g.Name) {
			t.Errorf("contract missing grammar %s", g.Name)
		}
	}
	if !strings.Contains(text, "No markers.") {
		t.Error("contract should mark grammars without markers")
	}
}
