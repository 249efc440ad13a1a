package docmerge

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/docmerge/docx"
)

var testMCPImpl = &mcp.Implementation{Name: "docmerge-test", Version: "v0"}

func mcpSession(t *testing.T, p *Pipeline) *mcp.ClientSession {
	t.Helper()
	srv := mcp.NewServer(testMCPImpl, nil)
	p.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()

	client := mcp.NewClient(testMCPImpl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func mcpCall(t *testing.T, session *mcp.ClientSession, name string, args any) *mcp.CallToolResult {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	return result
}

func mcpCallTool(t *testing.T, session *mcp.ClientSession, name string, args any) string {
	t.Helper()
	result := mcpCall(t, session, name, args)
	if result.IsError {
		t.Fatalf("CallTool(%s) tool error: %v", name, result.Content)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): expected TextContent", name)
	}
	return tc.Text
}

func TestMCP_Formats(t *testing.T) {
	session := mcpSession(t, New(nil))

	text := mcpCallTool(t, session, "docmerge_formats", map[string]any{})
	var resp struct {
		Formats []string `json:"formats"`
		Default string   `json:"default"`
	}
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		t.Fatal(err)
	}
	if strings.Join(resp.Formats, ",") != "docx,txt,pdf,html,md" || resp.Default != "docx" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestMCP_CombineArchive(t *testing.T) {
	p := testPipeline(t, nil)
	session := mcpSession(t, p)

	dir := t.TempDir()
	archivePath := filepath.Join(dir, "batch.zip")
	if err := os.WriteFile(archivePath, sampleArchive(t), 0o644); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(dir, "combined.docx")

	text := mcpCallTool(t, session, "docmerge_combine", map[string]any{
		"archive": archivePath,
		"output":  out,
	})
	var resp combineResp
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.BatchID != "bat_test_1" || resp.Submissions != 2 || len(resp.Errors) != 1 {
		t.Fatalf("resp = %+v", resp)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != resp.Bytes {
		t.Errorf("bytes = %d, file has %d", resp.Bytes, len(data))
	}
	if _, err := docx.Parse(data); err != nil {
		t.Fatalf("output is not a docx: %v", err)
	}

	// The same batch through docmerge_batch.
	text = mcpCallTool(t, session, "docmerge_batch", map[string]any{"id": resp.BatchID})
	var b Batch
	if err := json.Unmarshal([]byte(text), &b); err != nil {
		t.Fatal(err)
	}
	if b.Status != StatusPartial || b.Source != SourceArchive {
		t.Errorf("batch = %+v", b)
	}
}

func TestMCP_CombinePathsTxt(t *testing.T) {
	session := mcpSession(t, testPipeline(t, nil))

	dir := t.TempDir()
	a := filepath.Join(dir, "a.docx")
	os.WriteFile(a, docxBytes(t, "from a file"), 0o644)
	out := filepath.Join(dir, "out.txt")

	mcpCallTool(t, session, "docmerge_combine", map[string]any{
		"paths":  []string{a},
		"output": out,
		"format": "txt",
	})
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "Submitted by: Direct Upload\n\nfrom a file\n") {
		t.Errorf("output = %q", data)
	}
}

func TestMCP_Errors(t *testing.T) {
	session := mcpSession(t, testPipeline(t, nil))
	dir := t.TempDir()

	tests := []struct {
		name string
		tool string
		args map[string]any
	}{
		{"no source", "docmerge_combine", map[string]any{"output": filepath.Join(dir, "x.docx")}},
		{"both sources", "docmerge_combine", map[string]any{"archive": "a.zip", "paths": []string{"b.docx"}, "output": filepath.Join(dir, "x.docx")}},
		{"missing file", "docmerge_combine", map[string]any{"paths": []string{filepath.Join(dir, "nope.docx")}, "output": filepath.Join(dir, "x.docx")}},
		{"bad format", "docmerge_combine", map[string]any{"paths": []string{"a.docx"}, "output": "x", "format": "rtf"}},
		{"unknown batch", "docmerge_batch", map[string]any{"id": "bat_missing"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if res := mcpCall(t, session, tt.tool, tt.args); !res.IsError {
				t.Error("expected tool error")
			}
		})
	}
}
