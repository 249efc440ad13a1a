package docmerge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/docmerge/export"
	"github.com/hazyhaar/docmerge/kit"
	"github.com/hazyhaar/docmerge/submission"
)

// RegisterMCP registers docmerge tools on an MCP server.
func (p *Pipeline) RegisterMCP(srv *mcp.Server) {
	p.registerCombineTool(srv)
	p.registerFormatsTool(srv)
	p.registerBatchTool(srv)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// logged wraps a tool endpoint with a duration/error log line.
func (p *Pipeline) logged(tool string) kit.Middleware {
	return func(next kit.Endpoint) kit.Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			attrs := append([]any{"tool", tool, "duration_ms", time.Since(start).Milliseconds()}, kit.LogAttrs(ctx)...)
			if err != nil {
				p.logger.Warn("mcp tool failed", append(attrs, "error", err)...)
			} else {
				p.logger.Debug("mcp tool done", attrs...)
			}
			return resp, err
		}
	}
}

func decodeJSON[T any](req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	var r T
	if len(req.Params.Arguments) > 0 {
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
	}
	return &kit.MCPDecodeResult{Request: &r}, nil
}

// --- combine ---

type combineReq struct {
	Archive string   `json:"archive"`
	Paths   []string `json:"paths"`
	Output  string   `json:"output"`
	Format  string   `json:"format"`
}

type combineResp struct {
	BatchID     string                 `json:"batch_id"`
	Submissions int                    `json:"submissions"`
	Errors      []submission.ItemError `json:"errors"`
	Output      string                 `json:"output"`
	Bytes       int                    `json:"bytes"`
}

func (p *Pipeline) registerCombineTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "docmerge_combine",
		Description: "Combine submissions into one document. Give either a ZIP archive with one folder per submitter, or a list of .docx/.pdf paths.",
		InputSchema: inputSchema(map[string]any{
			"archive": map[string]any{"type": "string", "description": "Path to a ZIP archive"},
			"paths":   map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "Paths of individual .docx/.pdf files"},
			"output":  map[string]any{"type": "string", "description": "Where to write the combined document"},
			"format":  map[string]any{"type": "string", "enum": []string{"docx", "txt", "pdf", "html", "md"}, "description": "Output format (default from config)"},
		}, []string{"output"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		return p.combineFiles(ctx, req.(*combineReq))
	}
	kit.RegisterMCPTool(srv, tool, kit.Chain(p.logged(tool.Name))(endpoint), decodeJSON[combineReq])
}

func (p *Pipeline) combineFiles(ctx context.Context, r *combineReq) (*combineResp, error) {
	if r.Output == "" {
		return nil, errors.New("output is required")
	}
	if (r.Archive == "") == (len(r.Paths) == 0) {
		return nil, errors.New("give exactly one of archive or paths")
	}
	format := p.cfg.DefaultFormat()
	if r.Format != "" {
		f, err := export.ParseFormat(r.Format)
		if err != nil {
			return nil, err
		}
		format = f
	}

	var (
		res *Result
		err error
	)
	if r.Archive != "" {
		data, rerr := os.ReadFile(r.Archive)
		if rerr != nil {
			return nil, fmt.Errorf("read archive: %w", rerr)
		}
		res, err = p.CombineArchive(ctx, data)
	} else {
		items := make([]submission.Upload, 0, len(r.Paths))
		for _, path := range r.Paths {
			data, rerr := os.ReadFile(path)
			if rerr != nil {
				return nil, fmt.Errorf("read %s: %w", path, rerr)
			}
			items = append(items, submission.Upload{Name: filepath.Base(path), Data: data})
		}
		res, err = p.CombineUploads(ctx, items)
	}
	if err != nil {
		return nil, err
	}

	out, err := export.Render(res.Document, format)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(r.Output, out, 0o644); err != nil {
		return nil, fmt.Errorf("write output: %w", err)
	}
	return &combineResp{
		BatchID:     res.ID,
		Submissions: res.Submissions,
		Errors:      nonNil(res.Errors),
		Output:      r.Output,
		Bytes:       len(out),
	}, nil
}

// --- formats ---

func (p *Pipeline) registerFormatsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "docmerge_formats",
		Description: "List the output formats a combined document can be exported to.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(_ context.Context, _ any) (any, error) {
		return map[string]any{"formats": export.Formats(), "default": p.cfg.DefaultFormat()}, nil
	}
	kit.RegisterMCPTool(srv, tool, endpoint, decodeJSON[struct{}])
}

// --- batch ---

type batchReq struct {
	ID string `json:"id"`
}

func (p *Pipeline) registerBatchTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "docmerge_batch",
		Description: "Show a recorded batch: included submissions and per-item errors.",
		InputSchema: inputSchema(map[string]any{
			"id": map[string]any{"type": "string", "description": "Batch id (bat_...)"},
		}, []string{"id"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		if p.store == nil {
			return nil, errors.New("batch history disabled")
		}
		return p.store.Get(ctx, req.(*batchReq).ID)
	}
	kit.RegisterMCPTool(srv, tool, kit.Chain(p.logged(tool.Name))(endpoint), decodeJSON[batchReq])
}
