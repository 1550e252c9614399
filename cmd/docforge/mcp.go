package main

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/docforge/kit"
	"github.com/hazyhaar/docforge/printcss"
	"github.com/hazyhaar/docforge/template"
)

// registerMCP exposes docforge capabilities as MCP tools.
func (a *app) registerMCP(srv *mcp.Server) {
	a.registerTemplatesTool(srv)
	a.registerExportTool(srv)
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

// --- templates ---

type templatesReq struct{}

func (a *app) registerTemplatesTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "docforge_templates",
		Description: "List the bundled document templates available for editing sessions.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(_ context.Context, _ any) (any, error) {
		return template.List(), nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: &templatesReq{}}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- export ---

type exportReq struct {
	HTML     string `json:"html"`
	Filename string `json:"filename"`
	Compact  bool   `json:"compact"`
}

type exportRes struct {
	Filename string `json:"filename"`
	MIME     string `json:"mime"`
	Size     int    `json:"size"`
	DataURI  string `json:"data_uri"`
}

func (a *app) registerExportTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "docforge_export",
		Description: "Convert an HTML document to PDF (remote endpoint with local print fallback). Returns the PDF as a data URI.",
		InputSchema: inputSchema(map[string]any{
			"html":     map[string]any{"type": "string", "description": "HTML document to convert"},
			"filename": map[string]any{"type": "string", "description": "Filename stem for the PDF"},
			"compact":  map[string]any{"type": "boolean", "description": "Zoom down to fit one page"},
		}, []string{"html"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*exportReq)
		stem := r.Filename
		if stem == "" {
			stem = "document"
		}
		clean := a.sanitize.Sanitize(r.HTML)
		printable := printcss.Inject(clean, printcss.Options{Compact: r.Compact})
		obj, err := a.exportHTML(ctx, printable, stem, true)
		if err != nil {
			return nil, err
		}
		return &exportRes{
			Filename: obj.Filename,
			MIME:     obj.MIME,
			Size:     obj.Size(),
			DataURI:  obj.DataURI(),
		}, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r exportReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}
