package docpipe

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/mhtml2pdf/idgen"
	"github.com/hazyhaar/mhtml2pdf/kit"
	"github.com/hazyhaar/mhtml2pdf/tileindex"
)

// RegisterMCP registers the converter tools on an MCP server.
func (p *Pipeline) RegisterMCP(srv *mcp.Server) {
	p.registerConvertTool(srv)
	p.registerInspectTool(srv)
	p.registerConfigTool(srv)
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

func (p *Pipeline) register(srv *mcp.Server, tool *mcp.Tool, endpoint kit.Endpoint, decode func(*mcp.CallToolRequest) (*kit.MCPDecodeResult, error)) {
	endpoint = kit.Chain(kit.Logging(p.logger, tool.Name))(endpoint)
	kit.RegisterMCPTool(srv, tool, endpoint, func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		res, err := decode(req)
		if err != nil {
			return nil, err
		}
		res.EnrichCtx = func(ctx context.Context) context.Context {
			return kit.WithRequestID(ctx, idgen.Request())
		}
		return res, nil
	})
}

// --- convert ---

type convertReq struct {
	Input  string `json:"input"`
	Output string `json:"output"`
}

func (p *Pipeline) registerConvertTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "mhtml_convert",
		Description: "Convert a saved viewer archive (.mhtml) into a PDF with one page per page container.",
		InputSchema: inputSchema(map[string]any{
			"input":  map[string]any{"type": "string", "description": "Path of the .mhtml archive"},
			"output": map[string]any{"type": "string", "description": "Path of the PDF to write (default: input with .pdf extension)"},
		}, []string{"input"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*convertReq)
		if r.Input == "" {
			return nil, errors.New("input is required")
		}
		output := r.Output
		if output == "" {
			output = OutputPath(r.Input, "", "")
		}
		return p.Convert(ctx, r.Input, output)
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r convertReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	p.register(srv, tool, endpoint, decode)
}

// --- inspect ---

type inspectReq struct {
	Input string `json:"input"`
}

type inspectResp struct {
	PageCount int              `json:"page_count"`
	Resources []string         `json:"resources"`
	Pages     []tileindex.Page `json:"pages"`
}

func (p *Pipeline) registerInspectTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "mhtml_inspect",
		Description: "List the pages of a saved viewer archive with their size and tile placements, without rendering.",
		InputSchema: inputSchema(map[string]any{
			"input": map[string]any{"type": "string", "description": "Path of the .mhtml archive"},
		}, []string{"input"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*inspectReq)
		pages, err := p.Inspect(ctx, r.Input)
		if err != nil {
			return nil, err
		}
		return inspectResp{
			PageCount: len(pages),
			Resources: tileindex.ResourceIDs(pages),
			Pages:     pages,
		}, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r inspectReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	p.register(srv, tool, endpoint, decode)
}

// --- config ---

func (p *Pipeline) registerConfigTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "mhtml_config",
		Description: "Show the effective converter configuration (tile size, policy, class names, limits).",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(_ context.Context, _ any) (any, error) {
		return p.Config(), nil
	}

	decode := func(_ *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: nil}, nil
	}

	p.register(srv, tool, endpoint, decode)
}
