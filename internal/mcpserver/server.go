// Package mcpserver exposes mesh generation as MCP tools over the
// streamable HTTP transport.
package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	sdkserver "github.com/mark3labs/mcp-go/server"

	"github.com/gaspardpetit/text2mesh/internal/generate"
)

// Tools holds the dependencies of the MCP tool handlers.
type Tools struct {
	Service *generate.Service
	Device  string
}

// NewServer returns an MCP server with the generate_mesh and health tools.
func NewServer(t *Tools, version string) *sdkserver.MCPServer {
	srv := sdkserver.NewMCPServer(
		"text2mesh",
		version,
		sdkserver.WithToolCapabilities(false),
		sdkserver.WithRecovery(),
	)
	srv.AddTool(mcp.NewTool("generate_mesh",
		mcp.WithDescription("Generate a 3D mesh from a text prompt. Returns the file as an embedded resource."),
		mcp.WithString("prompt", mcp.Required(), mcp.Description("Text description of the object")),
		mcp.WithString("format", mcp.Description(`"stl" for binary STL (default), anything else for glTF-binary`)),
	), t.GenerateMesh)
	srv.AddTool(mcp.NewTool("health",
		mcp.WithDescription("Report server liveness and compute device."),
	), t.Health)
	return srv
}

// NewHandler wraps NewServer in a streamable HTTP handler.
func NewHandler(t *Tools, version string) http.Handler {
	return sdkserver.NewStreamableHTTPServer(NewServer(t, version))
}

// GenerateMesh runs one generation and returns the exported file.
func (t *Tools) GenerateMesh(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	var in generate.Request
	if v, ok := args["prompt"]; ok {
		s, ok := v.(string)
		if !ok {
			return mcp.NewToolResultError("prompt: must be a string"), nil
		}
		in.Prompt = s
	}
	if v, ok := args["format"]; ok {
		s, ok := v.(string)
		if !ok {
			return mcp.NewToolResultError("format: must be a string"), nil
		}
		in.Format = &s
	}
	art, err := t.Service.Generate(ctx, in)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	summary := fmt.Sprintf("%s (%s, %d triangles, %d bytes)", art.Filename, art.MIMEType, art.Triangles, len(art.Data))
	return mcp.NewToolResultResource(summary, mcp.BlobResourceContents{
		URI:      "mesh://" + art.Filename,
		MIMEType: art.MIMEType,
		Blob:     base64.StdEncoding.EncodeToString(art.Data),
	}), nil
}

// Health mirrors GET /health.
func (t *Tools) Health(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(map[string]string{"status": "ok", "device": t.Device})
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(b)), nil
}
