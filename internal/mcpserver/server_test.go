package mcpserver

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/gaspardpetit/text2mesh/internal/generate"
	"github.com/gaspardpetit/text2mesh/internal/pipeline"
	"github.com/gaspardpetit/text2mesh/internal/pipeline/procedural"
)

func newTools(t *testing.T) *Tools {
	t.Helper()
	p, err := pipeline.Load(context.Background(), procedural.New(), pipeline.Options{
		Model:         "text300M",
		Device:        pipeline.DeviceCPU,
		GuidanceScale: 10,
	})
	if err != nil {
		t.Fatalf("load pipeline: %v", err)
	}
	return &Tools{Service: generate.NewService(p, 0), Device: p.Device()}
}

func call(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = "generate_mesh"
	req.Params.Arguments = args
	return req
}

func blob(t *testing.T, res *mcp.CallToolResult) mcp.BlobResourceContents {
	t.Helper()
	if res.IsError {
		t.Fatalf("tool error: %+v", res.Content)
	}
	for _, c := range res.Content {
		if er, ok := c.(mcp.EmbeddedResource); ok {
			b, ok := er.Resource.(mcp.BlobResourceContents)
			if !ok {
				t.Fatalf("resource is %T", er.Resource)
			}
			return b
		}
	}
	t.Fatalf("no embedded resource in %+v", res.Content)
	return mcp.BlobResourceContents{}
}

func TestGenerateMeshSTL(t *testing.T) {
	tools := newTools(t)
	res, err := tools.GenerateMesh(context.Background(), call(map[string]any{"prompt": "a chair"}))
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	b := blob(t, res)
	if b.MIMEType != "model/stl" || b.URI != "mesh://model.stl" {
		t.Fatalf("unexpected resource %s %s", b.URI, b.MIMEType)
	}
	data, err := base64.StdEncoding.DecodeString(b.Blob)
	if err != nil {
		t.Fatalf("decode blob: %v", err)
	}
	if (len(data)-84)%50 != 0 {
		t.Fatalf("not a binary stl: %d bytes", len(data))
	}
}

func TestGenerateMeshGLB(t *testing.T) {
	tools := newTools(t)
	res, err := tools.GenerateMesh(context.Background(), call(map[string]any{"prompt": "a cup", "format": "glb"}))
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if b := blob(t, res); b.MIMEType != "model/gltf-binary" || b.URI != "mesh://model.glb" {
		t.Fatalf("unexpected resource %s %s", b.URI, b.MIMEType)
	}
}

func TestGenerateMeshBadArgument(t *testing.T) {
	tools := newTools(t)
	res, err := tools.GenerateMesh(context.Background(), call(map[string]any{"prompt": 7}))
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if !res.IsError {
		t.Fatalf("expected tool error")
	}
}

func TestHealthTool(t *testing.T) {
	tools := &Tools{Device: "cuda"}
	res, err := tools.Health(context.Background(), mcp.CallToolRequest{})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	txt, ok := res.Content[0].(mcp.TextContent)
	if !ok || txt.Text != `{"device":"cuda","status":"ok"}` {
		t.Fatalf("unexpected content %+v", res.Content)
	}
}

func TestInitializeOverHTTP(t *testing.T) {
	mux := http.NewServeMux()
	mux.Handle("/mcp", NewHandler(newTools(t), "test"))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	reqBody := []byte(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26","capabilities":{},"clientInfo":{"name":"test","version":"1"}}}`)
	resp, err := http.Post(srv.URL+"/mcp", "application/json", bytes.NewReader(reqBody))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if sid := resp.Header.Get("Mcp-Session-Id"); sid == "" {
		t.Fatalf("missing session id")
	}
	var js map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&js); err != nil {
		t.Fatalf("decode: %v", err)
	}
	result, _ := js["result"].(map[string]any)
	info, _ := result["serverInfo"].(map[string]any)
	if name, _ := info["name"].(string); !strings.EqualFold(name, "text2mesh") {
		t.Fatalf("unexpected server info %v", result)
	}
}
