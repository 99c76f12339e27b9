package api

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kalambet/uaproxy/internal/identity"
)

// --- helpers ---

func newTestMCPDeps(t *testing.T) (MCPDeps, *identity.Store) {
	t.Helper()
	store := identity.New(nil)
	pool, err := identity.NewPool([]string{"pool/1", "pool/2"})
	if err != nil {
		t.Fatalf("building pool: %v", err)
	}
	return MCPDeps{Store: store, Pool: pool, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}, store
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// --- tests ---

func TestMCPTool_GetUA_SeedsDefault(t *testing.T) {
	deps, _ := newTestMCPDeps(t)

	result, err := mcpGetUA(deps)(context.Background(), makeCallToolRequest("get_ua", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := toolText(t, result); got != identity.DefaultUserAgent {
		t.Errorf("get_ua = %q, want default", got)
	}
}

func TestMCPTool_SetUA(t *testing.T) {
	deps, store := newTestMCPDeps(t)

	result, err := mcpSetUA(deps)(context.Background(), makeCallToolRequest("set_ua", map[string]interface{}{
		"ua": "mcp/1.0",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}
	if got := store.Get(); got != "mcp/1.0" {
		t.Errorf("store = %q, want mcp/1.0", got)
	}
}

func TestMCPTool_SetUA_Invalid(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	if err := store.Set("before/1"); err != nil {
		t.Fatal(err)
	}

	for name, args := range map[string]map[string]interface{}{
		"missing": {},
		"empty":   {"ua": "  "},
		"newline": {"ua": "a\r\nb"},
	} {
		result, err := mcpSetUA(deps)(context.Background(), makeCallToolRequest("set_ua", args))
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", name, err)
		}
		if !result.IsError {
			t.Errorf("%s: expected tool error", name)
		}
	}
	if got := store.Get(); got != "before/1" {
		t.Errorf("store = %q, want before/1", got)
	}
}

func TestMCPTool_NilLoggerFallsBack(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	deps.Logger = nil

	set, err := mcpSetUA(deps)(context.Background(), makeCallToolRequest("set_ua", map[string]interface{}{
		"ua": "nolog/1.0",
	}))
	if err != nil || set.IsError {
		t.Fatalf("set_ua: err=%v result=%+v", err, set)
	}
	if _, err := mcpRandomizeUA(deps)(context.Background(), makeCallToolRequest("randomize_ua", nil)); err != nil {
		t.Fatalf("randomize_ua: %v", err)
	}
	if got := store.Get(); got != "pool/1" && got != "pool/2" {
		t.Errorf("store = %q, want a pool entry", got)
	}
}

func TestMCPTool_RandomizeUA(t *testing.T) {
	deps, store := newTestMCPDeps(t)

	result, err := mcpRandomizeUA(deps)(context.Background(), makeCallToolRequest("randomize_ua", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := toolText(t, result)
	if got != "pool/1" && got != "pool/2" {
		t.Errorf("randomize_ua = %q, want a pool entry", got)
	}
	if store.Get() != got {
		t.Errorf("store = %q, want %q", store.Get(), got)
	}
}

func TestMCPResource_Current(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	if err := store.Set("resource/1"); err != nil {
		t.Fatal(err)
	}

	req := mcp.ReadResourceRequest{Params: mcp.ReadResourceParams{URI: currentIdentityURI}}
	contents, err := mcpResourceCurrent(deps)(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("expected 1 content, got %d", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}
	if tc.Text != "resource/1" {
		t.Errorf("resource text = %q, want resource/1", tc.Text)
	}
}

func TestMCPServer_ConcurrentCalls(t *testing.T) {
	deps, store := newTestMCPDeps(t)
	NewMCPServer(deps)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			mcpSetUA(deps)(context.Background(), makeCallToolRequest("set_ua", map[string]interface{}{"ua": "c/1"}))
		}()
		go func() {
			defer wg.Done()
			mcpGetUA(deps)(context.Background(), makeCallToolRequest("get_ua", nil))
		}()
	}
	wg.Wait()

	if got := store.Get(); got != "c/1" {
		t.Errorf("store = %q, want c/1", got)
	}
}
