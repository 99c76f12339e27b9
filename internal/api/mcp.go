package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/uaproxy/internal/identity"
)

const currentIdentityURI = "identity://current"

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store   *identity.Store
	Pool    *identity.Pool // nil uses identity.DefaultPool
	Version string
	Logger  *slog.Logger
}

func (d MCPDeps) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

// NewMCPServer creates an MCP server exposing the identity as tools and a resource.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	if deps.Pool == nil {
		deps.Pool = identity.DefaultPool()
	}
	if deps.Version == "" {
		deps.Version = "dev"
	}

	s := server.NewMCPServer(
		"uaproxy",
		deps.Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("uaproxy: controls the User-Agent applied to proxied HTTP requests."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("get_ua",
			mcp.WithDescription("Return the User-Agent currently applied to proxied requests."),
		),
		mcpGetUA(deps),
	)

	s.AddTool(
		mcp.NewTool("set_ua",
			mcp.WithDescription("Replace the User-Agent applied to proxied requests."),
			mcp.WithString("ua", mcp.Description("New User-Agent string"), mcp.Required()),
		),
		mcpSetUA(deps),
	)

	s.AddTool(
		mcp.NewTool("randomize_ua",
			mcp.WithDescription("Pick a random browser User-Agent from the configured pool and apply it."),
		),
		mcpRandomizeUA(deps),
	)

	s.AddResource(
		mcp.NewResource(
			currentIdentityURI,
			"Current User-Agent",
			mcp.WithResourceDescription("User-Agent currently applied to proxied requests"),
			mcp.WithMIMEType("text/plain"),
		),
		mcpResourceCurrent(deps),
	)

	return s
}

func mcpGetUA(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcpText(deps.Store.Get()), nil
	}
}

func mcpSetUA(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ua, err := req.RequireString("ua")
		if err != nil {
			return mcpError("Missing UA"), nil
		}
		if err := deps.Store.Set(ua); err != nil {
			return mcpError(setErrorMessage(err)), nil
		}
		deps.logger().Info("identity updated", "source", "mcp", "user_agent", ua)
		return mcpText("UA updated"), nil
	}
}

func mcpRandomizeUA(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ua, err := identity.Randomize(deps.Store, deps.Pool)
		if err != nil {
			return mcpError(setErrorMessage(err)), nil
		}
		deps.logger().Info("identity updated", "source", "mcp-randomize", "user_agent", ua)
		return mcpText(ua), nil
	}
}

func mcpResourceCurrent(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "text/plain",
				Text:     deps.Store.Get(),
			},
		}, nil
	}
}

func setErrorMessage(err error) string {
	switch {
	case errors.Is(err, identity.ErrInvalidInput):
		return fmt.Sprintf("Invalid UA: %v", err)
	case errors.Is(err, identity.ErrDurableWrite):
		return fmt.Sprintf("Failed to persist UA: %v", err)
	default:
		return err.Error()
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
