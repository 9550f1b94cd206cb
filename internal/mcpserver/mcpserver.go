package mcpserver

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	sdkserver "github.com/mark3labs/mcp-go/server"

	"github.com/webpuppet/webpuppet/internal/browser"
)

// NewHandler constructs a Streamable HTTP MCP handler exposing the browser
// operations as tools.
func NewHandler(f *browser.Facade, version string) http.Handler {
	return sdkserver.NewStreamableHTTPServer(newServer(f, version))
}

func newServer(f *browser.Facade, version string) *sdkserver.MCPServer {
	s := sdkserver.NewMCPServer(
		"webpuppet",
		version,
		sdkserver.WithResourceCapabilities(false, false),
		sdkserver.WithToolCapabilities(false),
		sdkserver.WithPromptCapabilities(false),
	)
	registerTools(s, f)
	return s
}

func registerTools(s *sdkserver.MCPServer, f *browser.Facade) {
	s.AddTool(mcp.NewTool("browser_get_content",
		mcp.WithDescription("Extract the readable text content of the current page"),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return toolResult(f.Content(ctx))
	})

	s.AddTool(mcp.NewTool("browser_get_html",
		mcp.WithDescription("Fetch the raw HTML of the current page"),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return toolResult(f.HTML(ctx))
	})

	s.AddTool(mcp.NewTool("browser_get_selection",
		mcp.WithDescription("Fetch the text currently selected in the page"),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return toolResult(f.Selection(ctx))
	})

	s.AddTool(mcp.NewTool("browser_execute",
		mcp.WithDescription("Execute a JavaScript expression in the current page and return its result"),
		mcp.WithString("script", mcp.Required(), mcp.Description("JavaScript to evaluate")),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return toolResult(f.Execute(ctx, req.GetString("script", "")))
	})

	s.AddTool(mcp.NewTool("browser_click",
		mcp.WithDescription("Click the element matching a CSS selector"),
		mcp.WithString("selector", mcp.Required(), mcp.Description("CSS selector of the element to click")),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return toolResult(f.Click(ctx, req.GetString("selector", "")))
	})

	s.AddTool(mcp.NewTool("browser_type",
		mcp.WithDescription("Type text into the element matching a CSS selector"),
		mcp.WithString("selector", mcp.Required(), mcp.Description("CSS selector of the target element")),
		mcp.WithString("text", mcp.Description("Text to type")),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return toolResult(f.Type(ctx, req.GetString("selector", ""), req.GetString("text", "")))
	})

	s.AddTool(mcp.NewTool("browser_navigate",
		mcp.WithDescription("Navigate the active tab to a URL"),
		mcp.WithString("url", mcp.Required(), mcp.Description("Destination URL")),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return toolResult(f.Navigate(ctx, req.GetString("url", "")))
	})

	s.AddTool(mcp.NewTool("browser_screenshot",
		mcp.WithDescription("Capture a screenshot of the visible tab"),
		mcp.WithBoolean("fullPage", mcp.Description("Capture the full page instead of the viewport")),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return toolResult(f.Screenshot(ctx, req.GetBool("fullPage", false)))
	})

	s.AddTool(mcp.NewTool("browser_status",
		mcp.WithDescription("Report whether a browser is connected and its recent activity"),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		st := f.Status()
		b, err := json.Marshal(st)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(string(b)), nil
	})
}

// toolResult converts a facade outcome into an MCP tool result. Operation
// failures become tool errors so agents can react, not protocol errors.
func toolResult(res json.RawMessage, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(res) == 0 {
		return mcp.NewToolResultText("null"), nil
	}
	return mcp.NewToolResultText(string(res)), nil
}
