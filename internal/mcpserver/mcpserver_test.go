package mcpserver

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	sdkserver "github.com/mark3labs/mcp-go/server"

	"github.com/webpuppet/webpuppet/internal/bridge"
	"github.com/webpuppet/webpuppet/internal/browser"
)

type stubDispatcher struct {
	lastCommand string
	lastParams  any
	result      json.RawMessage
	err         error
	status      bridge.Status
}

func (s *stubDispatcher) Dispatch(ctx context.Context, command string, params any, timeout time.Duration) (json.RawMessage, error) {
	s.lastCommand = command
	s.lastParams = params
	return s.result, s.err
}

func (s *stubDispatcher) IsConnected() bool       { return s.status.Connected }
func (s *stubDispatcher) Snapshot() bridge.Status { return s.status }

func startClient(t *testing.T, d *stubDispatcher) *client.Client {
	t.Helper()
	srv := newServer(browser.New(d, time.Second), "test")
	httpSrv := sdkserver.NewTestStreamableHTTPServer(srv)
	t.Cleanup(httpSrv.Close)

	cl, err := client.NewStreamableHttpClient(httpSrv.URL)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	t.Cleanup(func() { _ = cl.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	if err := cl.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := cl.Initialize(ctx, mcp.InitializeRequest{}); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return cl
}

func callTool(t *testing.T, cl *client.Client, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	res, err := cl.CallTool(context.Background(), req)
	if err != nil {
		t.Fatalf("call %s: %v", name, err)
	}
	return res
}

func textContent(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) != 1 {
		t.Fatalf("content length %d", len(res.Content))
	}
	tc, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content type %T", res.Content[0])
	}
	return tc.Text
}

func TestListsAllBrowserTools(t *testing.T) {
	cl := startClient(t, &stubDispatcher{})
	tools, err := cl.ListTools(context.Background(), mcp.ListToolsRequest{})
	if err != nil {
		t.Fatalf("list tools: %v", err)
	}
	want := map[string]bool{
		"browser_get_content":   false,
		"browser_get_html":      false,
		"browser_get_selection": false,
		"browser_execute":       false,
		"browser_click":         false,
		"browser_type":          false,
		"browser_navigate":      false,
		"browser_screenshot":    false,
		"browser_status":        false,
	}
	for _, tool := range tools.Tools {
		if _, ok := want[tool.Name]; ok {
			want[tool.Name] = true
		}
	}
	for name, seen := range want {
		if !seen {
			t.Fatalf("missing tool %s", name)
		}
	}
}

func TestClickDispatchesAndReturnsResult(t *testing.T) {
	d := &stubDispatcher{result: json.RawMessage(`{"clicked":true}`)}
	cl := startClient(t, d)
	res := callTool(t, cl, "browser_click", map[string]any{"selector": "#go"})
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", textContent(t, res))
	}
	if got := textContent(t, res); got != `{"clicked":true}` {
		t.Fatalf("text %q", got)
	}
	if d.lastCommand != browser.CmdClick {
		t.Fatalf("command %q", d.lastCommand)
	}
}

func TestMissingSelectorIsToolError(t *testing.T) {
	d := &stubDispatcher{}
	cl := startClient(t, d)
	res := callTool(t, cl, "browser_click", nil)
	if !res.IsError {
		t.Fatalf("expected tool error")
	}
	if d.lastCommand != "" {
		t.Fatalf("dispatch happened: %q", d.lastCommand)
	}
}

func TestBridgeFailureIsToolError(t *testing.T) {
	d := &stubDispatcher{err: bridge.ErrNotConnected}
	cl := startClient(t, d)
	res := callTool(t, cl, "browser_get_content", nil)
	if !res.IsError {
		t.Fatalf("expected tool error")
	}
}

func TestStatusToolReportsSnapshot(t *testing.T) {
	d := &stubDispatcher{status: bridge.Status{Connected: true, MessageCount: 3}}
	cl := startClient(t, d)
	res := callTool(t, cl, "browser_status", nil)
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", textContent(t, res))
	}
	var st bridge.Status
	if err := json.Unmarshal([]byte(textContent(t, res)), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !st.Connected || st.MessageCount != 3 {
		t.Fatalf("bad status %+v", st)
	}
}
