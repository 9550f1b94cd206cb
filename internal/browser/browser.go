package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/webpuppet/webpuppet/internal/bridge"
)

// Command names understood by the browser extension.
const (
	CmdGetContent   = "getContent"
	CmdGetHTML      = "getHTML"
	CmdGetSelection = "getSelection"
	CmdExecute      = "executeScript"
	CmdClick        = "click"
	CmdType         = "type"
	CmdNavigate     = "navigate"
	CmdScreenshot   = "screenshot"
)

// ValidationError reports a missing or invalid operation parameter. It is
// raised before any dispatch is attempted; invalid calls never reach the
// connection and never consume a correlation id.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Dispatcher issues one correlated command and blocks until its terminal
// outcome. *bridge.Bridge satisfies it; tests substitute a stub.
type Dispatcher interface {
	Dispatch(ctx context.Context, command string, params any, timeout time.Duration) (json.RawMessage, error)
	IsConnected() bool
	Snapshot() bridge.Status
}

// Facade exposes the automation operations to the caller-facing surfaces.
// Each operation validates its inputs, then delegates to the dispatcher with
// the configured default timeout.
type Facade struct {
	d       Dispatcher
	timeout time.Duration
}

// New constructs a Facade dispatching with the given default timeout.
func New(d Dispatcher, timeout time.Duration) *Facade {
	return &Facade{d: d, timeout: timeout}
}

type selectorParams struct {
	Selector string `json:"selector"`
}

type typeParams struct {
	Selector string `json:"selector"`
	Text     string `json:"text"`
}

type navigateParams struct {
	URL string `json:"url"`
}

type scriptParams struct {
	Script string `json:"script"`
}

type screenshotParams struct {
	FullPage bool `json:"fullPage"`
}

// Content returns the visible text content of the current page.
func (f *Facade) Content(ctx context.Context) (json.RawMessage, error) {
	return f.d.Dispatch(ctx, CmdGetContent, nil, f.timeout)
}

// HTML returns the full HTML of the current page.
func (f *Facade) HTML(ctx context.Context) (json.RawMessage, error) {
	return f.d.Dispatch(ctx, CmdGetHTML, nil, f.timeout)
}

// Selection returns the currently selected text, if any.
func (f *Facade) Selection(ctx context.Context) (json.RawMessage, error) {
	return f.d.Dispatch(ctx, CmdGetSelection, nil, f.timeout)
}

// Execute runs a script in the page and returns its value.
func (f *Facade) Execute(ctx context.Context, script string) (json.RawMessage, error) {
	if script == "" {
		return nil, &ValidationError{Field: "script", Reason: "required"}
	}
	return f.d.Dispatch(ctx, CmdExecute, scriptParams{Script: script}, f.timeout)
}

// Click clicks the first element matching selector.
func (f *Facade) Click(ctx context.Context, selector string) (json.RawMessage, error) {
	if selector == "" {
		return nil, &ValidationError{Field: "selector", Reason: "required"}
	}
	return f.d.Dispatch(ctx, CmdClick, selectorParams{Selector: selector}, f.timeout)
}

// Type types text into the first element matching selector.
func (f *Facade) Type(ctx context.Context, selector, text string) (json.RawMessage, error) {
	if selector == "" {
		return nil, &ValidationError{Field: "selector", Reason: "required"}
	}
	return f.d.Dispatch(ctx, CmdType, typeParams{Selector: selector, Text: text}, f.timeout)
}

// Navigate points the active tab at url.
func (f *Facade) Navigate(ctx context.Context, url string) (json.RawMessage, error) {
	if url == "" {
		return nil, &ValidationError{Field: "url", Reason: "required"}
	}
	return f.d.Dispatch(ctx, CmdNavigate, navigateParams{URL: url}, f.timeout)
}

// Screenshot captures the visible viewport, or the full page when fullPage
// is set.
func (f *Facade) Screenshot(ctx context.Context, fullPage bool) (json.RawMessage, error) {
	return f.d.Dispatch(ctx, CmdScreenshot, screenshotParams{FullPage: fullPage}, f.timeout)
}

// IsConnected reports whether a browser is attached. Pure snapshot; never
// blocks.
func (f *Facade) IsConnected() bool {
	return f.d.IsConnected()
}

// Status returns the current bridge status snapshot.
func (f *Facade) Status() bridge.Status {
	return f.d.Snapshot()
}
