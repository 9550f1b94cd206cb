package browser

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/webpuppet/webpuppet/internal/bridge"
)

type stubDispatcher struct {
	command string
	params  any
	timeout time.Duration
	calls   int

	result json.RawMessage
	err    error
	status bridge.Status
}

func (s *stubDispatcher) Dispatch(_ context.Context, command string, params any, timeout time.Duration) (json.RawMessage, error) {
	s.calls++
	s.command = command
	s.params = params
	s.timeout = timeout
	return s.result, s.err
}

func (s *stubDispatcher) IsConnected() bool       { return s.status.Connected }
func (s *stubDispatcher) Snapshot() bridge.Status { return s.status }

func TestOperationsDispatchExpectedCommands(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name    string
		call    func(f *Facade) (json.RawMessage, error)
		command string
		params  string
	}{
		{"content", func(f *Facade) (json.RawMessage, error) { return f.Content(ctx) }, CmdGetContent, "null"},
		{"html", func(f *Facade) (json.RawMessage, error) { return f.HTML(ctx) }, CmdGetHTML, "null"},
		{"selection", func(f *Facade) (json.RawMessage, error) { return f.Selection(ctx) }, CmdGetSelection, "null"},
		{"execute", func(f *Facade) (json.RawMessage, error) { return f.Execute(ctx, "1+1") }, CmdExecute, `{"script":"1+1"}`},
		{"click", func(f *Facade) (json.RawMessage, error) { return f.Click(ctx, "#go") }, CmdClick, `{"selector":"#go"}`},
		{"type", func(f *Facade) (json.RawMessage, error) { return f.Type(ctx, "#q", "hi") }, CmdType, `{"selector":"#q","text":"hi"}`},
		{"navigate", func(f *Facade) (json.RawMessage, error) { return f.Navigate(ctx, "https://example.com") }, CmdNavigate, `{"url":"https://example.com"}`},
		{"screenshot", func(f *Facade) (json.RawMessage, error) { return f.Screenshot(ctx, true) }, CmdScreenshot, `{"fullPage":true}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubDispatcher{result: json.RawMessage(`"ok"`)}
			f := New(stub, 5*time.Second)
			res, err := tt.call(f)
			if err != nil {
				t.Fatalf("err: %v", err)
			}
			if string(res) != `"ok"` {
				t.Fatalf("result = %s", res)
			}
			if stub.command != tt.command {
				t.Fatalf("command = %q; want %q", stub.command, tt.command)
			}
			if stub.timeout != 5*time.Second {
				t.Fatalf("timeout = %v; want 5s", stub.timeout)
			}
			b, _ := json.Marshal(stub.params)
			if string(b) != tt.params {
				t.Fatalf("params = %s; want %s", b, tt.params)
			}
		})
	}
}

func TestValidationFailsBeforeDispatch(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name  string
		call  func(f *Facade) (json.RawMessage, error)
		field string
	}{
		{"click without selector", func(f *Facade) (json.RawMessage, error) { return f.Click(ctx, "") }, "selector"},
		{"type without selector", func(f *Facade) (json.RawMessage, error) { return f.Type(ctx, "", "hi") }, "selector"},
		{"navigate without url", func(f *Facade) (json.RawMessage, error) { return f.Navigate(ctx, "") }, "url"},
		{"execute without script", func(f *Facade) (json.RawMessage, error) { return f.Execute(ctx, "") }, "script"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubDispatcher{}
			f := New(stub, time.Second)
			_, err := tt.call(f)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("err = %v; want ValidationError", err)
			}
			if ve.Field != tt.field {
				t.Fatalf("field = %q; want %q", ve.Field, tt.field)
			}
			if stub.calls != 0 {
				t.Fatalf("dispatcher called %d times for invalid input", stub.calls)
			}
		})
	}
}

func TestDispatchErrorsPropagate(t *testing.T) {
	stub := &stubDispatcher{err: bridge.ErrNotConnected}
	f := New(stub, time.Second)
	if _, err := f.Content(context.Background()); !errors.Is(err, bridge.ErrNotConnected) {
		t.Fatalf("err = %v; want ErrNotConnected", err)
	}
}

func TestStatusIsPassthrough(t *testing.T) {
	now := time.Now()
	stub := &stubDispatcher{status: bridge.Status{Connected: true, LastActivity: now, MessageCount: 7}}
	f := New(stub, time.Second)
	if !f.IsConnected() {
		t.Fatal("IsConnected = false")
	}
	st := f.Status()
	if !st.Connected || st.MessageCount != 7 || !st.LastActivity.Equal(now) {
		t.Fatalf("status = %+v", st)
	}
}
