package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/webpuppet/webpuppet/internal/logx"
	"github.com/webpuppet/webpuppet/internal/metrics"
)

const writeTimeout = 2 * time.Second

// Conn is the transport the bridge drives. Production wraps a websocket in
// wsConn; tests substitute an in-memory channel.
type Conn interface {
	Send(ctx context.Context, frame []byte) error
	Close(reason string) error
}

// Status is a read-only snapshot of the bridge. LastActivity is the zero time
// until the first peer attaches.
type Status struct {
	Connected    bool      `json:"connected"`
	LastActivity time.Time `json:"lastActivity"`
	MessageCount uint64    `json:"messageCount"`
}

type outcome struct {
	result json.RawMessage
	err    error
}

// pendingRequest is one dispatched command awaiting its correlated response.
// The entry is removed from the pending map exactly once — by a matching
// response, by its timer firing, or by bulk rejection on disconnect — and
// whoever removes it delivers the single terminal outcome.
type pendingRequest struct {
	command string
	timer   *time.Timer
	ch      chan outcome
	start   time.Time
}

// Bridge owns the single browser connection and the pending command map, and
// correlates synchronous dispatch calls with asynchronous response frames.
type Bridge struct {
	defaultTimeout time.Duration
	pingInterval   time.Duration

	mu           sync.Mutex
	conn         Conn
	pending      map[string]*pendingRequest
	lastActivity time.Time
	msgCount     uint64
	closed       bool
}

// New constructs a Bridge. defaultTimeout bounds each dispatched command
// unless the caller supplies its own; pingInterval paces the liveness probe.
func New(defaultTimeout, pingInterval time.Duration) *Bridge {
	if defaultTimeout <= 0 {
		defaultTimeout = 30 * time.Second
	}
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &Bridge{
		defaultTimeout: defaultTimeout,
		pingInterval:   pingInterval,
		pending:        make(map[string]*pendingRequest),
	}
}

// Attach makes c the canonical browser connection. If another connection is
// active it is closed explicitly and all of its pending commands are rejected
// before the new connection takes over; nothing relies on the old socket's own
// close event firing.
func (b *Bridge) Attach(c Conn) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		_ = c.Close("server closed")
		return ErrClosed
	}
	old := b.conn
	if old != nil {
		b.failAllLocked(ErrConnectionLost)
	}
	b.conn = c
	b.lastActivity = time.Now()
	b.mu.Unlock()

	if old != nil {
		_ = old.Close("replaced")
		metrics.RecordConnectionEvent("replaced")
		logx.Log.Warn().Msg("browser reconnected; previous connection replaced")
	}
	metrics.SetBrowserConnected(true)
	metrics.RecordConnectionEvent("connected")
	return nil
}

// Detach clears the active connection if c is still canonical, rejecting every
// pending command with ErrConnectionLost before returning. A connection that
// was already replaced detaches as a no-op.
func (b *Bridge) Detach(c Conn) {
	b.mu.Lock()
	if b.conn != c {
		b.mu.Unlock()
		return
	}
	n := len(b.pending)
	b.failAllLocked(ErrConnectionLost)
	b.conn = nil
	b.mu.Unlock()

	metrics.SetBrowserConnected(false)
	metrics.RecordConnectionEvent("disconnected")
	logx.Log.Info().Int("rejected", n).Msg("browser disconnected")
}

// HandleFrame processes one inbound frame. Malformed frames are logged and
// dropped; well-formed frames refresh activity bookkeeping even when their id
// matches nothing, which happens when a response races a timeout that already
// fired.
func (b *Bridge) HandleFrame(data []byte) {
	var f ResponseFrame
	if err := json.Unmarshal(data, &f); err != nil {
		metrics.RecordDroppedFrame()
		logx.Log.Debug().Err(err).Msg("dropping malformed frame")
		return
	}

	b.mu.Lock()
	b.msgCount++
	b.lastActivity = time.Now()
	p, ok := b.pending[f.RequestID]
	if ok {
		delete(b.pending, f.RequestID)
		p.timer.Stop()
	}
	b.mu.Unlock()

	metrics.RecordFrame()
	if !ok {
		if f.RequestID != "" {
			logx.Log.Debug().Str("request_id", f.RequestID).Msg("response matches no pending command")
		}
		return
	}
	if f.Error != "" {
		p.ch <- outcome{err: &RemoteError{Message: f.Error}}
		return
	}
	p.ch <- outcome{result: f.Result}
}

// Dispatch sends a command to the browser and blocks until its single
// terminal outcome: the correlated response, a timeout, or a connection loss.
// timeout <= 0 selects the configured default.
func (b *Bridge) Dispatch(ctx context.Context, command string, params any, timeout time.Duration) (json.RawMessage, error) {
	if timeout <= 0 {
		timeout = b.defaultTimeout
	}
	var raw json.RawMessage
	if params != nil {
		var err error
		if raw, err = json.Marshal(params); err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}
	}

	b.mu.Lock()
	conn := b.conn
	if conn == nil {
		b.mu.Unlock()
		metrics.RecordCommand(command, "not_connected")
		return nil, ErrNotConnected
	}
	id := uuid.NewString()
	p := &pendingRequest{
		command: command,
		ch:      make(chan outcome, 1),
		start:   time.Now(),
	}
	p.timer = time.AfterFunc(timeout, func() { b.expire(id, timeout) })
	b.pending[id] = p
	b.mu.Unlock()

	frame, err := json.Marshal(CommandFrame{RequestID: id, Command: command, Params: raw})
	if err != nil {
		b.withdraw(id, p, fmt.Errorf("marshal command: %w", err))
		return b.await(p)
	}
	logx.Log.Debug().Str("request_id", id).Str("command", command).Msg("dispatch")
	if err := conn.Send(ctx, frame); err != nil {
		b.withdraw(id, p, fmt.Errorf("send command: %w", err))
	}
	return b.await(p)
}

// withdraw removes the pending entry after a local failure. When a timeout or
// disconnect already removed it, their outcome stands and err is discarded.
func (b *Bridge) withdraw(id string, p *pendingRequest, err error) {
	b.mu.Lock()
	_, ok := b.pending[id]
	if ok {
		delete(b.pending, id)
		p.timer.Stop()
	}
	b.mu.Unlock()
	if ok {
		p.ch <- outcome{err: err}
	}
}

func (b *Bridge) await(p *pendingRequest) (json.RawMessage, error) {
	out := <-p.ch
	metrics.ObserveCommandDuration(p.command, time.Since(p.start))
	metrics.RecordCommand(p.command, outcomeLabel(out.err))
	return out.result, out.err
}

func outcomeLabel(err error) string {
	switch err.(type) {
	case nil:
		return "success"
	case *TimeoutError:
		return "timeout"
	case *RemoteError:
		return "remote_error"
	default:
		if err == ErrConnectionLost {
			return "connection_lost"
		}
		return "error"
	}
}

// expire fires when a pending command's timer elapses. If the response beat
// the timer to the map removal, the timer loses and does nothing.
func (b *Bridge) expire(id string, timeout time.Duration) {
	b.mu.Lock()
	p, ok := b.pending[id]
	if ok {
		delete(b.pending, id)
	}
	b.mu.Unlock()
	if !ok {
		return
	}
	logx.Log.Warn().Str("request_id", id).Str("command", p.command).Dur("timeout", timeout).Msg("command timed out")
	p.ch <- outcome{err: &TimeoutError{After: timeout}}
}

// failAllLocked rejects every pending command with err. Caller holds b.mu.
func (b *Bridge) failAllLocked(err error) {
	for id, p := range b.pending {
		p.timer.Stop()
		delete(b.pending, id)
		p.ch <- outcome{err: err}
	}
}

// Run drives the liveness probe until ctx is canceled. The probe only sends;
// a dead connection surfaces through the read loop's close or error, never
// from the probe itself.
func (b *Bridge) Run(ctx context.Context) {
	ticker := time.NewTicker(b.pingInterval)
	defer ticker.Stop()
	ping, _ := json.Marshal(CommandFrame{Command: PingCommand})
	for {
		select {
		case <-ticker.C:
			b.mu.Lock()
			conn := b.conn
			b.mu.Unlock()
			if conn == nil {
				continue
			}
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			_ = conn.Send(wctx, ping)
			cancel()
		case <-ctx.Done():
			return
		}
	}
}

// IsConnected reports whether a browser is currently attached. It never
// blocks and never touches the network.
func (b *Bridge) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn != nil
}

// Snapshot returns the current bridge status.
func (b *Bridge) Snapshot() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Status{
		Connected:    b.conn != nil,
		LastActivity: b.lastActivity,
		MessageCount: b.msgCount,
	}
}

// Close shuts the bridge down for good: the active connection (if any) is
// closed gracefully, every straggling pending command is rejected, and no
// further attach is accepted. It returns once the connection close has
// completed and is safe to call more than once.
func (b *Bridge) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	conn := b.conn
	b.conn = nil
	b.failAllLocked(ErrConnectionLost)
	b.mu.Unlock()

	if conn != nil {
		err := conn.Close("shutting down")
		metrics.SetBrowserConnected(false)
		return err
	}
	return nil
}
