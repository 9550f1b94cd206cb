package bridge

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/coder/websocket"

	"github.com/webpuppet/webpuppet/internal/logx"
	"github.com/webpuppet/webpuppet/internal/serverstate"
)

// wsConn adapts a coder/websocket connection to the Conn interface. Writes
// are serialized; coder/websocket allows only one concurrent writer.
type wsConn struct {
	mu sync.Mutex
	c  *websocket.Conn
}

func (w *wsConn) Send(ctx context.Context, frame []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.c.Write(ctx, websocket.MessageText, frame)
}

func (w *wsConn) Close(reason string) error {
	return w.c.Close(websocket.StatusNormalClosure, reason)
}

// WSHandler accepts the browser extension connection and pumps its frames
// into the bridge until the socket closes.
func WSHandler(b *Bridge, clientKey string) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if serverstate.IsDraining() {
			http.Error(w, "draining", http.StatusServiceUnavailable)
			return
		}
		if clientKey != "" {
			provided := ""
			if auth := req.Header.Get("Authorization"); strings.HasPrefix(strings.ToLower(auth), "bearer ") {
				provided = strings.TrimSpace(auth[7:])
			}
			if provided == "" {
				provided = req.URL.Query().Get("client_key")
			}
			if provided != clientKey {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		// Extension origins (chrome-extension://...) never match the host.
		c, err := websocket.Accept(w, req, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
		if err != nil {
			return
		}
		// Disable the default 32KiB read limit; page content and screenshots
		// can be large.
		c.SetReadLimit(-1)
		conn := &wsConn{c: c}
		if err := b.Attach(conn); err != nil {
			return
		}
		logx.Log.Info().Str("remote_addr", req.RemoteAddr).Msg("browser connected")

		// Use a background context for the long-lived read loop; the request
		// context is canceled when the handler would return.
		ctx := context.Background()
		defer b.Detach(conn)
		for {
			_, data, err := c.Read(ctx)
			if err != nil {
				return
			}
			b.HandleFrame(data)
		}
	}
}
