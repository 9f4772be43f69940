package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/coder/websocket"
)

// maxFrameSize bounds a single inbound WebSocket frame. Realtime events can
// carry sizeable payloads (full conversation items, tool schemas).
const maxFrameSize = 16 << 20

// WS is a Channel over a WebSocket connection.
type WS struct {
	conn   *websocket.Conn
	log    *slog.Logger
	cancel context.CancelFunc

	mu sync.Mutex
	fn func([]byte)
}

var _ Channel = (*WS)(nil)

// WSURL converts an HTTP URL to its WebSocket equivalent: https becomes
// wss, http becomes ws. URLs already using ws/wss are left unchanged.
func WSURL(u string) string {
	if strings.HasPrefix(u, "https://") {
		return "wss://" + u[len("https://"):]
	}

	if strings.HasPrefix(u, "http://") {
		return "ws://" + u[len("http://"):]
	}

	return u
}

// DialWS establishes a WebSocket channel to the given URL with the headers
// applied. The URL scheme is converted with WSURL. A nil client falls back
// to http.DefaultClient; a nil logger falls back to slog.Default().
func DialWS(ctx context.Context, url string, header http.Header, client *http.Client, log *slog.Logger) (*WS, error) {
	if log == nil {
		log = slog.Default()
	}

	conn, _, err := websocket.Dial(ctx, WSURL(url), &websocket.DialOptions{
		HTTPClient: client,
		HTTPHeader: header,
	})
	if err != nil {
		return nil, fmt.Errorf("transport: dial websocket: %w", err)
	}

	conn.SetReadLimit(maxFrameSize)

	readCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	w := &WS{conn: conn, log: log, cancel: cancel}
	go w.readLoop(readCtx)

	return w, nil
}

// Send transmits one text frame.
func (w *WS) Send(ctx context.Context, data []byte) error {
	if err := w.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("transport: write: %w", err)
	}
	return nil
}

// OnMessage registers the inbound frame callback. Frames arriving while no
// callback is registered are dropped with a warning.
func (w *WS) OnMessage(fn func(data []byte)) {
	w.mu.Lock()
	w.fn = fn
	w.mu.Unlock()
}

// Close stops the read loop and closes the connection.
func (w *WS) Close() error {
	w.cancel()
	return w.conn.Close(websocket.StatusNormalClosure, "")
}

func (w *WS) readLoop(ctx context.Context) {
	for {
		_, data, err := w.conn.Read(ctx)
		if err != nil {
			w.log.Debug("transport: read loop ended", "err", err)
			return
		}

		w.mu.Lock()
		fn := w.fn
		w.mu.Unlock()

		if fn == nil {
			w.log.Warn("transport: dropping frame, no message handler registered")
			continue
		}

		fn(data)
	}
}
