package realtime

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// Conn is one open push connection.
type Conn interface {
	Read(ctx context.Context) ([]byte, error)
	WriteJSON(ctx context.Context, v any) error
	Close() error
}

// Dialer opens push connections.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WebsocketDialer dials the push endpoint over WebSocket.
type WebsocketDialer struct {
	// HTTPClient is used for the upgrade request. nil means the default.
	HTTPClient *http.Client
	// ReadLimit caps the size of one inbound frame. 0 keeps the library
	// default.
	ReadLimit int64
}

// Dial implements Dialer.
func (d WebsocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	c, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPClient: d.HTTPClient})
	if err != nil {
		return nil, fmt.Errorf("dial push channel: %w", err)
	}
	if d.ReadLimit > 0 {
		c.SetReadLimit(d.ReadLimit)
	}
	return &wsConn{c: c}, nil
}

type wsConn struct {
	c *websocket.Conn
}

func (w *wsConn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := w.c.Read(ctx)
	return data, err
}

func (w *wsConn) WriteJSON(ctx context.Context, v any) error {
	return wsjson.Write(ctx, w.c, v)
}

func (w *wsConn) Close() error {
	return w.c.Close(websocket.StatusNormalClosure, "")
}
