// ABOUTME: Transport abstraction over the session WebSocket.
// ABOUTME: Narrow wire interface so the manager is testable without a real socket.

package session

import (
	"context"
	"net/http"

	"github.com/coder/websocket"
)

// maxEnvelopeBytes bounds a single inbound envelope. Large file attachments
// travel over HTTP, not the session socket.
const maxEnvelopeBytes = 1 << 20

// wire is the minimal duplex transport the manager needs. The production
// implementation wraps a websocket connection; tests inject a fake.
type wire interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close(code websocket.StatusCode, reason string) error
}

// dialFunc opens a wire to the given URL. Injectable for tests.
type dialFunc func(ctx context.Context, url string, header http.Header) (wire, error)

// wsWire adapts a websocket.Conn to the wire interface.
type wsWire struct {
	conn *websocket.Conn
}

func wsDial(ctx context.Context, url string, header http.Header) (wire, error) {
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: header,
	})
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(maxEnvelopeBytes)
	return &wsWire{conn: conn}, nil
}

func (w *wsWire) Read(ctx context.Context) ([]byte, error) {
	_, data, err := w.conn.Read(ctx)
	return data, err
}

func (w *wsWire) Write(ctx context.Context, data []byte) error {
	return w.conn.Write(ctx, websocket.MessageText, data)
}

func (w *wsWire) Close(code websocket.StatusCode, reason string) error {
	return w.conn.Close(code, reason)
}
