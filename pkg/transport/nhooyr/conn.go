// Package nhooyr provides a transport.Dialer backed by nhooyr.io/websocket.
package nhooyr

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"nhooyr.io/websocket"

	"github.com/omochice/graceful-socket/pkg/transport"
)

// DefaultReadLimit is the maximum message size accepted by Read.
const DefaultReadLimit = 1 << 20

// Dialer dials WebSocket connections with nhooyr.io/websocket.
type Dialer struct {
	// HTTPHeader is sent with the opening handshake.
	HTTPHeader http.Header

	// HTTPClient is used for the opening handshake. Defaults to http.DefaultClient.
	HTTPClient *http.Client

	// ReadLimit overrides DefaultReadLimit when positive.
	ReadLimit int64
}

// Dial implements transport.Dialer.
func (d *Dialer) Dial(ctx context.Context, url string, protocols []string) (transport.Conn, error) {
	conn, resp, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPClient:   d.HTTPClient,
		HTTPHeader:   d.HTTPHeader,
		Subprotocols: protocols,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}

	limit := d.ReadLimit
	if limit <= 0 {
		limit = DefaultReadLimit
	}
	conn.SetReadLimit(limit)

	var extensions string
	if resp != nil {
		extensions = resp.Header.Get("Sec-WebSocket-Extensions")
	}
	return NewConn(conn, extensions), nil
}

// Conn adapts *websocket.Conn to transport.Conn.
type Conn struct {
	conn       *websocket.Conn
	extensions string
}

// NewConn wraps an established websocket.Conn.
func NewConn(conn *websocket.Conn, extensions string) *Conn {
	return &Conn{conn: conn, extensions: extensions}
}

// Read implements transport.Conn.
func (c *Conn) Read(ctx context.Context) (transport.MessageType, []byte, error) {
	typ, data, err := c.conn.Read(ctx)
	if err != nil {
		return 0, nil, convertError(err)
	}
	return transport.MessageType(typ), data, nil
}

// Write implements transport.Conn.
func (c *Conn) Write(ctx context.Context, typ transport.MessageType, data []byte) error {
	var mt websocket.MessageType
	switch typ {
	case transport.MessageText:
		mt = websocket.MessageText
	case transport.MessageBinary:
		mt = websocket.MessageBinary
	default:
		return transport.ErrUnsupportedMessageType
	}
	if err := c.conn.Write(ctx, mt, data); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// Close implements transport.Conn.
func (c *Conn) Close(code transport.StatusCode, reason string) error {
	return c.conn.Close(websocket.StatusCode(code), reason)
}

// Subprotocol implements transport.Conn.
func (c *Conn) Subprotocol() string {
	return c.conn.Subprotocol()
}

// Extensions implements transport.Conn.
func (c *Conn) Extensions() string {
	return c.extensions
}

func convertError(err error) error {
	var ce websocket.CloseError
	if errors.As(err, &ce) {
		return &transport.CloseError{Code: transport.StatusCode(ce.Code), Reason: ce.Reason}
	}
	return fmt.Errorf("failed to read message: %w", err)
}

// Compile-time interface satisfaction checks.
var (
	_ transport.Dialer = (*Dialer)(nil)
	_ transport.Conn   = (*Conn)(nil)
)
