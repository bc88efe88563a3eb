// Package gorilla provides a transport.Dialer backed by github.com/gorilla/websocket.
package gorilla

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/omochice/graceful-socket/pkg/transport"
)

// closeGracePeriod bounds how long Close waits to hand the close frame to the peer.
const closeGracePeriod = time.Second

// Dialer dials WebSocket connections with gorilla/websocket.
type Dialer struct {
	// HTTPHeader is sent with the opening handshake.
	HTTPHeader http.Header

	// HandshakeTimeout bounds the opening handshake in addition to the dial context.
	HandshakeTimeout time.Duration

	// EnableCompression negotiates permessage-deflate.
	EnableCompression bool
}

// Dial implements transport.Dialer.
func (d *Dialer) Dial(ctx context.Context, url string, protocols []string) (transport.Conn, error) {
	dialer := websocket.Dialer{
		Proxy:             http.ProxyFromEnvironment,
		HandshakeTimeout:  d.HandshakeTimeout,
		Subprotocols:      protocols,
		EnableCompression: d.EnableCompression,
	}

	conn, resp, err := dialer.DialContext(ctx, url, d.HTTPHeader)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}

	var extensions string
	if resp != nil {
		extensions = resp.Header.Get("Sec-WebSocket-Extensions")
	}
	return NewConn(conn, extensions), nil
}

// Conn adapts *websocket.Conn to transport.Conn.
// Read deadlines and write deadlines follow the deadline of the passed context;
// cancellation without a deadline is only observed through Close.
type Conn struct {
	conn       *websocket.Conn
	extensions string

	closeOnce sync.Once
	closeErr  error
}

// NewConn wraps an established websocket.Conn.
func NewConn(conn *websocket.Conn, extensions string) *Conn {
	return &Conn{conn: conn, extensions: extensions}
}

// Read implements transport.Conn.
func (c *Conn) Read(ctx context.Context) (transport.MessageType, []byte, error) {
	if deadline, ok := ctx.Deadline(); ok {
		if err := c.conn.SetReadDeadline(deadline); err != nil {
			return 0, nil, err
		}
	}

	messageType, data, err := c.conn.ReadMessage()
	if err != nil {
		var ce *websocket.CloseError
		if errors.As(err, &ce) {
			return 0, nil, &transport.CloseError{Code: transport.StatusCode(ce.Code), Reason: ce.Text}
		}
		return 0, nil, fmt.Errorf("failed to read message: %w", err)
	}

	switch messageType {
	case websocket.TextMessage:
		return transport.MessageText, data, nil
	default:
		return transport.MessageBinary, data, nil
	}
}

// Write implements transport.Conn.
func (c *Conn) Write(ctx context.Context, typ transport.MessageType, data []byte) error {
	var messageType int
	switch typ {
	case transport.MessageText:
		messageType = websocket.TextMessage
	case transport.MessageBinary:
		messageType = websocket.BinaryMessage
	default:
		return transport.ErrUnsupportedMessageType
	}

	deadline, _ := ctx.Deadline()
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	if err := c.conn.WriteMessage(messageType, data); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// Close implements transport.Conn. Only the first call has an effect.
func (c *Conn) Close(code transport.StatusCode, reason string) error {
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(int(code), reason)
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGracePeriod))
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// Subprotocol implements transport.Conn.
func (c *Conn) Subprotocol() string {
	return c.conn.Subprotocol()
}

// Extensions implements transport.Conn.
func (c *Conn) Extensions() string {
	return c.extensions
}

// Compile-time interface satisfaction checks.
var (
	_ transport.Dialer = (*Dialer)(nil)
	_ transport.Conn   = (*Conn)(nil)
)
