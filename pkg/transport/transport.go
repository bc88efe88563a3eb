// Package transport defines the contract between the connection supervisor
// and a concrete WebSocket library.
//
// Adapters live in sub-packages (nhooyr, gorilla, gobwas) so that the
// supervisor never imports a WebSocket library directly.
package transport

import (
	"context"
	"errors"
	"fmt"
)

// MessageType is the frame type of a data message.
// Values match the opcodes of RFC 6455 and the constants of the adapted libraries.
type MessageType int

const (
	MessageText   MessageType = 1
	MessageBinary MessageType = 2
)

// String returns the string representation of MessageType
func (mt MessageType) String() string {
	switch mt {
	case MessageText:
		return "TEXT"
	case MessageBinary:
		return "BINARY"
	default:
		return "UNKNOWN"
	}
}

// StatusCode is a WebSocket close status code.
type StatusCode int

const (
	StatusNormalClosure   StatusCode = 1000
	StatusGoingAway       StatusCode = 1001
	StatusProtocolError   StatusCode = 1002
	StatusNoStatusRcvd    StatusCode = 1005
	StatusAbnormalClosure StatusCode = 1006
	StatusInternalError   StatusCode = 1011
)

// ErrUnsupportedMessageType is returned by Write for anything but text or binary.
var ErrUnsupportedMessageType = errors.New("unsupported message type")

// CloseError is returned by Conn.Read once the peer closed the connection
// with a close frame.
type CloseError struct {
	Code   StatusCode
	Reason string
}

func (e *CloseError) Error() string {
	return fmt.Sprintf("websocket closed: status = %d reason = %q", e.Code, e.Reason)
}

// CloseStatus extracts the close code from err.
// It returns -1 if err does not carry a close frame.
func CloseStatus(err error) StatusCode {
	var ce *CloseError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return -1
}

// Conn abstracts one established WebSocket connection.
// Read must only be called from a single goroutine, Write likewise;
// Close may be called concurrently with both.
type Conn interface {
	// Read blocks until a data message arrives.
	// Control frames are handled internally.
	Read(ctx context.Context) (MessageType, []byte, error)

	// Write sends a single data message.
	Write(ctx context.Context, typ MessageType, data []byte) error

	// Close performs the close handshake with the given status.
	Close(code StatusCode, reason string) error

	// Subprotocol returns the negotiated sub-protocol, or "".
	Subprotocol() string

	// Extensions returns the negotiated extensions header value, or "".
	Extensions() string
}

// Dialer opens new connections.
type Dialer interface {
	Dial(ctx context.Context, url string, protocols []string) (Conn, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, url string, protocols []string) (Conn, error)

// Dial implements Dialer.
func (f DialerFunc) Dial(ctx context.Context, url string, protocols []string) (Conn, error) {
	return f(ctx, url, protocols)
}
