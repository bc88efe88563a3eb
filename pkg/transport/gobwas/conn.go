// Package gobwas provides a transport.Dialer backed by github.com/gobwas/ws.
//
// gobwas/ws works on a raw net.Conn, so this adapter handles control frames
// itself and serialises every outgoing frame with a mutex.
package gobwas

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/omochice/graceful-socket/pkg/transport"
)

const closeGracePeriod = time.Second

// Dialer dials WebSocket connections with gobwas/ws.
type Dialer struct {
	// HTTPHeader is sent with the opening handshake.
	HTTPHeader http.Header

	// Timeout bounds the TCP dial and the handshake.
	Timeout time.Duration
}

// Dial implements transport.Dialer.
func (d *Dialer) Dial(ctx context.Context, url string, protocols []string) (transport.Conn, error) {
	dialer := ws.Dialer{
		Protocols: protocols,
		Timeout:   d.Timeout,
	}
	if d.HTTPHeader != nil {
		dialer.Header = ws.HandshakeHeaderHTTP(d.HTTPHeader)
	}

	conn, br, hs, err := dialer.Dial(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}

	// br holds bytes the server sent right after the handshake.
	var src io.Reader = conn
	if br != nil {
		src = br
	}

	names := make([]string, 0, len(hs.Extensions))
	for _, opt := range hs.Extensions {
		names = append(names, string(opt.Name))
	}
	return NewConn(conn, src, hs.Protocol, strings.Join(names, ", ")), nil
}

// Conn adapts a client-side net.Conn speaking WebSocket to transport.Conn.
type Conn struct {
	conn       net.Conn
	reader     *wsutil.Reader
	protocol   string
	extensions string

	mu sync.Mutex // serialises frame writes

	closeOnce sync.Once
	closeErr  error
}

// NewConn wraps conn after a successful client handshake.
// src is the reader to consume frames from (conn itself or a buffered reader over it).
func NewConn(conn net.Conn, src io.Reader, protocol, extensions string) *Conn {
	c := &Conn{
		conn:       conn,
		protocol:   protocol,
		extensions: extensions,
	}
	c.reader = &wsutil.Reader{
		Source:         src,
		State:          ws.StateClientSide,
		CheckUTF8:      true,
		OnIntermediate: c.handleControl,
	}
	return c
}

// Read implements transport.Conn.
func (c *Conn) Read(ctx context.Context) (transport.MessageType, []byte, error) {
	if deadline, ok := ctx.Deadline(); ok {
		if err := c.conn.SetReadDeadline(deadline); err != nil {
			return 0, nil, err
		}
	}

	for {
		hdr, err := c.reader.NextFrame()
		if err != nil {
			return 0, nil, convertError(err)
		}

		if hdr.OpCode.IsControl() {
			if err := c.handleControl(hdr, c.reader); err != nil {
				return 0, nil, convertError(err)
			}
			continue
		}

		if hdr.OpCode&(ws.OpText|ws.OpBinary) == 0 {
			if err := c.reader.Discard(); err != nil {
				return 0, nil, convertError(err)
			}
			continue
		}

		data, err := io.ReadAll(c.reader)
		if err != nil {
			return 0, nil, convertError(err)
		}
		if hdr.OpCode == ws.OpText {
			return transport.MessageText, data, nil
		}
		return transport.MessageBinary, data, nil
	}
}

// Write implements transport.Conn.
func (c *Conn) Write(ctx context.Context, typ transport.MessageType, data []byte) error {
	var op ws.OpCode
	switch typ {
	case transport.MessageText:
		op = ws.OpText
	case transport.MessageBinary:
		op = ws.OpBinary
	default:
		return transport.ErrUnsupportedMessageType
	}

	deadline, _ := ctx.Deadline()
	if err := c.writeFrame(ws.NewFrame(op, true, data), deadline); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// Close implements transport.Conn. Only the first call has an effect.
func (c *Conn) Close(code transport.StatusCode, reason string) error {
	c.closeOnce.Do(func() {
		body := ws.NewCloseFrameBody(ws.StatusCode(code), reason)
		_ = c.writeFrame(ws.NewCloseFrame(body), time.Now().Add(closeGracePeriod))
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// Subprotocol implements transport.Conn.
func (c *Conn) Subprotocol() string {
	return c.protocol
}

// Extensions implements transport.Conn.
func (c *Conn) Extensions() string {
	return c.extensions
}

// handleControl answers pings and close frames. Server frames are never masked.
func (c *Conn) handleControl(h ws.Header, r io.Reader) error {
	payload := make([]byte, h.Length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return err
	}

	switch h.OpCode {
	case ws.OpPing:
		return c.writeFrame(ws.NewPongFrame(payload), time.Time{})
	case ws.OpClose:
		code, reason := ws.ParseCloseFrameData(payload)
		var body []byte
		if code != 0 {
			body = ws.NewCloseFrameBody(code, "")
		}
		_ = c.writeFrame(ws.NewCloseFrame(body), time.Now().Add(closeGracePeriod))
		return wsutil.ClosedError{Code: code, Reason: reason}
	default:
		return nil
	}
}

// writeFrame masks f and writes it in a single call so concurrent writers never interleave.
func (c *Conn) writeFrame(f ws.Frame, deadline time.Time) error {
	bts, err := ws.CompileFrame(ws.MaskFrame(f))
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	_, err = c.conn.Write(bts)
	return err
}

func convertError(err error) error {
	var ce wsutil.ClosedError
	if errors.As(err, &ce) {
		code := transport.StatusCode(ce.Code)
		if code == 0 {
			code = transport.StatusNoStatusRcvd
		}
		return &transport.CloseError{Code: code, Reason: ce.Reason}
	}
	return fmt.Errorf("failed to read message: %w", err)
}

// Compile-time interface satisfaction checks.
var (
	_ transport.Dialer = (*Dialer)(nil)
	_ transport.Conn   = (*Conn)(nil)
)
