package graceful

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/omochice/graceful-socket/pkg/transport"
)

type frame struct {
	typ  transport.MessageType
	data []byte
}

// fakeConn is an in-memory transport.Conn. The test plays the peer by
// pushing frames into incoming and reading what the supervisor wrote.
type fakeConn struct {
	incoming chan frame
	written  chan frame

	answer      func(data []byte) []byte
	subprotocol string

	closeOnce   sync.Once
	closed      chan struct{}
	mu          sync.Mutex
	closeCode   transport.StatusCode
	closeReason string
	peerClosed  bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		incoming: make(chan frame, 64),
		written:  make(chan frame, 256),
		closed:   make(chan struct{}),
	}
}

func (c *fakeConn) Read(ctx context.Context) (transport.MessageType, []byte, error) {
	select {
	case f := <-c.incoming:
		return f.typ, f.data, nil
	case <-c.closed:
		c.mu.Lock()
		defer c.mu.Unlock()
		return 0, nil, &transport.CloseError{Code: c.closeCode, Reason: c.closeReason}
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	}
}

func (c *fakeConn) Write(ctx context.Context, typ transport.MessageType, data []byte) error {
	select {
	case <-c.closed:
		return errors.New("write on closed connection")
	default:
	}

	select {
	case c.written <- frame{typ: typ, data: append([]byte(nil), data...)}:
	default:
	}
	if c.answer != nil {
		if reply := c.answer(data); reply != nil {
			c.incoming <- frame{typ: transport.MessageText, data: reply}
		}
	}
	return nil
}

func (c *fakeConn) Close(code transport.StatusCode, reason string) error {
	c.shut(code, reason, false)
	return nil
}

// peerClose simulates the server closing the connection.
func (c *fakeConn) peerClose(code transport.StatusCode, reason string) {
	c.shut(code, reason, true)
}

func (c *fakeConn) shut(code transport.StatusCode, reason string, byPeer bool) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closeCode, c.closeReason, c.peerClosed = code, reason, byPeer
		c.mu.Unlock()
		close(c.closed)
	})
}

func (c *fakeConn) closeStatus() (transport.StatusCode, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCode, c.closeReason
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeConn) Subprotocol() string { return c.subprotocol }
func (c *fakeConn) Extensions() string  { return "" }

// fakeDialer hands out fakeConns and records every attempt.
type fakeDialer struct {
	dials  atomic.Int32
	fail   atomic.Bool
	answer func(data []byte) []byte
	conns  chan *fakeConn
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{conns: make(chan *fakeConn, 16)}
}

// answering returns a dialer whose connections acknowledge every probe.
func answering(probe, answer string) *fakeDialer {
	d := newFakeDialer()
	d.answer = func(data []byte) []byte {
		if bytes.Equal(data, []byte(probe)) {
			return []byte(answer)
		}
		return nil
	}
	return d
}

func (d *fakeDialer) Dial(ctx context.Context, url string, protocols []string) (transport.Conn, error) {
	d.dials.Add(1)
	if d.fail.Load() {
		return nil, errors.New("connection refused")
	}
	c := newFakeConn()
	c.answer = d.answer
	if len(protocols) > 0 {
		c.subprotocol = protocols[0]
	}
	d.conns <- c
	return c, nil
}

// wrapDialer dials with d and hands each fakeConn to wrap.
func wrapDialer(d *fakeDialer, wrap func(*fakeConn) transport.Conn) transport.Dialer {
	return transport.DialerFunc(func(ctx context.Context, url string, protocols []string) (transport.Conn, error) {
		c, err := d.Dial(ctx, url, protocols)
		if err != nil {
			return nil, err
		}
		return wrap(c.(*fakeConn)), nil
	})
}

// lingeringConn ignores Close, so its reader keeps delivering frames
// after the supervisor has let the session go.
type lingeringConn struct {
	*fakeConn
}

func (c lingeringConn) Close(transport.StatusCode, string) error { return nil }

// stallingConn blocks every write until release is closed.
type stallingConn struct {
	*fakeConn
	release chan struct{}
}

func (c stallingConn) Write(ctx context.Context, typ transport.MessageType, data []byte) error {
	select {
	case <-c.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	return c.fakeConn.Write(ctx, typ, data)
}

// recorder collects events in delivery order.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) handle(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) count(typ EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == typ {
			n++
		}
	}
	return n
}

func (r *recorder) of(typ EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

// listenAll returns options registering r for every event type.
func (r *recorder) listenAll() []Option {
	return []Option{
		WithEventListener(EventConnected, r.handle),
		WithEventListener(EventDisconnected, r.handle),
		WithEventListener(EventKilled, r.handle),
		WithEventListener(EventMessage, r.handle),
	}
}
