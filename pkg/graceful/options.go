package graceful

import (
	"time"

	"go.uber.org/zap"

	"github.com/omochice/graceful-socket/pkg/reachability"
	"github.com/omochice/graceful-socket/pkg/transport"
	"github.com/omochice/graceful-socket/pkg/transport/nhooyr"
)

const (
	// DefaultHandshakeTimeout bounds a single dial attempt.
	DefaultHandshakeTimeout = 10 * time.Second

	// DefaultOutboundBuffer is the number of messages a session queues before Send blocks.
	DefaultOutboundBuffer = 64
)

type options struct {
	dialer           transport.Dialer
	reach            reachability.Checker
	log              *zap.Logger
	handshakeTimeout time.Duration
	outboundBuffer   int
	listeners        []pendingListener
}

type pendingListener struct {
	typ  EventType
	fn   Handler
	opts []ListenerOption
}

func defaultOptions() options {
	return options{
		dialer:           &nhooyr.Dialer{},
		reach:            reachability.Always,
		log:              zap.NewNop(),
		handshakeTimeout: DefaultHandshakeTimeout,
		outboundBuffer:   DefaultOutboundBuffer,
	}
}

// Option configures a Supervisor.
type Option func(*options)

// WithDialer selects the WebSocket library used for every session.
// The default dials with nhooyr.io/websocket.
func WithDialer(d transport.Dialer) Option {
	return func(o *options) {
		if d != nil {
			o.dialer = d
		}
	}
}

// WithReachability sets the predicate polled while waiting for the network.
// The default always reports the network as reachable.
func WithReachability(c reachability.Checker) Option {
	return func(o *options) {
		if c != nil {
			o.reach = c
		}
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

// WithHandshakeTimeout bounds every dial attempt.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.handshakeTimeout = d
		}
	}
}

// WithOutboundBuffer sets how many messages may be queued per session.
func WithOutboundBuffer(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.outboundBuffer = n
		}
	}
}

// WithEventListener registers a listener before the supervisor starts,
// so that it cannot miss the first connected event.
func WithEventListener(typ EventType, fn Handler, opts ...ListenerOption) Option {
	return func(o *options) {
		o.listeners = append(o.listeners, pendingListener{typ: typ, fn: fn, opts: opts})
	}
}
