package graceful

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/omochice/graceful-socket/pkg/reachability"
	"github.com/omochice/graceful-socket/pkg/transport"
)

// BinaryType is the only binary representation delivered by the supervisor:
// message payloads are always byte slices.
const BinaryType = "arraybuffer"

type commandOp int

const (
	opStart commandOp = iota
	opClose
)

type command struct {
	op     commandOp
	code   transport.StatusCode
	reason string
	reply  chan error
}

// Supervisor maintains one logical WebSocket connection across any number
// of transport sessions.
type Supervisor struct {
	cfg              Config
	dialer           transport.Dialer
	reach            reachability.Checker
	log              *zap.Logger
	handshakeTimeout time.Duration
	outboundBuffer   int
	probe            []byte
	answer           []byte

	pingInterval  atomic.Int64
	pingTimeout   atomic.Int64
	retryInterval atomic.Int64

	commands   chan command
	events     chan sessionEvent
	stopped    chan struct{}
	dispatcher *dispatcher

	session atomic.Pointer[session]
	state   atomic.Int32

	// Owned by the loop goroutine.
	current     *session
	probeTicker *time.Ticker
	ackTimer    *time.Timer
	pollTicker  *time.Ticker
	closed      bool
}

// New creates a supervisor in the IDLE state. Call Start to connect.
func New(cfg Config, opts ...Option) (*Supervisor, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	s := &Supervisor{
		cfg:              cfg,
		dialer:           o.dialer,
		reach:            o.reach,
		log:              o.log.With(zap.String("url", cfg.WS.URL)),
		handshakeTimeout: o.handshakeTimeout,
		outboundBuffer:   o.outboundBuffer,
		probe:            []byte(cfg.Com.Message),
		answer:           []byte(cfg.Com.Answer),
		commands:         make(chan command),
		events:           make(chan sessionEvent),
		stopped:          make(chan struct{}),
	}
	s.pingInterval.Store(int64(cfg.PingInterval))
	s.pingTimeout.Store(int64(cfg.PingTimeout))
	s.retryInterval.Store(int64(cfg.RetryInterval))
	s.state.Store(int32(StateIdle))

	s.dispatcher = newDispatcher(s.log)
	for _, l := range o.listeners {
		s.dispatcher.add(l.typ, l.fn, l.opts...)
	}

	go s.dispatcher.run()
	go s.loop()

	return s, nil
}

// Dial creates a supervisor with default settings and starts it.
func Dial(url string, protocols ...string) (*Supervisor, error) {
	s, err := New(Config{WS: WSConfig{URL: url, Protocols: protocols}})
	if err != nil {
		return nil, err
	}
	if err := s.Start(); err != nil {
		return nil, err
	}
	return s, nil
}

// Start opens the first session. It does not wait for the connection.
func (s *Supervisor) Start() error {
	return s.do(command{op: opStart})
}

// Close closes the supervisor with a normal closure status.
func (s *Supervisor) Close() error {
	return s.CloseWithStatus(transport.StatusNormalClosure, "")
}

// CloseWithStatus stops all timers, closes the current session with code
// and reason, and emits the killed event. Every later call returns
// ErrAlreadyClosed.
func (s *Supervisor) CloseWithStatus(code transport.StatusCode, reason string) error {
	return s.do(command{op: opClose, code: code, reason: reason})
}

func (s *Supervisor) do(cmd command) error {
	cmd.reply = make(chan error, 1)
	select {
	case s.commands <- cmd:
		return <-cmd.reply
	case <-s.stopped:
		return ErrAlreadyClosed
	}
}

// Send queues a message on the current session. It fails with
// ErrNotConnected unless the session is open.
func (s *Supervisor) Send(ctx context.Context, typ transport.MessageType, data []byte) error {
	sess := s.session.Load()
	if sess == nil {
		return ErrNotConnected
	}
	return sess.send(ctx, typ, data)
}

// SendText sends a text message.
func (s *Supervisor) SendText(ctx context.Context, text string) error {
	return s.Send(ctx, transport.MessageText, []byte(text))
}

// AddEventListener registers fn for events of type typ. Listeners stay
// registered across reconnections.
func (s *Supervisor) AddEventListener(typ EventType, fn Handler, opts ...ListenerOption) ListenerID {
	return s.dispatcher.add(typ, fn, opts...)
}

// RemoveEventListener unregisters a listener. It reports whether the listener was found.
func (s *Supervisor) RemoveEventListener(id ListenerID) bool {
	return s.dispatcher.remove(id)
}

// Subscribe returns a channel receiving events of the given types, or of
// every type if none are given. The channel is closed after the killed
// event or when the returned function is called. Events are dropped if
// the channel is full.
func (s *Supervisor) Subscribe(types ...EventType) (<-chan Event, func()) {
	return s.dispatcher.subscribe(types)
}

// Done is closed once the killed event has been delivered.
func (s *Supervisor) Done() <-chan struct{} {
	return s.dispatcher.done
}

// State returns the reconnection controller state.
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

// Connected reports whether the current session is open.
func (s *Supervisor) Connected() bool {
	return s.ReadyState() == ReadyStateOpen
}

// ReadyState returns the ready state of the current session, or
// ReadyStateNone if there is none.
func (s *Supervisor) ReadyState() ReadyState {
	if sess := s.session.Load(); sess != nil {
		return sess.readyState()
	}
	return ReadyStateNone
}

// URL returns the URL of the current session, or "".
func (s *Supervisor) URL() string {
	if sess := s.session.Load(); sess != nil {
		return sess.url
	}
	return ""
}

// Protocol returns the sub-protocol negotiated by the current session, or "".
func (s *Supervisor) Protocol() string {
	if sess := s.session.Load(); sess != nil {
		return sess.subprotocol()
	}
	return ""
}

// Extensions returns the extensions negotiated by the current session, or "".
func (s *Supervisor) Extensions() string {
	if sess := s.session.Load(); sess != nil {
		return sess.extensions()
	}
	return ""
}

// BufferedAmount returns the number of bytes queued on the current session
// but not yet written.
func (s *Supervisor) BufferedAmount() int64 {
	if sess := s.session.Load(); sess != nil {
		return sess.buffered.Load()
	}
	return 0
}

// BinaryType returns the binary representation of the current session, or "".
func (s *Supervisor) BinaryType() string {
	if s.session.Load() != nil {
		return BinaryType
	}
	return ""
}

// SessionID returns the identifier of the current session, or "".
func (s *Supervisor) SessionID() string {
	if sess := s.session.Load(); sess != nil {
		return sess.id
	}
	return ""
}

func (s *Supervisor) PingInterval() time.Duration {
	return time.Duration(s.pingInterval.Load())
}

// SetPingInterval takes effect when the next heartbeat starts.
// Non-positive values restore the default.
func (s *Supervisor) SetPingInterval(d time.Duration) {
	if d <= 0 {
		d = DefaultPingInterval
	}
	s.pingInterval.Store(int64(d))
}

func (s *Supervisor) PingTimeout() time.Duration {
	return time.Duration(s.pingTimeout.Load())
}

// SetPingTimeout takes effect for the next probe.
// Non-positive values restore the default.
func (s *Supervisor) SetPingTimeout(d time.Duration) {
	if d <= 0 {
		d = DefaultPingTimeout
	}
	s.pingTimeout.Store(int64(d))
}

func (s *Supervisor) RetryInterval() time.Duration {
	return time.Duration(s.retryInterval.Load())
}

// SetRetryInterval takes effect the next time the network is awaited.
// Non-positive values restore the default.
func (s *Supervisor) SetRetryInterval(d time.Duration) {
	if d <= 0 {
		d = DefaultRetryInterval
	}
	s.retryInterval.Store(int64(d))
}
