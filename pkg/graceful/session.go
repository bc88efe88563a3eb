package graceful

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/omochice/graceful-socket/pkg/transport"
)

const writeTimeout = 10 * time.Second

type sessionEventKind int

const (
	sessionOpened sessionEventKind = iota
	sessionMessage
	sessionClosed
)

// sessionEvent is posted by session goroutines to the supervisor loop.
// sess identifies the producer so that signals from replaced sessions can be dropped.
type sessionEvent struct {
	kind    sessionEventKind
	sess    *session
	msgType transport.MessageType
	data    []byte
	err     error
}

type outboundMessage struct {
	typ  transport.MessageType
	data []byte
}

// session is one transport connection attempt and, if it opens, its lifetime.
// It is never reused: reconnection creates a new session.
type session struct {
	id        string
	url       string
	protocols []string
	log       *zap.Logger

	state    atomic.Int32
	buffered atomic.Int64
	outbound chan outboundMessage

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	conn        transport.Conn
	terminated  bool
	closeCode   transport.StatusCode
	closeReason string
}

func newSession(url string, protocols []string, buffer int, log *zap.Logger) *session {
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.NewString()
	ss := &session{
		id:        id,
		url:       url,
		protocols: protocols,
		log:       log.With(zap.String("session", id)),
		outbound:  make(chan outboundMessage, buffer),
		ctx:       ctx,
		cancel:    cancel,
	}
	ss.state.Store(int32(ReadyStateConnecting))
	return ss
}

func (ss *session) readyState() ReadyState {
	return ReadyState(ss.state.Load())
}

// markOpen is called by the supervisor loop once it has accepted the opened signal.
func (ss *session) markOpen() {
	ss.state.CompareAndSwap(int32(ReadyStateConnecting), int32(ReadyStateOpen))
}

func (ss *session) subprotocol() string {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	if ss.conn == nil {
		return ""
	}
	return ss.conn.Subprotocol()
}

func (ss *session) extensions() string {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	if ss.conn == nil {
		return ""
	}
	return ss.conn.Extensions()
}

// open dials in the background. Every transport signal is handed to post,
// which reports false once the supervisor no longer accepts signals.
func (ss *session) open(dialer transport.Dialer, timeout time.Duration, post func(sessionEvent) bool) {
	go ss.run(dialer, timeout, post)
}

func (ss *session) run(dialer transport.Dialer, timeout time.Duration, post func(sessionEvent) bool) {
	dctx, cancel := context.WithTimeout(ss.ctx, timeout)
	conn, err := dialer.Dial(dctx, ss.url, ss.protocols)
	cancel()
	if err != nil {
		ss.state.Store(int32(ReadyStateClosed))
		ss.cancel()
		post(sessionEvent{kind: sessionClosed, sess: ss, err: err})
		return
	}

	ss.mu.Lock()
	if ss.terminated {
		code, reason := ss.closeCode, ss.closeReason
		ss.mu.Unlock()
		if err := conn.Close(code, reason); err != nil {
			ss.log.Debug("failed to close late connection", zap.Error(err))
		}
		ss.state.Store(int32(ReadyStateClosed))
		ss.cancel()
		post(sessionEvent{kind: sessionClosed, sess: ss})
		return
	}
	ss.conn = conn
	ss.mu.Unlock()

	go ss.writeLoop(conn)

	if !post(sessionEvent{kind: sessionOpened, sess: ss}) {
		ss.terminate(transport.StatusGoingAway, "")
	}

	for {
		typ, data, err := conn.Read(context.Background())
		if err != nil {
			ss.state.Store(int32(ReadyStateClosed))
			ss.cancel()
			// Release the underlying connection; the close handshake has already happened or failed.
			ss.terminate(transport.StatusNormalClosure, "")
			post(sessionEvent{kind: sessionClosed, sess: ss, err: err})
			return
		}
		if !post(sessionEvent{kind: sessionMessage, sess: ss, msgType: typ, data: data}) {
			ss.terminate(transport.StatusGoingAway, "")
		}
	}
}

func (ss *session) writeLoop(conn transport.Conn) {
	for {
		select {
		case <-ss.ctx.Done():
			return
		case msg := <-ss.outbound:
			ctx, cancel := context.WithTimeout(ss.ctx, writeTimeout)
			err := conn.Write(ctx, msg.typ, msg.data)
			cancel()
			ss.buffered.Add(-int64(len(msg.data)))
			if err != nil {
				ss.log.Debug("failed to write message", zap.Error(err))
				ss.terminate(transport.StatusInternalError, "write failed")
				return
			}
		}
	}
}

// send queues data for the writer. The caller may reuse data afterwards.
func (ss *session) send(ctx context.Context, typ transport.MessageType, data []byte) error {
	if ss.readyState() != ReadyStateOpen {
		return ErrNotConnected
	}

	msg := outboundMessage{typ: typ, data: append([]byte(nil), data...)}
	n := int64(len(msg.data))
	ss.buffered.Add(n)

	select {
	case ss.outbound <- msg:
		return nil
	case <-ss.ctx.Done():
		ss.buffered.Add(-n)
		return ErrNotConnected
	case <-ctx.Done():
		ss.buffered.Add(-n)
		return ctx.Err()
	}
}

// trySend queues data without blocking.
func (ss *session) trySend(typ transport.MessageType, data []byte) bool {
	if ss.readyState() != ReadyStateOpen {
		return false
	}

	n := int64(len(data))
	ss.buffered.Add(n)
	select {
	case ss.outbound <- outboundMessage{typ: typ, data: data}:
		return true
	default:
		ss.buffered.Add(-n)
		return false
	}
}

// terminate closes the session in the background. Only the first call has an effect.
func (ss *session) terminate(code transport.StatusCode, reason string) {
	ss.mu.Lock()
	if ss.terminated {
		ss.mu.Unlock()
		return
	}
	ss.terminated = true
	ss.closeCode, ss.closeReason = code, reason
	conn := ss.conn
	ss.mu.Unlock()

	if !ss.state.CompareAndSwap(int32(ReadyStateOpen), int32(ReadyStateClosing)) {
		ss.state.CompareAndSwap(int32(ReadyStateConnecting), int32(ReadyStateClosing))
	}

	if conn == nil {
		// Still dialing: abort the handshake.
		ss.cancel()
		return
	}
	go func() {
		if err := conn.Close(code, reason); err != nil {
			ss.log.Debug("failed to close connection", zap.Error(err))
		}
		ss.cancel()
	}()
}
