package graceful

import (
	"bytes"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/omochice/graceful-socket/pkg/transport"
)

// loop owns every state transition. It exits after Close has been handled.
func (s *Supervisor) loop() {
	defer close(s.stopped)

	for !s.closed {
		select {
		case cmd := <-s.commands:
			cmd.reply <- s.handleCommand(cmd)
		case ev := <-s.events:
			s.handleSessionEvent(ev)
		case <-tickerC(s.probeTicker):
			s.sendProbe()
		case <-timerC(s.ackTimer):
			s.ackTimer = nil
			s.heartbeatExpired()
		case <-tickerC(s.pollTicker):
			s.pollNetwork()
		}
	}
}

// post hands a session signal to the loop. It reports false once the loop has exited.
func (s *Supervisor) post(ev sessionEvent) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.stopped:
		return false
	}
}

func (s *Supervisor) handleCommand(cmd command) error {
	switch cmd.op {
	case opStart:
		if s.State() != StateIdle {
			return ErrAlreadyStarted
		}
		s.connect()
		return nil
	case opClose:
		s.shutdown(cmd.code, cmd.reason)
		return nil
	default:
		return nil
	}
}

func (s *Supervisor) setState(st State) {
	prev := State(s.state.Swap(int32(st)))
	if prev != st {
		s.log.Debug("state changed", zap.Stringer("from", prev), zap.Stringer("to", st))
	}
}

func (s *Supervisor) connect() {
	sess := newSession(s.cfg.WS.URL, s.cfg.WS.Protocols, s.outboundBuffer, s.log)
	s.current = sess
	s.session.Store(sess)
	s.setState(StateConnecting)

	s.log.Debug("opening session", zap.String("session", sess.id))
	sess.open(s.dialer, s.handshakeTimeout, s.post)
}

func (s *Supervisor) handleSessionEvent(ev sessionEvent) {
	if ev.sess != s.current {
		s.log.Debug("dropping signal from replaced session", zap.String("session", ev.sess.id))
		return
	}

	switch ev.kind {
	case sessionOpened:
		s.opened(ev.sess)
	case sessionMessage:
		s.received(ev)
	case sessionClosed:
		s.lost(ev.sess, ev.err)
	}
}

func (s *Supervisor) opened(sess *session) {
	sess.markOpen()
	s.setState(StateMonitored)

	s.log.Info("connected", zap.String("session", sess.id), zap.String("protocol", sess.subprotocol()))
	s.dispatcher.publish(Event{Type: EventConnected, SessionID: sess.id})

	s.probeTicker = time.NewTicker(s.PingInterval())
}

func (s *Supervisor) received(ev sessionEvent) {
	if bytes.Equal(ev.data, s.answer) {
		if s.ackTimer != nil {
			s.ackTimer.Stop()
			s.ackTimer = nil
		}
		return
	}

	s.dispatcher.publish(Event{
		Type:        EventMessage,
		SessionID:   ev.sess.id,
		MessageType: ev.msgType,
		Data:        ev.data,
	})
}

func (s *Supervisor) sendProbe() {
	if !s.current.trySend(transport.MessageText, s.probe) {
		// The outbound queue is full, so the peer is still being written to.
		s.log.Warn("heartbeat probe skipped, outbound queue full", zap.String("session", s.current.id))
		return
	}
	// An unanswered earlier probe keeps its deadline.
	if s.ackTimer == nil {
		s.ackTimer = time.NewTimer(s.PingTimeout())
	}
}

func (s *Supervisor) heartbeatExpired() {
	sess := s.current
	s.log.Warn("heartbeat timeout", zap.String("session", sess.id), zap.Duration("timeout", s.PingTimeout()))
	sess.terminate(transport.StatusNormalClosure, "heartbeat timeout")
	s.lost(sess, ErrHeartbeatTimeout)
}

// lost handles the end of the current session, whatever the cause.
func (s *Supervisor) lost(sess *session, err error) {
	wasOpen := s.State() == StateMonitored

	s.stopHeartbeat()
	sess.terminate(transport.StatusNormalClosure, "")
	s.current = nil
	s.session.Store(nil)

	if wasOpen {
		s.setState(StateDisconnecting)

		ev := Event{Type: EventDisconnected, SessionID: sess.id, Code: transport.StatusAbnormalClosure, Err: err}
		var ce *transport.CloseError
		if errors.As(err, &ce) {
			ev.Code, ev.Reason = ce.Code, ce.Reason
		} else if errors.Is(err, ErrHeartbeatTimeout) {
			ev.Code, ev.Reason = transport.StatusNormalClosure, "heartbeat timeout"
		}

		s.log.Info("disconnected", zap.String("session", sess.id), zap.Int("code", int(ev.Code)), zap.Error(err))
		s.dispatcher.publish(ev)
	} else {
		s.log.Warn("connection attempt failed", zap.String("session", sess.id), zap.Error(err))
	}

	s.setState(StateWaitingForNetwork)
	s.pollTicker = time.NewTicker(s.RetryInterval())
}

func (s *Supervisor) pollNetwork() {
	if !s.reach.Reachable() {
		s.log.Debug("network unreachable, waiting")
		return
	}
	s.stopPolling()
	s.connect()
}

func (s *Supervisor) shutdown(code transport.StatusCode, reason string) {
	s.stopHeartbeat()
	s.stopPolling()

	sessionID := ""
	if s.current != nil {
		sessionID = s.current.id
		s.current.terminate(code, reason)
		s.current = nil
		s.session.Store(nil)
	}

	s.closed = true
	s.setState(StateClosed)

	s.log.Info("killed", zap.Int("code", int(code)), zap.String("reason", reason))
	s.dispatcher.publish(Event{Type: EventKilled, SessionID: sessionID, Code: code, Reason: reason})
	s.dispatcher.close()
}

func (s *Supervisor) stopHeartbeat() {
	if s.probeTicker != nil {
		s.probeTicker.Stop()
		s.probeTicker = nil
	}
	if s.ackTimer != nil {
		s.ackTimer.Stop()
		s.ackTimer = nil
	}
}

func (s *Supervisor) stopPolling() {
	if s.pollTicker != nil {
		s.pollTicker.Stop()
		s.pollTicker = nil
	}
}

func tickerC(t *time.Ticker) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

func timerC(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}
