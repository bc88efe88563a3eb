package graceful

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/omochice/graceful-socket/pkg/transport"
)

// EventType names a supervisor event.
type EventType string

const (
	// EventConnected fires every time a session reaches the open state.
	EventConnected EventType = "connected"

	// EventDisconnected fires once per lost session that had been open.
	EventDisconnected EventType = "disconnected"

	// EventKilled fires once, when the supervisor is closed.
	EventKilled EventType = "killed"

	// EventMessage carries an application message from the peer.
	EventMessage EventType = "message"
)

// Event is delivered to listeners and subscribers.
type Event struct {
	Type      EventType
	Time      time.Time
	SessionID string

	// Set for EventMessage.
	MessageType transport.MessageType
	Data        []byte

	// Set for EventDisconnected and EventKilled.
	Code   transport.StatusCode
	Reason string
	Err    error
}

// Text returns the message payload as a string.
func (e Event) Text() string {
	return string(e.Data)
}

// Handler handles an event.
type Handler func(Event)

// ListenerID identifies a registered listener for removal.
type ListenerID uint64

// ListenerOption modifies a listener registration.
type ListenerOption func(*listener)

// Once removes the listener after its first invocation.
func Once() ListenerOption {
	return func(l *listener) { l.once = true }
}

type listener struct {
	id   ListenerID
	typ  EventType
	fn   Handler
	once bool
}

type subscriber struct {
	types map[EventType]bool
	ch    chan Event
}

func (s *subscriber) wants(typ EventType) bool {
	return len(s.types) == 0 || s.types[typ]
}

const subscriberBuffer = 64

// dispatcher delivers events in publish order on its own goroutine.
// Listeners are owned by the supervisor, not by a session.
type dispatcher struct {
	log *zap.Logger

	mu        sync.Mutex
	nextID    ListenerID
	listeners []*listener
	subs      map[*subscriber]struct{}
	queue     []Event
	closing   bool

	wake chan struct{}
	done chan struct{}
}

func newDispatcher(log *zap.Logger) *dispatcher {
	return &dispatcher{
		log:  log,
		subs: make(map[*subscriber]struct{}),
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

func (d *dispatcher) add(typ EventType, fn Handler, opts ...ListenerOption) ListenerID {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextID++
	l := &listener{id: d.nextID, typ: typ, fn: fn}
	for _, opt := range opts {
		opt(l)
	}
	d.listeners = append(d.listeners, l)
	return l.id
}

func (d *dispatcher) remove(id ListenerID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i, l := range d.listeners {
		if l.id == id {
			d.listeners = append(d.listeners[:i], d.listeners[i+1:]...)
			return true
		}
	}
	return false
}

func (d *dispatcher) subscribe(types []EventType) (<-chan Event, func()) {
	s := &subscriber{ch: make(chan Event, subscriberBuffer)}
	if len(types) > 0 {
		s.types = make(map[EventType]bool, len(types))
		for _, t := range types {
			s.types[t] = true
		}
	}

	d.mu.Lock()
	if d.closing && len(d.queue) == 0 {
		d.mu.Unlock()
		close(s.ch)
		return s.ch, func() {}
	}
	d.subs[s] = struct{}{}
	d.mu.Unlock()

	return s.ch, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if _, ok := d.subs[s]; ok {
			delete(d.subs, s)
			close(s.ch)
		}
	}
}

// publish enqueues e. Events published after close are dropped.
func (d *dispatcher) publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	d.mu.Lock()
	if d.closing {
		d.mu.Unlock()
		return
	}
	d.queue = append(d.queue, e)
	d.mu.Unlock()

	d.signal()
}

// close lets run drain the queue and exit.
func (d *dispatcher) close() {
	d.mu.Lock()
	d.closing = true
	d.mu.Unlock()

	d.signal()
}

func (d *dispatcher) signal() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *dispatcher) run() {
	defer close(d.done)

	for {
		d.mu.Lock()
		for len(d.queue) == 0 && !d.closing {
			d.mu.Unlock()
			<-d.wake
			d.mu.Lock()
		}
		if len(d.queue) == 0 {
			for s := range d.subs {
				delete(d.subs, s)
				close(s.ch)
			}
			d.mu.Unlock()
			return
		}

		e := d.queue[0]
		d.queue[0] = Event{}
		d.queue = d.queue[1:]
		targets := d.take(e.Type)
		d.mu.Unlock()

		for _, l := range targets {
			d.call(l, e)
		}
		d.fanout(e)
	}
}

// take returns the listeners for typ and unregisters the once-only ones.
// Must be called with d.mu held.
func (d *dispatcher) take(typ EventType) []*listener {
	var targets []*listener
	kept := d.listeners[:0]
	for _, l := range d.listeners {
		if l.typ == typ {
			targets = append(targets, l)
			if l.once {
				continue
			}
		}
		kept = append(kept, l)
	}
	for i := len(kept); i < len(d.listeners); i++ {
		d.listeners[i] = nil
	}
	d.listeners = kept
	return targets
}

func (d *dispatcher) fanout(e Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for s := range d.subs {
		if !s.wants(e.Type) {
			continue
		}
		select {
		case s.ch <- e:
		default:
			d.log.Warn("subscriber too slow, dropping event", zap.String("event", string(e.Type)))
		}
	}
}

func (d *dispatcher) call(l *listener, e Event) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("event listener panicked",
				zap.String("event", string(e.Type)),
				zap.Uint64("listener", uint64(l.id)),
				zap.Any("panic", r))
		}
	}()
	l.fn(e)
}
