package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/omochice/graceful-socket/pkg/graceful"
	"github.com/omochice/graceful-socket/pkg/protocol"
	"github.com/omochice/graceful-socket/pkg/transport"
)

// ErrNotConnected is returned when sending without an open connection.
var ErrNotConnected = errors.New("not connected to server")

// Chat is a chat client whose connection is kept alive by a graceful.Supervisor.
// After a reconnection it announces itself again if it had joined.
type Chat struct {
	sup      *graceful.Supervisor
	username string
	log      *zap.Logger

	messages  chan protocol.Message
	closeOnce sync.Once
	joined    atomic.Bool
}

var _ Client = (*Chat)(nil)

// NewChat attaches a chat client to sup. sup must not have been started.
func NewChat(sup *graceful.Supervisor, username string, log *zap.Logger) *Chat {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Chat{
		sup:      sup,
		username: username,
		log:      log.With(zap.String("user", username)),
		messages: make(chan protocol.Message, 10),
	}

	sup.AddEventListener(graceful.EventMessage, c.onMessage)
	sup.AddEventListener(graceful.EventConnected, c.onConnected)
	sup.AddEventListener(graceful.EventKilled, func(graceful.Event) { c.closeMessages() })
	return c
}

// Connect starts the supervisor. The connection is established in the background.
func (c *Chat) Connect() error {
	if err := c.sup.Start(); err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	return nil
}

// Disconnect closes the supervisor and waits until the message channel is closed.
func (c *Chat) Disconnect() {
	if err := c.sup.Close(); err != nil && !errors.Is(err, graceful.ErrAlreadyClosed) {
		c.log.Warn("failed to close connection", zap.Error(err))
	}
	<-c.sup.Done()
}

// IsConnected returns whether the client is connected
func (c *Chat) IsConnected() bool {
	return c.sup.Connected()
}

// SendMessage sends a text message to the server
func (c *Chat) SendMessage(ctx context.Context, content string) error {
	return c.send(ctx, protocol.Message{
		Type:    protocol.MessageTypeText,
		Sender:  c.username,
		Content: content,
	})
}

// Join sends a join message to the server
func (c *Chat) Join(ctx context.Context) error {
	if err := c.send(ctx, protocol.Message{Type: protocol.MessageTypeJoin, Sender: c.username}); err != nil {
		return err
	}
	c.joined.Store(true)
	return nil
}

// Leave sends a leave message to the server
func (c *Chat) Leave(ctx context.Context) error {
	c.joined.Store(false)
	return c.send(ctx, protocol.Message{Type: protocol.MessageTypeLeave, Sender: c.username})
}

// Messages returns the channel for receiving messages. It is closed once
// the client is disconnected.
func (c *Chat) Messages() <-chan protocol.Message {
	return c.messages
}

func (c *Chat) send(ctx context.Context, msg protocol.Message) error {
	data, err := msg.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	if err := c.sup.Send(ctx, transport.MessageBinary, data); err != nil {
		if errors.Is(err, graceful.ErrNotConnected) {
			return ErrNotConnected
		}
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

func (c *Chat) onMessage(e graceful.Event) {
	if e.MessageType != transport.MessageBinary {
		return
	}

	var msg protocol.Message
	if err := msg.Decode(e.Data); err != nil {
		c.log.Debug("failed to decode message", zap.Error(err))
		return
	}

	select {
	case c.messages <- msg:
	default:
		c.log.Warn("message channel full, dropping message", zap.String("from", msg.Sender))
	}
}

func (c *Chat) onConnected(graceful.Event) {
	if !c.joined.Load() {
		return
	}
	if err := c.send(context.Background(), protocol.Message{Type: protocol.MessageTypeJoin, Sender: c.username}); err != nil {
		c.log.Warn("failed to rejoin after reconnect", zap.Error(err))
	}
}

func (c *Chat) closeMessages() {
	c.closeOnce.Do(func() { close(c.messages) })
}
