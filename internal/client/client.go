// Package client implements a chat client on top of a connection supervisor.
package client

import (
	"context"

	"github.com/omochice/graceful-socket/pkg/protocol"
)

// Client defines the interface for chat clients.
type Client interface {
	Connect() error
	Disconnect()
	IsConnected() bool
	SendMessage(ctx context.Context, content string) error
	Join(ctx context.Context) error
	Leave(ctx context.Context) error
	Messages() <-chan protocol.Message
}
