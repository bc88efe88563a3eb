// Package server implements a WebSocket relay used as the peer of the
// connection supervisor. It answers heartbeat probes, relays every other
// message to the remaining clients and can optionally echo messages back.
package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/omochice/graceful-socket/pkg/protocol"
)

// Options configures a Server.
type Options struct {
	// Path is the WebSocket endpoint. Defaults to "/".
	Path string

	// Probe and Answer are the heartbeat payloads. Defaults to "__PING__" and "__PONG__".
	Probe  string
	Answer string

	// Echo sends every relayed message back to its sender as well.
	Echo bool

	// Subprotocols lists the sub-protocols the server accepts, in order of preference.
	Subprotocols []string
}

func (o Options) withDefaults() Options {
	if o.Path == "" {
		o.Path = "/"
	}
	if o.Probe == "" {
		o.Probe = "__PING__"
	}
	if o.Answer == "" {
		o.Answer = "__PONG__"
	}
	return o
}

// Server accepts WebSocket connections and relays messages between them.
type Server struct {
	address string
	opts    Options
	log     *zap.Logger
	hub     *Hub

	answering atomic.Bool
	accepted  atomic.Int64

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
	closing  bool
	wg       sync.WaitGroup
}

// New creates a Server listening on address once started.
func New(address string, opts Options, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		address: address,
		opts:    opts.withDefaults(),
		log:     log,
		hub:     NewHub(),
	}
	s.answering.Store(true)
	return s
}

// Listen binds the listening socket.
func (s *Server) Listen() error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc(s.opts.Path, s.handleWebSocket)

	s.mu.Lock()
	s.listener = listener
	s.server = &http.Server{Handler: mux}
	s.mu.Unlock()

	s.log.Info("relay server listening", zap.String("addr", listener.Addr().String()), zap.String("path", s.opts.Path))
	return nil
}

// Serve accepts connections until Stop is called. Listen must have succeeded.
func (s *Server) Serve() error {
	s.mu.Lock()
	srv, listener := s.server, s.listener
	s.mu.Unlock()
	if srv == nil {
		return errors.New("server is not listening")
	}

	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}

// Start listens and serves in the background.
func (s *Server) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}
	go func() {
		if err := s.Serve(); err != nil {
			s.log.Error("relay server stopped", zap.Error(err))
		}
	}()
	return nil
}

// Stop closes the listener and every client connection with a going-away
// status, then waits for connection handlers until ctx is done.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	srv := s.server
	s.mu.Unlock()

	var err error
	if srv != nil {
		err = srv.Shutdown(ctx)
	}

	for _, c := range s.hub.Clients() {
		go c.conn.Close(websocket.StatusGoingAway, "server shutdown")
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.DropAll()
		<-done
		if err == nil {
			err = ctx.Err()
		}
	}

	s.log.Info("relay server stopped")
	return err
}

// Addr returns the listening address.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// URL returns the ws:// URL of the endpoint.
func (s *Server) URL() string {
	return "ws://" + s.Addr() + s.opts.Path
}

// SetAnswering controls whether heartbeat probes are acknowledged.
func (s *Server) SetAnswering(on bool) {
	s.answering.Store(on)
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	return s.hub.ClientCount()
}

// Accepted returns the number of connections accepted since start.
func (s *Server) Accepted() int64 {
	return s.accepted.Load()
}

// Broadcast queues a message for every connected client.
func (s *Server) Broadcast(typ websocket.MessageType, data []byte) int {
	return s.hub.Broadcast(message{typ: typ, data: data}, nil)
}

// DropAll tears down every client connection without a close handshake,
// as a network failure would.
func (s *Server) DropAll() {
	for _, c := range s.hub.Clients() {
		c.conn.CloseNow()
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.track() {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	defer s.wg.Done()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:       s.opts.Subprotocols,
		InsecureSkipVerify: true,
	})
	if err != nil {
		s.log.Warn("failed to accept WebSocket connection", zap.Error(err))
		return
	}
	s.accepted.Add(1)

	client := newClient(conn, r.RemoteAddr, s.log)
	s.hub.Register(client)
	defer s.hub.Unregister(client)
	client.log.Debug("client connected", zap.String("subprotocol", conn.Subprotocol()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.wg.Add(1)
	go s.writeLoop(ctx, client)

	s.readLoop(ctx, client)
}

// track registers a connection handler with the wait group unless Stop has begun.
func (s *Server) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.wg.Add(1)
	return true
}

func (s *Server) readLoop(ctx context.Context, client *Client) {
	probe, answer := []byte(s.opts.Probe), []byte(s.opts.Answer)

	for {
		typ, data, err := client.conn.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status != -1 {
				client.log.Debug("client closed connection", zap.Int("status", int(status)), zap.String("user", client.username))
			} else {
				client.log.Debug("client connection lost", zap.Error(err), zap.String("user", client.username))
			}
			return
		}

		if bytes.Equal(data, probe) {
			if s.answering.Load() {
				client.enqueue(message{typ: websocket.MessageText, data: answer})
			}
			continue
		}

		s.logChat(client, typ, data)
		if s.opts.Echo {
			client.enqueue(message{typ: typ, data: data})
		}
		s.hub.Broadcast(message{typ: typ, data: data}, client)
	}
}

func (s *Server) writeLoop(ctx context.Context, client *Client) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-client.outgoing:
			if err := client.conn.Write(ctx, msg.typ, msg.data); err != nil {
				client.log.Debug("failed to write to client", zap.Error(err))
				return
			}
		}
	}
}

// logChat logs chat protocol messages; other payloads are relayed unlogged.
func (s *Server) logChat(client *Client, typ websocket.MessageType, data []byte) {
	if typ != websocket.MessageBinary {
		return
	}

	var msg protocol.Message
	if err := msg.Decode(data); err != nil {
		client.log.Debug("failed to decode message", zap.Error(err))
		return
	}

	switch msg.Type {
	case protocol.MessageTypeJoin:
		client.username = msg.Sender
		client.log.Info("user joined", zap.String("user", msg.Sender))
	case protocol.MessageTypeLeave:
		user := msg.Sender
		if user == "" {
			user = client.username
		}
		client.username = ""
		client.log.Info("user left", zap.String("user", user))
	case protocol.MessageTypeText:
		client.log.Debug("message", zap.String("user", msg.Sender), zap.Int("bytes", len(msg.Content)))
	}
}
