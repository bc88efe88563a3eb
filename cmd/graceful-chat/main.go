package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"go.uber.org/zap"

	"github.com/omochice/graceful-socket/internal/client"
	"github.com/omochice/graceful-socket/internal/config"
	"github.com/omochice/graceful-socket/internal/logging"
	"github.com/omochice/graceful-socket/pkg/graceful"
	"github.com/omochice/graceful-socket/pkg/protocol"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file")
	serverURL := flag.String("server", "", "WebSocket server URL (e.g., ws://localhost:8080/)")
	username := flag.String("username", "", "Username for chat")
	transportName := flag.String("transport", "", "WebSocket library: nhooyr, gorilla or gobwas")
	flag.Parse()

	if *username == "" {
		fmt.Fprintln(os.Stderr, "Username is required. Use -username flag")
		os.Exit(2)
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "graceful-chat: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *serverURL != "" {
		cfg.Client.WS.URL = *serverURL
	}
	if *transportName != "" {
		cfg.Transport = *transportName
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "graceful-chat: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "graceful-chat: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, *username, log); err != nil {
		os.Exit(logging.Failed(log, "chat failed", err))
	}
}

func run(cfg config.Config, username string, log *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts, stopProbe := cfg.Options(ctx, log)
	defer stopProbe()

	sup, err := graceful.New(cfg.Client, opts...)
	if err != nil {
		return err
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          username + "> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return fmt.Errorf("failed to start prompt: %w", err)
	}
	defer rl.Close()
	out := rl.Stdout()

	// Status lines for every connection change; join is (re)announced on connect.
	chat := client.NewChat(sup, username, log)
	sup.AddEventListener(graceful.EventConnected, func(graceful.Event) {
		fmt.Fprintf(out, "*** connected to %s ***\n", sup.URL())
	})
	sup.AddEventListener(graceful.EventDisconnected, func(e graceful.Event) {
		fmt.Fprintf(out, "*** connection lost (%d %s), waiting to reconnect ***\n", e.Code, e.Reason)
	})
	joined := make(chan struct{})
	sup.AddEventListener(graceful.EventConnected, func(graceful.Event) {
		if err := chat.Join(context.Background()); err != nil {
			log.Warn("failed to join chat", zap.Error(err))
			return
		}
		close(joined)
	}, graceful.Once())

	if err := chat.Connect(); err != nil {
		return err
	}
	defer chat.Disconnect()

	go printMessages(out, chat.Messages())

	fmt.Fprintln(out, "Type your messages (or 'quit' to exit):")
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}

		text := strings.TrimSpace(line)
		if text == "" {
			continue
		}
		if text == "quit" || text == "exit" {
			break
		}

		if err := chat.SendMessage(ctx, text); err != nil {
			fmt.Fprintf(out, "!!! not sent: %v\n", err)
		}
	}

	select {
	case <-joined:
		if err := chat.Leave(ctx); err != nil {
			log.Warn("failed to send leave message", zap.Error(err))
		}
		flush(sup, time.Second)
	default:
	}
	return nil
}

// flush waits for queued messages to be written before the connection is closed.
func flush(sup *graceful.Supervisor, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for sup.BufferedAmount() > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
}

func printMessages(out io.Writer, messages <-chan protocol.Message) {
	for msg := range messages {
		switch msg.Type {
		case protocol.MessageTypeText:
			fmt.Fprintf(out, "[%s]: %s\n", msg.Sender, msg.Content)
		case protocol.MessageTypeJoin:
			fmt.Fprintf(out, "*** %s joined the chat ***\n", msg.Sender)
		case protocol.MessageTypeLeave:
			fmt.Fprintf(out, "*** %s left the chat ***\n", msg.Sender)
		}
	}
}
