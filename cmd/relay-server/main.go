package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/omochice/graceful-socket/internal/config"
	"github.com/omochice/graceful-socket/internal/logging"
	"github.com/omochice/graceful-socket/internal/server"
)

const shutdownTimeout = 5 * time.Second

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file")
	listen := flag.String("listen", "", "Address to listen on (e.g., :8080)")
	noAnswer := flag.Bool("no-answer", false, "Do not acknowledge heartbeat probes")
	echo := flag.Bool("echo", false, "Echo every message back to its sender")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "relay-server: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *listen != "" {
		cfg.Server.Listen = *listen
	}
	if *noAnswer {
		cfg.Server.AnswerProbes = false
	}
	if *echo {
		cfg.Server.Echo = true
	}

	log, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "relay-server: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		os.Exit(logging.Failed(log, "relay server failed", err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(cfg.Server.Listen, cfg.ServerOptions(), log)
	srv.SetAnswering(cfg.Server.AnswerProbes)
	if err := srv.Listen(); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(srv.Serve)
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Stop(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("failed to stop server: %w", err)
		}
		return nil
	})

	log.Info("relay server started",
		zap.String("url", srv.URL()),
		zap.Bool("answerProbes", cfg.Server.AnswerProbes),
		zap.Bool("echo", cfg.Server.Echo))
	return g.Wait()
}
