// Package config loads the YAML configuration shared by the commands.
package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/omochice/graceful-socket/internal/server"
	"github.com/omochice/graceful-socket/pkg/graceful"
	"github.com/omochice/graceful-socket/pkg/reachability"
	"github.com/omochice/graceful-socket/pkg/transport"
	"github.com/omochice/graceful-socket/pkg/transport/gobwas"
	"github.com/omochice/graceful-socket/pkg/transport/gorilla"
	"github.com/omochice/graceful-socket/pkg/transport/nhooyr"
)

// Transport names accepted in the transport field.
const (
	TransportNhooyr  = "nhooyr"
	TransportGorilla = "gorilla"
	TransportGobwas  = "gobwas"
)

// Reachability modes.
const (
	ReachabilityAlways     = "always"
	ReachabilityInterfaces = "interfaces"
	ReachabilityProbe      = "probe"
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid config")

// Config is the root of the configuration file.
type Config struct {
	Client           graceful.Config `yaml:"client"`
	Transport        string          `yaml:"transport"`
	HandshakeTimeout time.Duration   `yaml:"handshakeTimeout"`
	Reachability     Reachability    `yaml:"reachability"`
	Logging          Logging         `yaml:"logging"`
	Server           Server          `yaml:"server"`
}

// Reachability selects the predicate polled while disconnected.
type Reachability struct {
	Mode          string        `yaml:"mode"`
	ProbeAddr     string        `yaml:"probeAddr"`
	ProbeInterval time.Duration `yaml:"probeInterval"`
	ProbeTimeout  time.Duration `yaml:"probeTimeout"`
}

// Logging configures the zap logger.
type Logging struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Server configures the relay server.
type Server struct {
	Listen       string   `yaml:"listen"`
	Path         string   `yaml:"path"`
	AnswerProbes bool     `yaml:"answerProbes"`
	Echo         bool     `yaml:"echo"`
	Subprotocols []string `yaml:"subprotocols,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Client:           graceful.DefaultConfig("ws://localhost:8080/"),
		Transport:        TransportNhooyr,
		HandshakeTimeout: graceful.DefaultHandshakeTimeout,
		Reachability: Reachability{
			Mode:          ReachabilityAlways,
			ProbeInterval: reachability.DefaultProbeInterval,
			ProbeTimeout:  reachability.DefaultProbeTimeout,
		},
		Logging: Logging{Level: "info"},
		Server: Server{
			Listen:       ":8080",
			Path:         "/",
			AnswerProbes: true,
		},
	}
}

// Load reads and validates the file at path on top of Default.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(bytes.NewReader(data))
}

// Parse decodes and validates YAML on top of Default. Unknown keys are rejected.
func Parse(r io.Reader) (Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.Client = cfg.Client.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every section.
func (c Config) Validate() error {
	if err := c.Client.Validate(); err != nil {
		return fmt.Errorf("%w: client: %w", ErrInvalid, err)
	}

	switch c.Transport {
	case TransportNhooyr, TransportGorilla, TransportGobwas:
	default:
		return fmt.Errorf("%w: unknown transport %q", ErrInvalid, c.Transport)
	}

	if c.HandshakeTimeout < 0 {
		return fmt.Errorf("%w: handshakeTimeout must not be negative", ErrInvalid)
	}

	switch c.Reachability.Mode {
	case ReachabilityAlways, ReachabilityInterfaces:
	case ReachabilityProbe:
		if c.Reachability.ProbeAddr == "" {
			return fmt.Errorf("%w: reachability.probeAddr is required in probe mode", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown reachability mode %q", ErrInvalid, c.Reachability.Mode)
	}

	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("%w: logging.level: %w", ErrInvalid, err)
	}

	if c.Server.Listen == "" {
		return fmt.Errorf("%w: server.listen must not be empty", ErrInvalid)
	}
	return nil
}

// Dialer returns the transport.Dialer selected by the transport field.
func (c Config) Dialer() transport.Dialer {
	switch c.Transport {
	case TransportGorilla:
		return &gorilla.Dialer{HandshakeTimeout: c.HandshakeTimeout}
	case TransportGobwas:
		return &gobwas.Dialer{Timeout: c.HandshakeTimeout}
	default:
		return &nhooyr.Dialer{}
	}
}

// Options returns the supervisor options derived from the configuration.
// The returned stop function releases background reachability probing.
func (c Config) Options(ctx context.Context, log *zap.Logger) ([]graceful.Option, func()) {
	checker, stop := c.Reachability.Checker(ctx, log)
	return []graceful.Option{
		graceful.WithDialer(c.Dialer()),
		graceful.WithReachability(checker),
		graceful.WithHandshakeTimeout(c.HandshakeTimeout),
		graceful.WithLogger(log),
	}, stop
}

// Checker builds the reachability predicate. In probe mode the prober is
// started with ctx and stop must be called to release it.
func (r Reachability) Checker(ctx context.Context, log *zap.Logger) (reachability.Checker, func()) {
	switch r.Mode {
	case ReachabilityInterfaces:
		return reachability.Interfaces, func() {}
	case ReachabilityProbe:
		p := reachability.NewProber(r.ProbeAddr, r.ProbeInterval, r.ProbeTimeout, log)
		p.Start(ctx)
		return p, p.Stop
	default:
		return reachability.Always, func() {}
	}
}

// ServerOptions converts the server section, taking heartbeat payloads
// from the client section so both ends agree.
func (c Config) ServerOptions() server.Options {
	return server.Options{
		Path:         c.Server.Path,
		Probe:        c.Client.Com.Message,
		Answer:       c.Client.Com.Answer,
		Echo:         c.Server.Echo,
		Subprotocols: c.Server.Subprotocols,
	}
}
