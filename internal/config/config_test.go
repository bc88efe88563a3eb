package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/omochice/graceful-socket/pkg/graceful"
	"github.com/omochice/graceful-socket/pkg/reachability"
	"github.com/omochice/graceful-socket/pkg/transport/gobwas"
	"github.com/omochice/graceful-socket/pkg/transport/gorilla"
	"github.com/omochice/graceful-socket/pkg/transport/nhooyr"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, graceful.DefaultPingInterval, cfg.Client.PingInterval)
	assert.Equal(t, TransportNhooyr, cfg.Transport)
	assert.Equal(t, ReachabilityAlways, cfg.Reachability.Mode)
	assert.True(t, cfg.Server.AnswerProbes)
}

func TestParse(t *testing.T) {
	const doc = `
client:
  ws:
    url: wss://chat.example.com/socket
    protocols: [chat.v1]
  pingInterval: 250ms
  pingTimeout: 500ms
  com:
    message: hb?
    answer: hb!
transport: gobwas
handshakeTimeout: 3s
reachability:
  mode: probe
  probeAddr: chat.example.com:443
  probeInterval: 5s
logging:
  level: debug
  development: true
server:
  listen: 127.0.0.1:9000
  path: /ws
  answerProbes: false
  echo: true
`
	cfg, err := Parse(strings.NewReader(doc))
	require.NoError(t, err)

	assert.Equal(t, "wss://chat.example.com/socket", cfg.Client.WS.URL)
	assert.Equal(t, []string{"chat.v1"}, cfg.Client.WS.Protocols)
	assert.Equal(t, 250*time.Millisecond, cfg.Client.PingInterval)
	assert.Equal(t, 500*time.Millisecond, cfg.Client.PingTimeout)
	assert.Equal(t, graceful.DefaultRetryInterval, cfg.Client.RetryInterval)
	assert.Equal(t, "hb?", cfg.Client.Com.Message)
	assert.Equal(t, "hb!", cfg.Client.Com.Answer)
	assert.Equal(t, TransportGobwas, cfg.Transport)
	assert.Equal(t, 3*time.Second, cfg.HandshakeTimeout)
	assert.Equal(t, ReachabilityProbe, cfg.Reachability.Mode)
	assert.Equal(t, "chat.example.com:443", cfg.Reachability.ProbeAddr)
	assert.Equal(t, 5*time.Second, cfg.Reachability.ProbeInterval)
	assert.Equal(t, reachability.DefaultProbeTimeout, cfg.Reachability.ProbeTimeout)
	assert.Equal(t, Logging{Level: "debug", Development: true}, cfg.Logging)
	assert.Equal(t, Server{Listen: "127.0.0.1:9000", Path: "/ws", AnswerProbes: false, Echo: true}, cfg.Server)

	opts := cfg.ServerOptions()
	assert.Equal(t, "hb?", opts.Probe)
	assert.Equal(t, "hb!", opts.Answer)
	assert.Equal(t, "/ws", opts.Path)
	assert.True(t, opts.Echo)
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown key", "clinet:\n  ws:\n    url: ws://x\n"},
		{"malformed yaml", "client: [\n"},
		{"bad duration", "client:\n  pingInterval: soon\n"},
		{"empty url", "client:\n  ws:\n    url: \"\"\n"},
		{"unknown transport", "transport: carrier-pigeon\n"},
		{"probe without address", "reachability:\n  mode: probe\n"},
		{"unknown reachability mode", "reachability:\n  mode: psychic\n"},
		{"bad log level", "logging:\n  level: loud\n"},
		{"empty listen", "server:\n  listen: \"\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestParse_InvalidClientWrapsSentinels(t *testing.T) {
	_, err := Parse(strings.NewReader("client:\n  ws:\n    url: ftp://x\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalid)
	assert.ErrorIs(t, err, graceful.ErrInvalidConfig)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graceful.yaml")
	require.NoError(t, os.WriteFile(path, []byte("transport: gorilla\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, TransportGorilla, cfg.Transport)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestConfig_Dialer(t *testing.T) {
	cfg := Default()

	cfg.Transport = TransportNhooyr
	assert.IsType(t, &nhooyr.Dialer{}, cfg.Dialer())

	cfg.Transport = TransportGorilla
	assert.IsType(t, &gorilla.Dialer{}, cfg.Dialer())

	cfg.Transport = TransportGobwas
	assert.IsType(t, &gobwas.Dialer{}, cfg.Dialer())
}

func TestReachability_Checker(t *testing.T) {
	ctx := context.Background()

	checker, stop := Reachability{Mode: ReachabilityAlways}.Checker(ctx, zap.NewNop())
	assert.True(t, checker.Reachable())
	stop()

	checker, stop = Reachability{Mode: ReachabilityInterfaces}.Checker(ctx, zap.NewNop())
	assert.IsType(t, reachability.Func(nil), checker)
	stop()

	checker, stop = Reachability{Mode: ReachabilityProbe, ProbeAddr: "127.0.0.1:1", ProbeTimeout: 50 * time.Millisecond}.Checker(ctx, zap.NewNop())
	assert.IsType(t, &reachability.Prober{}, checker)
	stop()
}

func TestConfig_Options(t *testing.T) {
	opts, stop := Default().Options(context.Background(), zap.NewNop())
	defer stop()
	assert.Len(t, opts, 4)
}
