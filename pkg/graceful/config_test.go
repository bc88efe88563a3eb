package graceful

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_WithDefaults(t *testing.T) {
	cfg := Config{WS: WSConfig{URL: "ws://localhost:8080"}}.WithDefaults()

	assert.Equal(t, 5000*time.Millisecond, cfg.PingInterval)
	assert.Equal(t, 2500*time.Millisecond, cfg.PingTimeout)
	assert.Equal(t, 1000*time.Millisecond, cfg.RetryInterval)
	assert.Equal(t, "__PING__", cfg.Com.Message)
	assert.Equal(t, "__PONG__", cfg.Com.Answer)
	assert.Equal(t, DefaultConfig("ws://localhost:8080"), cfg)
}

func TestConfig_WithDefaultsKeepsExplicitValues(t *testing.T) {
	cfg := Config{
		WS:            WSConfig{URL: "ws://localhost:8080"},
		PingInterval:  250 * time.Millisecond,
		PingTimeout:   500 * time.Millisecond,
		RetryInterval: 100 * time.Millisecond,
		Com:           Communication{Message: "ping", Answer: "pong"},
	}.WithDefaults()

	assert.Equal(t, 250*time.Millisecond, cfg.PingInterval)
	assert.Equal(t, 500*time.Millisecond, cfg.PingTimeout)
	assert.Equal(t, 100*time.Millisecond, cfg.RetryInterval)
	assert.Equal(t, "ping", cfg.Com.Message)
	assert.Equal(t, "pong", cfg.Com.Answer)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name  string
		cfg   Config
		field string
	}{
		{
			name: "valid",
			cfg:  DefaultConfig("ws://localhost:8080/ws", "chat"),
		},
		{
			name:  "missing url",
			cfg:   DefaultConfig(""),
			field: "ws.url",
		},
		{
			name:  "wrong scheme",
			cfg:   DefaultConfig("ftp://localhost"),
			field: "ws.url",
		},
		{
			name:  "unparseable url",
			cfg:   DefaultConfig("ws://[::1"),
			field: "ws.url",
		},
		{
			name: "negative ping interval",
			cfg: func() Config {
				c := DefaultConfig("ws://localhost")
				c.PingInterval = -time.Second
				return c
			}(),
			field: "pingInterval",
		},
		{
			name: "negative ping timeout",
			cfg: func() Config {
				c := DefaultConfig("ws://localhost")
				c.PingTimeout = -time.Second
				return c
			}(),
			field: "pingTimeout",
		},
		{
			name: "negative retry interval",
			cfg: func() Config {
				c := DefaultConfig("ws://localhost")
				c.RetryInterval = -time.Second
				return c
			}(),
			field: "retryInterval",
		},
		{
			name: "empty answer",
			cfg: func() Config {
				c := DefaultConfig("ws://localhost")
				c.Com.Answer = ""
				return c
			}(),
			field: "com.answer",
		},
		{
			name: "answer equals probe",
			cfg: func() Config {
				c := DefaultConfig("ws://localhost")
				c.Com.Answer = c.Com.Message
				return c
			}(),
			field: "com.answer",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}

			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfig))

			var ce *ConfigurationError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}
