package graceful

import (
	"net/url"
	"time"
)

// Defaults applied to zero-valued Config fields.
const (
	DefaultPingInterval  = 5000 * time.Millisecond
	DefaultPingTimeout   = 2500 * time.Millisecond
	DefaultRetryInterval = 1000 * time.Millisecond

	DefaultProbeMessage = "__PING__"
	DefaultProbeAnswer  = "__PONG__"
)

// WSConfig selects the peer.
type WSConfig struct {
	URL       string   `yaml:"url"`
	Protocols []string `yaml:"protocols,omitempty"`
}

// Communication holds the heartbeat payloads. Answer is reserved: inbound
// messages equal to it are consumed by the heartbeat monitor.
type Communication struct {
	Message string `yaml:"message"`
	Answer  string `yaml:"answer"`
}

// Config configures a Supervisor.
type Config struct {
	WS WSConfig `yaml:"ws"`

	// PingInterval is the period between heartbeat probes.
	PingInterval time.Duration `yaml:"pingInterval"`

	// PingTimeout is how long to wait for the acknowledgement of a probe.
	PingTimeout time.Duration `yaml:"pingTimeout"`

	// RetryInterval is the period at which reachability is polled while disconnected.
	RetryInterval time.Duration `yaml:"retryInterval"`

	Com Communication `yaml:"com"`
}

// DefaultConfig returns a Config for url with every other field defaulted.
func DefaultConfig(url string, protocols ...string) Config {
	return Config{
		WS:            WSConfig{URL: url, Protocols: protocols},
		PingInterval:  DefaultPingInterval,
		PingTimeout:   DefaultPingTimeout,
		RetryInterval: DefaultRetryInterval,
		Com: Communication{
			Message: DefaultProbeMessage,
			Answer:  DefaultProbeAnswer,
		},
	}
}

// WithDefaults returns a copy of c with zero-valued fields replaced by defaults.
func (c Config) WithDefaults() Config {
	if c.PingInterval == 0 {
		c.PingInterval = DefaultPingInterval
	}
	if c.PingTimeout == 0 {
		c.PingTimeout = DefaultPingTimeout
	}
	if c.RetryInterval == 0 {
		c.RetryInterval = DefaultRetryInterval
	}
	if c.Com.Message == "" {
		c.Com.Message = DefaultProbeMessage
	}
	if c.Com.Answer == "" {
		c.Com.Answer = DefaultProbeAnswer
	}
	return c
}

// Validate checks c after defaults have been applied.
func (c Config) Validate() error {
	if c.WS.URL == "" {
		return &ConfigurationError{Field: "ws.url", Reason: "must not be empty"}
	}
	u, err := url.Parse(c.WS.URL)
	if err != nil {
		return &ConfigurationError{Field: "ws.url", Reason: "is not a valid URL: " + err.Error()}
	}
	switch u.Scheme {
	case "ws", "wss", "http", "https":
	default:
		return &ConfigurationError{Field: "ws.url", Reason: "must use the ws or wss scheme"}
	}

	if c.PingInterval <= 0 {
		return &ConfigurationError{Field: "pingInterval", Reason: "must be positive"}
	}
	if c.PingTimeout <= 0 {
		return &ConfigurationError{Field: "pingTimeout", Reason: "must be positive"}
	}
	if c.RetryInterval <= 0 {
		return &ConfigurationError{Field: "retryInterval", Reason: "must be positive"}
	}
	if c.Com.Message == "" {
		return &ConfigurationError{Field: "com.message", Reason: "must not be empty"}
	}
	if c.Com.Answer == "" {
		return &ConfigurationError{Field: "com.answer", Reason: "must not be empty"}
	}
	if c.Com.Message == c.Com.Answer {
		return &ConfigurationError{Field: "com.answer", Reason: "must differ from com.message"}
	}
	return nil
}
