package graceful

import (
	"errors"
	"fmt"
)

// Supervisor errors.
var (
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrNotConnected     = errors.New("not connected")
	ErrAlreadyClosed    = errors.New("already closed")
	ErrAlreadyStarted   = errors.New("already started")
	ErrHeartbeatTimeout = errors.New("heartbeat timeout")
)

// ConfigurationError reports a Config field that failed validation.
// It unwraps to ErrInvalidConfig.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error {
	return ErrInvalidConfig
}
