// Package logging builds the zap loggers used by the commands.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/omochice/graceful-socket/internal/config"
)

// New returns a JSON production logger, or a console logger when
// development is set, at the configured level.
func New(cfg config.Logging) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("failed to parse log level: %w", err)
	}

	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	log, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return log, nil
}

// Failed logs err at error level and flushes log. It returns the process
// exit status, so that callers can exit without skipping the flush.
func Failed(log *zap.Logger, msg string, err error) int {
	log.Error(msg, zap.Error(err))
	_ = log.Sync()
	return 1
}
