// Package logging builds the zap loggers used across redisbus.
//
// Libraries in this module take a *zap.Logger and fall back to a no-op logger when given
// nil, so embedding applications decide where logs go. Binaries build theirs with New.
package logging

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Component names used with Logger.Named.
const (
	ComponentStore  = "store"
	ComponentPubSub = "pubsub"
	ComponentClient = "client"
	ComponentServer = "server"
)

// New creates a logger at the given level ("debug", "info", "warn", "error").
// Development loggers write colored console output; production loggers write JSON.
func New(level string, development bool) (*zap.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
	} else {
		cfg = zap.NewProductionConfig()
		cfg.DisableStacktrace = true
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	return cfg.Build()
}

// ParseLevel converts a level name to a zap level.
func ParseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "", "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("invalid log level: %s", level)
	}
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

// RedisLogger adapts a zap logger to the printf-style logger go-redis reports its
// internal events through (pool dial failures, pub/sub reconnects).
type RedisLogger struct {
	logger *zap.SugaredLogger
}

// NewRedisLogger wraps l for use with redis.SetLogger.
func NewRedisLogger(l *zap.Logger) *RedisLogger {
	return &RedisLogger{logger: OrNop(l).Named("go-redis").Sugar()}
}

// Printf implements the go-redis logging interface.
func (r *RedisLogger) Printf(_ context.Context, format string, v ...interface{}) {
	r.logger.Debugf(strings.TrimSuffix(format, "\n"), v...)
}
