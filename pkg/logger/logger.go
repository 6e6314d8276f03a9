// Package logger wraps zap so the rest of the bridge can log through a
// small, level-filtered interface instead of depending on zap's API
// directly: a printf-style call surface (Info/Warn/Error/Debug with a
// format string) backed by zap's structured fields and level filtering.
package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log levels recognized in Config.Level.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Config mirrors the subset of daemon.log_level / file settings the core
// accepts from an external config loader.
type Config struct {
	Level   string
	File    string
	MaxSize int
	MaxAge  int
}

// Logger is the interface every component in this module logs through.
type Logger interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
	// With returns a derived Logger that attaches key=value to every
	// subsequent message, used to carry account/mac correlation ids.
	With(key string, value interface{}) Logger
}

type zapLogger struct {
	s *zap.SugaredLogger
}

// New builds a Logger backed by zap. An empty File logs to stdout/stderr.
func New(cfg Config) (Logger, error) {
	level := parseLevel(cfg.Level)

	zcfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Encoding:         "console",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder

	if cfg.File != "" {
		zcfg.OutputPaths = []string{cfg.File}
		zcfg.ErrorOutputPaths = []string{cfg.File}
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}

	l, err := zcfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return &zapLogger{s: l.Sugar()}, nil
}

// Nop returns a Logger that discards everything, for tests and defaults.
func Nop() Logger {
	return &zapLogger{s: zap.NewNop().Sugar()}
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	case LevelInfo, "":
		return zapcore.InfoLevel
	default:
		return zapcore.InfoLevel
	}
}

func (z *zapLogger) Debug(format string, args ...interface{}) { z.s.Debugf(format, args...) }
func (z *zapLogger) Info(format string, args ...interface{})  { z.s.Infof(format, args...) }
func (z *zapLogger) Warn(format string, args ...interface{})  { z.s.Warnf(format, args...) }
func (z *zapLogger) Error(format string, args ...interface{}) { z.s.Errorf(format, args...) }

func (z *zapLogger) With(key string, value interface{}) Logger {
	return &zapLogger{s: z.s.With(key, value)}
}
