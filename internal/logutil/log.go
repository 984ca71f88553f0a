// Package logutil builds the process logger.
package logutil

import (
	"strings"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/born-ml/singleshot/internal/errdefs"
)

// Formats accepted by New.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// ParseLevel maps debug, info, warn and error to zap levels.
// Numeric verbosity such as "2" maps to zap level -2, so logr V(2) is enabled.
func ParseLevel(s string) (zapcore.Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return zapcore.InfoLevel, nil
	}
	if len(s) == 1 && s[0] >= '0' && s[0] <= '9' {
		return zapcore.Level(-int8(s[0] - '0')), nil
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return 0, errdefs.InvalidArgument("log level %q", s)
	}
	return lvl, nil
}

// New returns a logr.Logger backed by zap writing to stderr.
func New(level, format string) (logr.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return logr.Discard(), err
	}

	var cfg zap.Config
	switch strings.ToLower(format) {
	case "", FormatConsole:
		cfg = zap.NewDevelopmentConfig()
		cfg.Development = false
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	case FormatJSON:
		cfg = zap.NewProductionConfig()
		cfg.Sampling = nil
	default:
		return logr.Discard(), errdefs.InvalidArgument("log format %q", format)
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.DisableStacktrace = lvl > zapcore.DebugLevel

	zl, err := cfg.Build()
	if err != nil {
		return logr.Discard(), errdefs.InvalidArgument("build logger: %v", err)
	}
	return zapr.NewLogger(zl), nil
}

// Must is New for command entry points; it falls back to a production
// logger when the settings are invalid.
func Must(level, format string) logr.Logger {
	log, err := New(level, format)
	if err != nil {
		log = zapr.NewLogger(zap.Must(zap.NewProduction()))
		log.Error(err, "invalid log settings, using defaults")
	}
	return log
}
