// Package logger builds the zap logger shared by every component.
//
// Output goes to a lumberjack-rotated file; a console core can be teed on for
// interactive runs.
package logger

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls logger construction.
type Options struct {
	// Level is one of debug, info, warn, error.
	Level string
	// File is the path of the rotated log file. Empty disables file output.
	File string
	// MaxSizeMB is the size at which the file is rotated.
	MaxSizeMB int
	// MaxBackups is the number of rotated files kept.
	MaxBackups int
	// MaxAgeDays is how long rotated files are kept.
	MaxAgeDays int
	// Console tees log output to stderr.
	Console bool
}

// Default rotation values
const (
	DefaultMaxSizeMB  = 10
	DefaultMaxBackups = 3
	DefaultMaxAgeDays = 14
)

// ParseLevel converts a level name to a zap level. Unknown names fall back to info.
func ParseLevel(s string) (zapcore.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel, true
	case "info", "":
		return zapcore.InfoLevel, true
	case "warn", "warning":
		return zapcore.WarnLevel, true
	case "error":
		return zapcore.ErrorLevel, true
	default:
		return zapcore.InfoLevel, false
	}
}

// New creates the application logger. The returned closer flushes and releases the file sink.
func New(opts Options) (*zap.SugaredLogger, func() error, error) {
	level, ok := ParseLevel(opts.Level)
	if !ok {
		return nil, nil, fmt.Errorf("unknown log level %q", opts.Level)
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		MessageKey:     "message",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
		EncodeName:     zapcore.FullNameEncoder,
	}

	var cores []zapcore.Core
	var rotator *lumberjack.Logger

	if opts.File != "" {
		rotator = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    valueOr(opts.MaxSizeMB, DefaultMaxSizeMB),
			MaxBackups: valueOr(opts.MaxBackups, DefaultMaxBackups),
			MaxAge:     valueOr(opts.MaxAgeDays, DefaultMaxAgeDays),
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderConfig),
			zapcore.AddSync(rotator),
			level,
		))
	}

	if opts.Console || len(cores) == 0 {
		consoleConfig := encoderConfig
		consoleConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		consoleConfig.ConsoleSeparator = "  "
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(consoleConfig),
			zapcore.Lock(os.Stderr),
			level,
		))
	}

	base := zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	sugar := base.Sugar()

	closer := func() error {
		// Sync on stderr returns EINVAL on some platforms; only the file result matters.
		_ = base.Sync()
		if rotator != nil {
			return rotator.Close()
		}
		return nil
	}

	return sugar, closer, nil
}

// Named returns a child logger for a component.
func Named(l *zap.SugaredLogger, component string) *zap.SugaredLogger {
	return l.Named(component)
}

func valueOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}
