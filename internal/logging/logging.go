// Package logging builds the program logger from workspace configuration.
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

const appName = "ebref"

// Levels accepted by Config.
const (
	LevelNone   = "none"
	LevelNormal = "normal"
	LevelDebug  = "debug"
)

// Config selects console and file output.
type Config struct {
	Level     string `yaml:"level,omitempty"`
	File      string `yaml:"file,omitempty"`
	FileLevel string `yaml:"file_level,omitempty"`
	// Mode is "append" or "overwrite" for the log file.
	Mode string `yaml:"mode,omitempty"`
}

// Validate reports unknown levels or modes.
func (c Config) Validate() error {
	for _, lvl := range []string{c.Level, c.FileLevel} {
		switch lvl {
		case "", LevelNone, LevelNormal, LevelDebug:
		default:
			return fmt.Errorf("unknown log level %q", lvl)
		}
	}
	switch c.Mode {
	case "", "append", "overwrite":
	default:
		return fmt.Errorf("unknown log mode %q", c.Mode)
	}
	return nil
}

// New returns a logger writing warnings and errors to stderr and, depending on
// the level, informational output to stdout. The returned function closes the
// log file, if any.
func New(cfg Config) (*zap.Logger, func() error, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	stdout := consoleCore(cfg.Level, os.Stdout, func(lvl zapcore.Level) bool {
		return lvl < zapcore.WarnLevel
	})
	stderr := consoleCore(cfg.Level, os.Stderr, func(lvl zapcore.Level) bool {
		return lvl >= zapcore.WarnLevel
	})

	closer := func() error { return nil }
	fileCore := zapcore.NewNopCore()
	if cfg.File != "" && cfg.FileLevel != "" && cfg.FileLevel != LevelNone {
		f, err := openLogFile(cfg.File, cfg.Mode)
		if err != nil {
			return nil, nil, fmt.Errorf("unable to access log file (%s): %w", cfg.File, err)
		}
		level := zap.NewAtomicLevelAt(zap.InfoLevel)
		if cfg.FileLevel == LevelDebug {
			level = zap.NewAtomicLevelAt(zap.DebugLevel)
		}
		fileCore = zapcore.NewCore(
			zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
			zapcore.Lock(f),
			level,
		)
		closer = f.Close
	}

	logger := zap.New(zapcore.NewTee(stderr, stdout, fileCore), zap.AddCaller())
	return logger.Named(appName), closer, nil
}

func consoleCore(level string, stream *os.File, accept func(zapcore.Level) bool) zapcore.Core {
	var floor zapcore.Level
	switch level {
	case LevelNormal:
		floor = zapcore.InfoLevel
	case LevelDebug:
		floor = zapcore.DebugLevel
	default:
		// Warnings still reach stderr when console output is off.
		if stream != os.Stderr {
			return zapcore.NewNopCore()
		}
		floor = zapcore.WarnLevel
	}

	ec := zap.NewDevelopmentEncoderConfig()
	ec.EncodeCaller = nil
	if EnableColorOutput(stream) {
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
		ec.TimeKey = zapcore.OmitKey
	} else {
		ec.EncodeLevel = zapcore.CapitalLevelEncoder
	}

	return zapcore.NewCore(zapcore.NewConsoleEncoder(ec), zapcore.Lock(stream),
		zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
			return lvl >= floor && accept(lvl)
		}))
}

func openLogFile(name, mode string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		return nil, err
	}
	flags := os.O_CREATE | os.O_WRONLY
	if mode == "overwrite" {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_APPEND
	}
	return os.OpenFile(name, flags, 0o644)
}

// EnableColorOutput checks if colorized output is possible.
func EnableColorOutput(stream *os.File) bool {
	return term.IsTerminal(int(stream.Fd()))
}
