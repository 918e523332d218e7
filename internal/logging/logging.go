// Package logging builds the zap logger used across ddrsync.
package logging

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	// LevelDebug logs everything, including per-row outcomes.
	LevelDebug = "debug"

	// LevelInfo is the default.
	LevelInfo = "info"

	// LevelNone disables logging.
	LevelNone = "none"
)

// Options configures New.
type Options struct {
	// Level is debug, info, warn, error or none.
	Level string
	// File, when set, receives JSON logs rotated by size instead of the
	// console output on stderr.
	File string
	// MaxSizeMB and MaxBackups tune rotation; zero keeps lumberjack's
	// defaults.
	MaxSizeMB  int
	MaxBackups int

	// Stderr overrides os.Stderr for console output.
	Stderr io.Writer
}

// New returns a logger for opts. The returned closer flushes buffered
// entries and closes the log file; it is safe to call on every path.
func New(opts Options) (*zap.Logger, func(), error) {
	if opts.Level == LevelNone {
		return zap.NewNop(), func() {}, nil
	}
	if opts.Level == "" {
		opts.Level = LevelInfo
	}

	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(opts.Level)); err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
	}

	var core zapcore.Core
	var closeFile func() error
	if opts.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
		}
		closeFile = rotator.Close
		enc := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
		core = zapcore.NewCore(enc, zapcore.AddSync(rotator), lvl)
	} else {
		w := opts.Stderr
		if w == nil {
			w = os.Stderr
		}
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
		core = zapcore.NewCore(zapcore.NewConsoleEncoder(cfg), zapcore.Lock(zapcore.AddSync(w)), lvl)
	}

	logger := zap.New(core)
	closer := func() {
		_ = logger.Sync()
		if closeFile != nil {
			_ = closeFile()
		}
	}
	return logger, closer, nil
}

// Must is New for callers that treat a bad configuration as fatal.
func Must(opts Options) (*zap.Logger, func()) {
	l, closer, err := New(opts)
	if err != nil {
		panic(err)
	}
	return l, closer
}
