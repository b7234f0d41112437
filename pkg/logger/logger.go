// Package logger builds logr.Logger values backed by zerolog for the sender
// binaries.
//
// Two knobs control output:
//   - V-level, the verbosity every logger call carries. Higher numbers are
//     chattier and map onto zerolog's debug and trace levels.
//   - Level, a zerolog level name (trace, debug, info, warn, error) that can be
//     used instead of a V-level in configuration files.
package logger

import (
	"io"

	"github.com/go-logr/logr"
	"github.com/go-logr/zerologr"
	"github.com/rs/zerolog"
)

const timeFormat = "2006-01-02 15:04:05.000"

// GlobalConfig holds the process wide logging options.
type GlobalConfig struct {
	V     int    `mapstructure:"v"`
	Level string `mapstructure:"level"`
}

// SetGlobalOptions sets the level every logger is compared against. A
// non-empty Level wins over V. Concurrent-safe.
func SetGlobalOptions(config GlobalConfig) {
	if config.Level != "" && SetVLevelByStringGlobal(config.Level) {
		return
	}
	zerolog.SetGlobalLevel(vToLevel(config.V))
}

// SetVLevelByStringGlobal sets the global level from a zerolog level name and
// reports whether the name was understood.
func SetVLevelByStringGlobal(level string) bool {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		return false
	}
	zerolog.SetGlobalLevel(lvl)
	return true
}

// vToLevel maps V(0) to info, V(1) to debug and anything above to trace.
func vToLevel(v int) zerolog.Level {
	lvl := 1 - v
	if lvl < int(zerolog.TraceLevel) {
		lvl = int(zerolog.TraceLevel)
	} else if lvl > int(zerolog.InfoLevel) {
		lvl = int(zerolog.InfoLevel)
	}
	return zerolog.Level(lvl)
}

// Options that can be passed to NewWithOptions.
type Options struct {
	// Name is an optional name of the logger
	Name       string
	TimeFormat string
	Output     io.Writer
	// Logger is an instance of zerolog, if nil a default logger is used
	Logger *zerolog.Logger
}

// New returns a console logger.
func New() logr.Logger {
	return NewWithOptions(Options{})
}

// NewWithOptions returns a logr.Logger whose sink is zerolog.
func NewWithOptions(opts Options) logr.Logger {
	if opts.TimeFormat != "" {
		zerolog.TimeFieldFormat = opts.TimeFormat
	} else {
		zerolog.TimeFieldFormat = timeFormat
	}

	if opts.Logger == nil {
		var out io.Writer = consoleWriter()
		if opts.Output != nil {
			out = opts.Output
		}
		l := zerolog.New(out).With().Timestamp().Logger()
		opts.Logger = &l
	}

	ls := zerologr.NewLogSink(opts.Logger)
	if zerolog.LevelFieldName == "" {
		// zerologr may clear the level field name
		zerolog.LevelFieldName = "level"
	}
	l := logr.New(ls)
	if opts.Name != "" {
		l = l.WithName(opts.Name)
	}
	return l
}
