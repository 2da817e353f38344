// Package logging configures the global zerolog logger.
package logging

import (
	"fmt"
	"io"
	stdLog "log"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Options selects the level, format and destination of the global logger.
type Options struct {
	Level  string // trace, debug, info, warn, error
	Format string // text or json
	File   string // Optional log file, appended to alongside stderr
}

var logWriter io.Writer = zerolog.ConsoleWriter{
	Out:        os.Stderr,
	TimeFormat: time.RFC3339,
}

// SetLogWriter replaces the writer used by the next ConfigureGlobalLogging call.
func SetLogWriter(w io.Writer) {
	logWriter = w
}

// ConfigureGlobalLogging sets the global level and rebuilds log.Logger. The
// returned closer releases the log file, if one was opened.
func ConfigureGlobalLogging(opts Options) (io.Closer, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	zerolog.SetGlobalLevel(level)

	w := logWriter
	if cw, ok := logWriter.(zerolog.ConsoleWriter); ok && strings.EqualFold(opts.Format, "json") {
		w = cw.Out
	}

	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		w = zerolog.MultiLevelWriter(w, f)
		closer = f
	}

	logContext := zerolog.New(w).With().Timestamp()
	if level <= zerolog.DebugLevel {
		logContext = logContext.Caller()
	}

	log.Logger = logContext.Logger().Level(level)
	zerolog.DefaultContextLogger = &log.Logger

	// Route libraries that use the standard logger through zerolog.
	stdLog.SetFlags(0)
	stdLog.SetOutput(log.Logger.With().Str("source", "stdlog").Logger())

	return closer, nil
}

// ParseLevel converts a level name to a zerolog.Level. An empty name means info.
func ParseLevel(levelString string) (zerolog.Level, error) {
	if levelString == "" {
		return zerolog.InfoLevel, nil
	}
	level, err := zerolog.ParseLevel(strings.ToLower(levelString))
	if err != nil {
		return zerolog.InfoLevel, fmt.Errorf("invalid log level %q: %w", levelString, err)
	}
	return level, nil
}

// Component returns a child of the global logger tagged with name.
func Component(name string) zerolog.Logger {
	return log.Logger.With().Str("component", name).Logger()
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
