// Package log provides loggers for conveyor components.
package log

import (
	"io"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
)

// DebugEnv is the environment variable that switches loggers to debug level.
const DebugEnv = "CONVEYOR_DEBUG"

var debug bool

// Logger is the logging interface used by pipeline components.
type Logger = logrus.FieldLogger

func init() {
	var err error
	debug, err = strconv.ParseBool(os.Getenv(DebugEnv))
	if err != nil {
		debug = false
	}
}

// GetLogger returns a new logger instance.
func GetLogger() *logrus.Logger {
	l := logrus.New()
	if debug {
		l.SetLevel(logrus.DebugLevel)
	}
	return l
}

// WithLevel returns a new logger with the level parsed from s. Unknown
// levels fall back to info.
func WithLevel(s string) *logrus.Logger {
	l := GetLogger()
	if s == "" {
		return l
	}
	lvl, err := logrus.ParseLevel(s)
	if err != nil {
		l.WithField("level", s).Warn("unknown log level")
		return l
	}
	l.SetLevel(lvl)
	return l
}

// Discard returns a logger that drops all entries.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
