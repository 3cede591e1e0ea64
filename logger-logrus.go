//go:build !tinygo

package sx127x

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

func init() {
	globalLogger = NewLogrusLogger(logrus.StandardLogger())
}

// LogrusLogger forwards driver events to a logrus logger, one field per key.
type LogrusLogger struct {
	l *logrus.Logger
}

// NewLogrusLogger returns a Logger backed by l.
func NewLogrusLogger(l *logrus.Logger) *LogrusLogger {
	return &LogrusLogger{l: l}
}

func (l *LogrusLogger) Debug(msg string, f Fields) {
	l.l.WithFields(logrus.Fields(f)).Debug(msg)
}

func (l *LogrusLogger) Info(msg string, f Fields) {
	l.l.WithFields(logrus.Fields(f)).Info(msg)
}

func (l *LogrusLogger) Warn(msg string, f Fields) {
	l.l.WithFields(logrus.Fields(f)).Warn(msg)
}

func (l *LogrusLogger) Error(msg string, f Fields) {
	l.l.WithFields(logrus.Fields(f)).Error(msg)
}

// SetLogLevel changes the verbosity of the logrus backend ("debug", "info", "warn", "error").
// It is a no-op when a custom Logger has been installed with SetLogger.
func SetLogLevel(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("%w: %w: log level %q", ErrPkg, ErrInvalidParameter, level)
	}
	if ll, ok := globalLogger.(*LogrusLogger); ok {
		ll.l.SetLevel(lvl)
	}
	return nil
}
