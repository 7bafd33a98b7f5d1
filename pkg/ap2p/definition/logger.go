// Package definition holds the ambient pieces every component is built
// against: the Logger interface and the backend's Config, mirroring the
// teacher's own definition package (its DefaultLogger, promoted here to a
// logrus-backed implementation).
package definition

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the logging contract every handler, store and engine depends on
// through constructor injection. No component reaches for the global log
// package directly.
type Logger interface {
	Info(args ...interface{})
	Infof(format string, args ...interface{})
	Warn(args ...interface{})
	Warnf(format string, args ...interface{})
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})
	Fatal(args ...interface{})
	Fatalf(format string, args ...interface{})
}

// logrusLogger adapts *logrus.Logger to the Logger interface.
type logrusLogger struct {
	*logrus.Logger
}

// NewLogger returns the default Logger implementation, writing structured
// text lines to stderr.
func NewLogger() Logger {
	l := logrus.New()
	l.Out = os.Stderr
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return &logrusLogger{Logger: l}
}

// ToggleDebug flips the minimum logged level between Info and Debug, the
// same knob the teacher's DefaultLogger exposes.
func ToggleDebug(l Logger, enabled bool) {
	ll, ok := l.(*logrusLogger)
	if !ok {
		return
	}
	if enabled {
		ll.SetLevel(logrus.DebugLevel)
	} else {
		ll.SetLevel(logrus.InfoLevel)
	}
}
