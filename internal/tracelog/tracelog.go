// Package tracelog is cairn's structured logger. It wraps logrus the way
// the teacher's modules/trace wraps a raw ANSI printer, but keeps the same
// call shape (Debugf(format, args...)) so call sites read identically.
package tracelog

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the subset of *logrus.Logger cairn components depend on.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	WithField(key string, value any) Logger
}

type logger struct {
	*logrus.Entry
}

func (l *logger) WithField(key string, value any) Logger {
	return &logger{Entry: l.Entry.WithField(key, value)}
}

// New returns a Logger writing timestamped text lines to stderr, verbose-gated the same
// way the teacher's debuger{verbose bool} gates DbgPrint.
func New(verbose bool) Logger {
	base := logrus.New()
	base.Out = os.Stderr
	base.Formatter = &logrus.TextFormatter{FullTimestamp: true}
	if verbose {
		base.SetLevel(logrus.DebugLevel)
	} else {
		base.SetLevel(logrus.InfoLevel)
	}
	return &logger{Entry: logrus.NewEntry(base)}
}

// Discard is a Logger that drops everything; used as the zero-value default
// so components never need a nil check.
var Discard Logger = newDiscard()

func newDiscard() Logger {
	base := logrus.New()
	base.Out = io.Discard
	return &logger{Entry: logrus.NewEntry(base)}
}
