// Package logging builds the logrus logger shared by the commands.
package logging

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Level maps the --verbose count to a log level: 0 shows warnings, 1 info and
// anything higher debug.
func Level(verbose int) logrus.Level {
	switch {
	case verbose <= 0:
		return logrus.WarnLevel
	case verbose == 1:
		return logrus.InfoLevel
	default:
		return logrus.DebugLevel
	}
}

// New returns a timestamped text logger writing to out.
func New(out io.Writer, verbose int) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(Level(verbose))
	return l
}
