// Package debug provides global debug/verbose logging control
package debug

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Verbose controls whether debug output is enabled
var Verbose bool

// Fields is an alias so callers need not import logrus.
type Fields = logrus.Fields

var log = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.DebugLevel)
	l.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp: true,
		PadLevelText:     true,
	})
	return l
}

// SetOutput redirects debug output.
func SetOutput(w io.Writer) {
	log.SetOutput(w)
}

// Printf prints debug output if verbose mode is enabled
func Printf(format string, args ...interface{}) {
	if Verbose {
		log.Debugf(format, args...)
	}
}

// Println prints debug output if verbose mode is enabled
func Println(args ...interface{}) {
	if Verbose {
		log.Debugln(args...)
	}
}

// WithFields logs msg with structured fields if verbose mode is enabled.
func WithFields(fields Fields, msg string) {
	if Verbose {
		log.WithFields(fields).Debug(msg)
	}
}
