// Package logging wires the process-scoped logger. Every component receives
// the same *logrus.Logger at construction; there are no package-level logger
// singletons.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// New builds a logger writing to stderr and, when logFile is non-empty, to
// that file as well. Unknown levels fall back to info.
func New(level, logFile string) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)

	out := io.Writer(os.Stderr)
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			log.WithError(err).Warn("cannot open log file, logging to stderr only")
		} else {
			out = io.MultiWriter(os.Stderr, f)
		}
	}
	log.SetOutput(out)
	return log
}

// Discard returns a logger that writes nowhere. Used in tests.
func Discard() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}
