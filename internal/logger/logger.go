package logger

import (
	"io"
	"os"
	"strings"

	"github.com/Domenick1991/flightbooking/config"
	"github.com/sirupsen/logrus"
)

// New builds the process logger. JSON output is used in production or when
// log.format is "json".
func New(service string, cfg config.LogConfig, production bool) *logrus.Entry {
	return NewWithWriter(service, cfg, production, os.Stdout)
}

func NewWithWriter(service string, cfg config.LogConfig, production bool, w io.Writer) *logrus.Entry {
	l := logrus.New()
	l.SetOutput(w)

	level, err := logrus.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	if production || strings.EqualFold(cfg.Format, "json") {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	return l.WithField("service", service)
}

// Discard is a logger for tests and optional dependencies.
func Discard() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}
