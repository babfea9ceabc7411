package logger

import (
	"io"

	log "github.com/sirupsen/logrus"
)

// Logger interface is used to allow tests to inject custom loggers.
type Logger interface {
	Fatalf(string, ...interface{})
	Debugf(string, ...interface{})
	Errorf(string, ...interface{})
	Infof(string, ...interface{})
	Warnf(string, ...interface{})
	Debug(...interface{})
	Warn(...interface{})
	Info(...interface{})
	Fatal(...interface{})
	WithField(key string, value interface{}) *log.Entry
	Writer() io.Writer
	SetWriter(io.Writer)
}

type logger struct {
	*log.Logger
}

// NewLogger returns a new Logger instance backed by Logrus at the given level.
func NewLogger(level uint32) Logger {
	l := log.New()
	l.SetLevel(log.Level(level))
	l.Formatter = &log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	}
	return &logger{l}
}

// NewDiscard returns a Logger that drops everything, for tests.
func NewDiscard() Logger {
	l := NewLogger(uint32(log.PanicLevel))
	l.SetWriter(io.Discard)
	return l
}

func (l *logger) Writer() io.Writer {
	return l.Out
}

func (l *logger) SetWriter(writer io.Writer) {
	l.Out = writer
}
