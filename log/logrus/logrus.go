package logrus

import (
	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/cacheaside"
)

var _ cacheaside.Logger = LogrusLogger{}

type LogrusLogger struct{ E *logrus.Entry }

// New wraps a logger with an optional component field.
func New(l *logrus.Logger, component string) LogrusLogger {
	e := logrus.NewEntry(l)
	if component != "" {
		e = e.WithField("component", component)
	}
	return LogrusLogger{E: e}
}

func (l LogrusLogger) Debug(msg string, f cacheaside.Fields) { l.with(f).Debug(msg) }
func (l LogrusLogger) Info(msg string, f cacheaside.Fields)  { l.with(f).Info(msg) }
func (l LogrusLogger) Warn(msg string, f cacheaside.Fields)  { l.with(f).Warn(msg) }
func (l LogrusLogger) Error(msg string, f cacheaside.Fields) { l.with(f).Error(msg) }

// with maps "err" onto logrus' error key so formatters render it as such.
func (l LogrusLogger) with(f cacheaside.Fields) *logrus.Entry {
	e := l.E
	for k, v := range f {
		if err, ok := v.(error); ok && k == "err" {
			e = e.WithError(err)
			continue
		}
		e = e.WithField(k, v)
	}
	return e
}
