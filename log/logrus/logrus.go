// Package logrus adapts a logrus entry to cachepool.Logger.
package logrus

import (
	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/cachepool"
)

var _ cachepool.Logger = Logger{}

type Logger struct{ E *logrus.Entry }

// New wraps l with a component=cachepool field.
func New(l *logrus.Logger) Logger {
	return Logger{E: l.WithField("component", "cachepool")}
}

func (l Logger) Debug(msg string, f cachepool.Fields) { l.with(f).Debug(msg) }
func (l Logger) Info(msg string, f cachepool.Fields)  { l.with(f).Info(msg) }
func (l Logger) Warn(msg string, f cachepool.Fields)  { l.with(f).Warn(msg) }
func (l Logger) Error(msg string, f cachepool.Fields) { l.with(f).Error(msg) }

func (l Logger) with(f cachepool.Fields) *logrus.Entry {
	if len(f) == 0 {
		return l.E
	}
	e := l.E
	if err, ok := f["err"].(error); ok {
		e = e.WithError(err)
		f = withoutKey(f, "err")
	}
	return e.WithFields(logrus.Fields(f))
}

func withoutKey(f cachepool.Fields, key string) cachepool.Fields {
	out := make(cachepool.Fields, len(f))
	for k, v := range f {
		if k != key {
			out[k] = v
		}
	}
	return out
}
