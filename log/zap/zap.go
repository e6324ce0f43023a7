// Package zap adapts a *zap.Logger to cachepool.Logger.
package zap

import (
	"maps"
	"slices"

	"go.uber.org/zap"

	"github.com/unkn0wn-root/cachepool"
)

var _ cachepool.Logger = Logger{}

type Logger struct{ L *zap.Logger }

// New wraps l, adding a component=cachepool field. A nil l yields a no-op logger.
func New(l *zap.Logger) Logger {
	if l == nil {
		l = zap.NewNop()
	}
	return Logger{L: l.With(zap.String("component", "cachepool"))}
}

func (z Logger) Debug(msg string, f cachepool.Fields) { z.L.Debug(msg, fields(f)...) }
func (z Logger) Info(msg string, f cachepool.Fields)  { z.L.Info(msg, fields(f)...) }
func (z Logger) Warn(msg string, f cachepool.Fields)  { z.L.Warn(msg, fields(f)...) }
func (z Logger) Error(msg string, f cachepool.Fields) { z.L.Error(msg, fields(f)...) }

// fields emits keys in sorted order so log lines are stable.
func fields(f cachepool.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(f))
	for _, k := range slices.Sorted(maps.Keys(f)) {
		if err, ok := f[k].(error); ok {
			out = append(out, zap.NamedError(k, err))
			continue
		}
		out = append(out, zap.Any(k, f[k]))
	}
	return out
}
