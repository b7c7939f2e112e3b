package log

import (
	"log/slog"
	"os"
	"sync/atomic"
)

type rootHolder struct{ Logger }

var root atomic.Pointer[rootHolder]

func init() {
	root.Store(&rootHolder{NewLogger(DiscardHandler())})
}

// SetDefault sets the default global logger. Records written through package
// slog end up in the same handler.
func SetDefault(l Logger) {
	root.Store(&rootHolder{l})
	if lg, ok := l.(*logger); ok {
		slog.SetDefault(lg.inner)
	}
}

// Root returns the root logger
func Root() Logger {
	return root.Load().Logger
}

// The package level functions call Write directly so that every path to a
// handler has the same call depth and the recorded source position is the
// caller's.

func Trace(msg string, ctx ...interface{}) { Root().Write(LevelTrace, msg, ctx...) }
func Debug(msg string, ctx ...interface{}) { Root().Write(LevelDebug, msg, ctx...) }
func Info(msg string, ctx ...interface{})  { Root().Write(LevelInfo, msg, ctx...) }
func Warn(msg string, ctx ...interface{})  { Root().Write(LevelWarn, msg, ctx...) }
func Error(msg string, ctx ...interface{}) { Root().Write(LevelError, msg, ctx...) }

// Crit logs at the crit level and exits.
func Crit(msg string, ctx ...interface{}) {
	Root().Write(LevelCrit, msg, ctx...)
	os.Exit(1)
}

// New returns a new logger with the given context.
// New is a convenient alias for Root().New
func New(ctx ...interface{}) Logger {
	return Root().With(ctx...)
}
