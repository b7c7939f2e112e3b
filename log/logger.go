package log

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"time"
)

const errorKey = "LOG_ERROR"

// Levels below slog's own: Trace is used for per-frame transport logging.
const (
	levelMaxVerbosity slog.Level = -1 << 31

	LevelTrace slog.Level = -8
	LevelDebug            = slog.LevelDebug
	LevelInfo             = slog.LevelInfo
	LevelWarn             = slog.LevelWarn
	LevelError            = slog.LevelError
	LevelCrit  slog.Level = 12
)

// levelTable maps the numeric verbosity of the --verbosity flag (0=crit ... 5=trace)
// to slog levels.
var levelTable = [...]slog.Level{LevelCrit, LevelError, LevelWarn, LevelInfo, LevelDebug, LevelTrace}

// FromLegacyLevel converts a numeric verbosity to a level. Values out of range
// clamp to crit or trace.
func FromLegacyLevel(lvl int) slog.Level {
	switch {
	case lvl < 0:
		return LevelCrit
	case lvl >= len(levelTable):
		return LevelTrace
	}
	return levelTable[lvl]
}

type levelName struct {
	aligned string // 5 characters, for terminal output
	lower   string // for json and logfmt
}

var levelNames = map[slog.Level]levelName{
	LevelTrace: {"TRACE", "trace"},
	LevelDebug: {"DEBUG", "debug"},
	LevelInfo:  {"INFO ", "info"},
	LevelWarn:  {"WARN ", "warn"},
	LevelError: {"ERROR", "error"},
	LevelCrit:  {"CRIT ", "crit"},
}

// LevelAlignedString returns a 5-character string containing the name of a level.
func LevelAlignedString(l slog.Level) string {
	if n, ok := levelNames[l]; ok {
		return n.aligned
	}
	return "unknown level"
}

// LevelString returns the lower case name of a level.
func LevelString(l slog.Level) string {
	if n, ok := levelNames[l]; ok {
		return n.lower
	}
	return "unknown"
}

// A Logger writes key/value pairs to a Handler.
type Logger interface {
	// With returns a new Logger that has this logger's attributes plus the given attributes
	With(ctx ...interface{}) Logger

	// New is identical to With.
	New(ctx ...interface{}) Logger

	Trace(msg string, ctx ...interface{})
	Debug(msg string, ctx ...interface{})
	Info(msg string, ctx ...interface{})
	Warn(msg string, ctx ...interface{})
	Error(msg string, ctx ...interface{})

	// Crit logs a message at the crit level and exits the process.
	Crit(msg string, ctx ...interface{})

	// Write logs a message at the specified level
	Write(level slog.Level, msg string, attrs ...any)

	// Enabled reports whether l emits log records at the given context and level.
	Enabled(ctx context.Context, level slog.Level) bool

	// Handler returns the underlying handler of the inner logger.
	Handler() slog.Handler
}

type logger struct {
	inner *slog.Logger
}

// NewLogger returns a logger with the specified handler set
func NewLogger(h slog.Handler) Logger {
	return &logger{slog.New(h)}
}

func (l *logger) Handler() slog.Handler {
	return l.inner.Handler()
}

// Write logs a message at the specified level. The record's source position is
// the caller of the exported method, two frames up from here.
func (l *logger) Write(level slog.Level, msg string, attrs ...any) {
	ctx := context.Background()
	if !l.inner.Enabled(ctx, level) {
		return
	}
	var pcs [1]uintptr
	runtime.Callers(3, pcs[:])

	if len(attrs)%2 != 0 {
		attrs = append(attrs, nil, errorKey, "Normalized odd number of arguments by adding nil")
	}
	r := slog.NewRecord(time.Now(), level, msg, pcs[0])
	r.Add(attrs...)
	l.inner.Handler().Handle(ctx, r)
}

func (l *logger) With(ctx ...interface{}) Logger {
	return &logger{l.inner.With(ctx...)}
}

func (l *logger) New(ctx ...interface{}) Logger {
	return l.With(ctx...)
}

func (l *logger) Enabled(ctx context.Context, level slog.Level) bool {
	return l.inner.Enabled(ctx, level)
}

func (l *logger) Trace(msg string, ctx ...interface{}) { l.Write(LevelTrace, msg, ctx...) }
func (l *logger) Debug(msg string, ctx ...interface{}) { l.Write(LevelDebug, msg, ctx...) }
func (l *logger) Info(msg string, ctx ...interface{})  { l.Write(LevelInfo, msg, ctx...) }
func (l *logger) Warn(msg string, ctx ...interface{})  { l.Write(LevelWarn, msg, ctx...) }
func (l *logger) Error(msg string, ctx ...interface{}) { l.Write(LevelError, msg, ctx...) }

func (l *logger) Crit(msg string, ctx ...interface{}) {
	l.Write(LevelCrit, msg, ctx...)
	os.Exit(1)
}
