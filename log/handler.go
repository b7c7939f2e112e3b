package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/holiman/uint256"
)

type discardHandler struct{}

// DiscardHandler returns a no-op handler
func DiscardHandler() slog.Handler {
	return discardHandler{}
}

func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (h discardHandler) WithGroup(string) slog.Handler           { return h }
func (h discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return h }

// TerminalHandler writes human readable records, optionally colored by level.
type TerminalHandler struct {
	mu       sync.Mutex
	wr       io.Writer
	lvl      slog.Level
	useColor bool
	attrs    []slog.Attr

	// fieldPadding remembers the widest value seen per key so that
	// consecutive lines stay aligned.
	fieldPadding map[string]int

	buf []byte
}

// NewTerminalHandler returns a handler which formats records for a terminal:
//
//	INFO [05-16|20:58:45.123] Connection open                          conn=7a1f... url=ws://localhost:8546
func NewTerminalHandler(wr io.Writer, useColor bool) *TerminalHandler {
	return NewTerminalHandlerWithLevel(wr, levelMaxVerbosity, useColor)
}

// NewTerminalHandlerWithLevel is NewTerminalHandler with a minimum level.
func NewTerminalHandlerWithLevel(wr io.Writer, lvl slog.Level, useColor bool) *TerminalHandler {
	return &TerminalHandler{
		wr:           wr,
		lvl:          lvl,
		useColor:     useColor,
		fieldPadding: make(map[string]int),
	}
}

func (h *TerminalHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	buf := h.format(h.buf[:0], r, h.useColor)
	_, err := h.wr.Write(buf)
	h.buf = buf
	return err
}

func (h *TerminalHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.lvl
}

// WithGroup is not supported, attributes are always written flat.
func (h *TerminalHandler) WithGroup(name string) slog.Handler {
	return h
}

func (h *TerminalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &TerminalHandler{
		wr:           h.wr,
		lvl:          h.lvl,
		useColor:     h.useColor,
		attrs:        append(append([]slog.Attr{}, h.attrs...), attrs...),
		fieldPadding: make(map[string]int),
	}
}

// JSONHandler returns a handler which prints records in JSON format.
func JSONHandler(wr io.Writer) slog.Handler {
	return JSONHandlerWithLevel(wr, levelMaxVerbosity)
}

// JSONHandlerWithLevel returns a JSON handler which drops records below level.
func JSONHandlerWithLevel(wr io.Writer, level slog.Level) slog.Handler {
	return slog.NewJSONHandler(wr, &slog.HandlerOptions{
		ReplaceAttr: replaceAttr(false),
		Level:       level,
	})
}

// LogfmtHandler returns a handler which prints records in logfmt format.
func LogfmtHandler(wr io.Writer) slog.Handler {
	return LogfmtHandlerWithLevel(wr, levelMaxVerbosity)
}

// LogfmtHandlerWithLevel returns a logfmt handler which drops records below level.
func LogfmtHandlerWithLevel(wr io.Writer, level slog.Level) slog.Handler {
	return slog.NewTextHandler(wr, &slog.HandlerOptions{
		ReplaceAttr: replaceAttr(true),
		Level:       level,
	})
}

// replaceAttr renames the time and level keys to "t" and "lvl", and renders
// values the JSON and logfmt encoders would otherwise print badly.
func replaceAttr(logfmt bool) func([]string, slog.Attr) slog.Attr {
	return func(_ []string, attr slog.Attr) slog.Attr {
		switch attr.Key {
		case slog.TimeKey:
			if attr.Value.Kind() == slog.KindTime {
				if logfmt {
					return slog.String("t", attr.Value.Time().Format(timeFormat))
				}
				return slog.Attr{Key: "t", Value: attr.Value}
			}
		case slog.LevelKey:
			if l, ok := attr.Value.Any().(slog.Level); ok {
				return slog.String("lvl", LevelString(l))
			}
		}
		switch attr.Value.Kind() {
		case slog.KindTime:
			if logfmt {
				attr.Value = slog.StringValue(attr.Value.Time().Format(timeFormat))
			}
			return attr
		case slog.KindAny:
		default:
			return attr
		}
		switch v := attr.Value.Any().(type) {
		case http.Header:
			attr.Value = slog.StringValue(headerString(v))
		case *uint256.Int:
			if v == nil {
				attr.Value = slog.StringValue("<nil>")
			} else {
				attr.Value = slog.StringValue(v.Dec())
			}
		case fmt.Stringer:
			attr.Value = slog.StringValue(stringOrNil(v))
		}
		return attr
	}
}

func stringOrNil(v fmt.Stringer) string {
	if isNil(v) {
		return "<nil>"
	}
	return v.String()
}
