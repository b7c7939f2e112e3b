package log

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"runtime"
	"slices"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/holiman/uint256"
)

const (
	timeFormat        = "2006-01-02T15:04:05-0700"
	termMsgJust       = 40
	termCtxMaxPadding = 40

	// termPayloadMax bounds the length of a JSON payload printed to the terminal.
	termPayloadMax = 160
)

var spaces = []byte("                                        ")

// TerminalStringer is implemented by types that have a shorter form for
// terminal output than their String method, e.g. truncated identifiers.
type TerminalStringer interface {
	TerminalString() string
}

// redactedHeaders are header values never written to a log.
var redactedHeaders = []string{"Authorization", "Cookie", "Proxy-Authorization"}

var levelColors = map[slog.Level]string{
	LevelCrit:  "\x1b[35m",
	LevelError: "\x1b[31m",
	LevelWarn:  "\x1b[33m",
	LevelInfo:  "\x1b[32m",
	LevelDebug: "\x1b[36m",
	LevelTrace: "\x1b[34m",
}

// format renders a record as
//
//	LEVEL[MM-DD|HH:MM:SS.mmm] message                                  key=value key=value
func (h *TerminalHandler) format(buf []byte, r slog.Record, usecolor bool) []byte {
	var color string
	if usecolor {
		color = levelColors[r.Level]
	}
	b := bytes.NewBuffer(buf)
	writeColored(b, color, LevelAlignedString(r.Level))
	b.WriteByte('[')
	writeTimeTermFormat(b, r.Time)
	b.WriteString("] ")
	if h.lvl <= LevelTrace && r.PC != 0 {
		f, _ := runtime.CallersFrames([]uintptr{r.PC}).Next()
		fmt.Fprintf(b, "%s:%d ", shortFile(f.File), f.Line)
	}
	msg := escapeMessage(r.Message)
	b.WriteString(msg)

	nattrs := len(h.attrs) + r.NumAttrs()
	if nattrs > 0 && len(msg) < termMsgJust {
		b.Write(spaces[:termMsgJust-len(msg)])
	}
	i := 0
	write := func(attr slog.Attr) bool {
		h.writeAttr(b, attr, color, i == nattrs-1)
		i++
		return true
	}
	for _, attr := range h.attrs {
		write(attr)
	}
	r.Attrs(write)
	b.WriteByte('\n')
	return b.Bytes()
}

// writeAttr writes " key=value", padding the value to the widest one seen for
// the key so consecutive lines stay aligned.
func (h *TerminalHandler) writeAttr(b *bytes.Buffer, attr slog.Attr, color string, last bool) {
	b.WriteByte(' ')
	writeColored(b, color, string(appendEscapeString(nil, attr.Key)))
	b.WriteByte('=')

	val := FormatSlogValue(attr.Value, b.AvailableBuffer())
	length := utf8.RuneCount(val)
	padding := h.fieldPadding[attr.Key]
	if padding < length && length <= termCtxMaxPadding {
		padding = length
		h.fieldPadding[attr.Key] = padding
	}
	b.Write(val)
	if !last && padding > length {
		b.Write(spaces[:padding-length])
	}
}

func writeColored(b *bytes.Buffer, color, s string) {
	if color == "" {
		b.WriteString(s)
		return
	}
	b.WriteString(color)
	b.WriteString(s)
	b.WriteString("\x1b[0m")
}

// FormatSlogValue formats a slog.Value for serialization to terminal.
func FormatSlogValue(v slog.Value, tmp []byte) []byte {
	switch v.Kind() {
	case slog.KindString:
		return appendEscapeString(tmp, v.String())
	case slog.KindInt64:
		return appendGrouped(tmp, strconv.FormatInt(v.Int64(), 10))
	case slog.KindUint64:
		return appendGrouped(tmp, strconv.FormatUint(v.Uint64(), 10))
	case slog.KindFloat64:
		return strconv.AppendFloat(tmp, v.Float64(), 'f', 3, 64)
	case slog.KindBool:
		return strconv.AppendBool(tmp, v.Bool())
	case slog.KindDuration:
		return appendEscapeString(tmp, v.Duration().String())
	case slog.KindTime:
		return v.Time().AppendFormat(tmp, timeFormat)
	}
	value := v.Any()
	if isNil(value) {
		return append(tmp, "<nil>"...)
	}
	switch v := value.(type) {
	case json.RawMessage:
		return appendEscapeString(tmp, string(truncatePayload(v, termPayloadMax)))
	case http.Header:
		return appendEscapeString(tmp, headerString(v))
	case *uint256.Int:
		return appendGrouped(tmp, v.Dec())
	case error:
		return appendEscapeString(tmp, v.Error())
	case TerminalStringer:
		return appendEscapeString(tmp, v.TerminalString())
	case fmt.Stringer:
		return appendEscapeString(tmp, v.String())
	case []byte:
		return appendEscapeString(tmp, string(v))
	}
	return appendEscapeString(tmp, fmt.Sprintf("%+v", value))
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

// appendGrouped appends a decimal number with thousand separators, keeping
// numbers below 100000 as they are.
func appendGrouped(dst []byte, num string) []byte {
	digits := num
	if len(num) > 0 && num[0] == '-' {
		dst = append(dst, '-')
		digits = num[1:]
	}
	if len(digits) <= 5 {
		return append(dst, digits...)
	}
	lead := len(digits) % 3
	if lead == 0 {
		lead = 3
	}
	dst = append(dst, digits[:lead]...)
	for i := lead; i < len(digits); i += 3 {
		dst = append(dst, ',')
		dst = append(dst, digits[i:i+3]...)
	}
	return dst
}

// FormatLogfmtUint64 formats n with thousand separators.
func FormatLogfmtUint64(n uint64) string {
	return string(appendGrouped(nil, strconv.FormatUint(n, 10)))
}

// truncatePayload compacts a JSON payload and cuts it to at most max bytes.
func truncatePayload(msg json.RawMessage, max int) []byte {
	var b bytes.Buffer
	if json.Compact(&b, msg) != nil {
		b.Reset()
		b.Write(msg)
	}
	if b.Len() <= max {
		return b.Bytes()
	}
	out := b.Bytes()[:max]
	for len(out) > 0 && !utf8.Valid(out) {
		out = out[:len(out)-1]
	}
	return fmt.Appendf(out, "...(%d bytes)", b.Len())
}

// headerString renders a header with credentials replaced.
func headerString(h http.Header) string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var b bytes.Buffer
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte(':')
		if slices.Contains(redactedHeaders, http.CanonicalHeaderKey(k)) {
			b.WriteString("<redacted>")
		} else {
			b.WriteString(h.Get(k))
		}
	}
	return b.String()
}

// appendEscapeString quotes s when it contains spaces or '=', and escapes
// it when it contains control characters, quotes or non-ASCII runes.
func appendEscapeString(dst []byte, s string) []byte {
	quote := false
	for _, r := range s {
		switch {
		case r <= '"' && r != ' ', r > '~':
			return strconv.AppendQuote(dst, s)
		case r == ' ', r == '=':
			quote = true
		}
	}
	if !quote {
		return append(dst, s...)
	}
	dst = append(dst, '"')
	dst = append(dst, s...)
	return append(dst, '"')
}

// escapeMessage quotes a message only when it contains control characters
// other than line breaks and tabs, non-ASCII runes or '='.
func escapeMessage(s string) string {
	for _, r := range s {
		if r == '\r' || r == '\n' || r == '\t' {
			continue
		}
		if r < ' ' || r > '~' || r == '=' {
			return strconv.Quote(s)
		}
	}
	return s
}

// writeTimeTermFormat writes t as "MM-DD|HH:MM:SS.mmm".
func writeTimeTermFormat(buf *bytes.Buffer, t time.Time) {
	buf.Write(t.AppendFormat(buf.AvailableBuffer(), "01-02|15:04:05.000"))
}

// shortFile returns the last two elements of a source path.
func shortFile(path string) string {
	slash := 0
	for i := len(path) - 1; i > 0; i-- {
		if path[i] == '/' {
			if slash++; slash == 2 {
				return path[i+1:]
			}
		}
	}
	return path
}
