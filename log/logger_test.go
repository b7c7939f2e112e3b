package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteTimeTermFormat(t *testing.T) {
	var b bytes.Buffer
	ts := time.Date(2024, time.March, 7, 9, 5, 3, 42*int(time.Millisecond), time.UTC)
	writeTimeTermFormat(&b, ts)
	assert.Equal(t, "03-07|09:05:03.042", b.String())
}

func TestTerminalHandlerAttrs(t *testing.T) {
	var out bytes.Buffer
	l := NewLogger(NewTerminalHandlerWithLevel(&out, LevelInfo, false))
	l.Info("Connection open", "conn", "abc", "code", 1000)
	l.Debug("hidden")

	line := out.String()
	assert.True(t, strings.HasPrefix(line, "INFO ["), line)
	assert.Contains(t, line, "Connection open")
	assert.Contains(t, line, "conn=abc")
	assert.Contains(t, line, "code=1000")
	assert.NotContains(t, line, "hidden")
}

func TestLoggerOddArguments(t *testing.T) {
	var out bytes.Buffer
	l := NewLogger(NewTerminalHandler(&out, false))
	l.Info("odd", "key")
	assert.Contains(t, out.String(), errorKey)
}

func TestFormatSlogValue(t *testing.T) {
	tests := []struct {
		in   slog.Value
		want string
	}{
		{slog.StringValue("plain"), "plain"},
		{slog.StringValue("with space"), `"with space"`},
		{slog.StringValue("quote\""), `"quote\""`},
		{slog.Int64Value(-1234567), "-1,234,567"},
		{slog.Uint64Value(99999), "99999"},
		{slog.BoolValue(true), "true"},
		{slog.AnyValue(errors.New("boom")), "boom"},
		{slog.Uint64Value(123456), "123,456"},
		{slog.AnyValue(uint256.NewInt(1000000)), "1,000,000"},
		{slog.AnyValue((*uint256.Int)(nil)), "<nil>"},
		{slog.AnyValue(nil), "<nil>"},
		{slog.DurationValue(1500 * time.Millisecond), "1.5s"},
		{slog.AnyValue(json.RawMessage(`{ "id": 1 }`)), `{"id":1}`},
		{slog.AnyValue(http.Header{"Authorization": {"Bearer x"}, "X-Id": {"7"}}), "Authorization:<redacted>,X-Id:7"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, string(FormatSlogValue(tt.in, nil)), "value %v", tt.in)
	}
}

func TestJSONHandlerLevelKey(t *testing.T) {
	var out bytes.Buffer
	l := NewLogger(JSONHandlerWithLevel(&out, LevelWarn))
	l.Info("skipped")
	l.Warn("kept", "n", uint256.NewInt(7))

	s := out.String()
	assert.NotContains(t, s, "skipped")
	assert.Contains(t, s, `"lvl":"warn"`)
	assert.Contains(t, s, `"n":"7"`)
}

func TestGlogVmodule(t *testing.T) {
	var out bytes.Buffer
	h := NewGlogHandler(NewTerminalHandler(&out, false))
	h.Verbosity(LevelInfo)
	l := NewLogger(h)

	l.Debug("filtered")
	assert.Empty(t, out.String())

	require.NoError(t, h.Vmodule("logger_test.go=4"))
	l.Debug("allowed")
	assert.Contains(t, out.String(), "allowed")

	assert.ErrorIs(t, h.Vmodule("nolevel"), errVmoduleSyntax)
}

func TestRootDefault(t *testing.T) {
	prev := Root()
	defer SetDefault(prev)

	var out bytes.Buffer
	SetDefault(NewLogger(NewTerminalHandler(&out, false)))
	New("conn", "x").Warn("via root")
	assert.Contains(t, out.String(), "conn=x")
}

func TestFromLegacyLevel(t *testing.T) {
	assert.Equal(t, LevelCrit, FromLegacyLevel(0))
	assert.Equal(t, LevelInfo, FromLegacyLevel(3))
	assert.Equal(t, LevelTrace, FromLegacyLevel(9))
	assert.Equal(t, LevelCrit, FromLegacyLevel(-3))
}

func TestTruncatePayload(t *testing.T) {
	long := json.RawMessage(`{"jsonrpc":"2.0","result":"` + strings.Repeat("a", 200) + `"}`)
	out := string(truncatePayload(long, 20))
	assert.Equal(t, `{"jsonrpc":"2.0","re...(229 bytes)`, out)

	assert.Equal(t, "not json", string(truncatePayload(json.RawMessage("not json"), 20)))
}

func TestLogfmtHandler(t *testing.T) {
	var out bytes.Buffer
	l := NewLogger(LogfmtHandlerWithLevel(&out, LevelDebug))
	l.Trace("skipped")
	l.Debug("Request sent", "header", http.Header{"Cookie": {"secret"}})

	s := out.String()
	assert.NotContains(t, s, "skipped")
	assert.Contains(t, s, "lvl=debug")
	assert.Contains(t, s, `header=Cookie:<redacted>`)
	assert.NotContains(t, s, "secret")
}

func TestShortFile(t *testing.T) {
	assert.Equal(t, "rpc/client.go", shortFile("/home/u/go-wsrpc/rpc/client.go"))
	assert.Equal(t, "client.go", shortFile("client.go"))
}
