package logger

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func render(t *testing.T, format logFormat, ctx context.Context, component string, level slog.Level, event string, attrs ...slog.Attr) string {
	t.Helper()
	buf := &bytes.Buffer{}
	aw := newAsyncWriter([]io.Writer{buf}, 1024)
	h := newStructuredHandler(handlerConfig{
		level:    slog.LevelDebug,
		writer:   aw,
		format:   format,
		keyOrder: append([]string(nil), defaultKeyOrder...),
	})
	LogEvent(ctx, slog.New(h).With("component", component), level, event, attrs...)
	require.NoError(t, aw.Close())
	return strings.TrimSpace(buf.String())
}

func TestStructuredHandlerKVOrder(t *testing.T) {
	ctx := WithUpdateMeta(WithRID(context.Background(), "rid-123"), 42, 7, 9)
	line := render(t, formatKV, ctx, "service.shipments", slog.LevelInfo, "shipment.created",
		slog.String("shipment_id", "AB12CD34"),
		slog.String("status", "OK"),
	)

	tokens := strings.Split(line, " ")
	expected := []string{"ts=", "level=INFO", "component=service.shipments", "event=shipment.created", "status=ok", "rid=rid-123", "update_id=42", "user_id=7", "chat_id=9"}
	require.GreaterOrEqual(t, len(tokens), len(expected), line)
	for i, prefix := range expected {
		assert.Truef(t, strings.HasPrefix(tokens[i], prefix), "token %d = %s, want prefix %s", i, tokens[i], prefix)
	}
	assert.Contains(t, line, "shipment_id=AB12CD34")
}

func TestStructuredHandlerJSONOrder(t *testing.T) {
	ctx := WithRID(context.Background(), "rid-json")
	line := render(t, formatJSON, ctx, "notify", slog.LevelError, "notify.failed",
		slog.String("status", "fail"),
		slog.Any("err", errors.New("boom")),
		slog.String("err_code", "DELIVERY"),
	)

	require.True(t, strings.HasPrefix(line, "{"), line)
	pos := -1
	for _, pref := range []string{`{"ts":`, `"level":"ERROR"`, `"component":"notify"`, `"event":"notify.failed"`, `"status":"fail"`, `"rid":"rid-json"`, `"err":"boom"`} {
		idx := strings.Index(line, pref)
		require.Truef(t, idx > pos, "prefix %s not found in order within %s", pref, line)
		pos = idx
	}
}

func TestStructuredHandlerCompactRID(t *testing.T) {
	raw := "123:456:789"
	ctx := WithRID(context.Background(), raw)

	kv := render(t, formatKV, ctx, "app", slog.LevelInfo, "rid.test")
	assert.Contains(t, kv, "rid="+CompactRID(raw))
	assert.NotContains(t, kv, "rid_full=")

	js := render(t, formatJSON, ctx, "app", slog.LevelInfo, "rid.test")
	assert.Contains(t, js, `"rid":"`+CompactRID(raw)+`"`)
	assert.Contains(t, js, `"rid_full":"`+raw+`"`)
	assert.Contains(t, js, `"ts_unix_nano"`)
}

func TestStructuredHandlerNormalizesDurationsAndEnums(t *testing.T) {
	line := render(t, formatKV, context.Background(), "tg", slog.LevelInfo, "send.ok",
		slog.Duration("duration", 1500*time.Microsecond),
		slog.Duration("backoff", 2*time.Second),
		slog.String("outcome", "weird"),
		slog.String("empty", ""),
	)
	assert.Contains(t, line, "duration_ms=2")
	assert.Contains(t, line, "backoff_ms=2000")
	assert.NotContains(t, line, "outcome=")
	assert.NotContains(t, line, "empty=")
}

func TestStructuredHandlerGroups(t *testing.T) {
	line := render(t, formatKV, context.Background(), "http", slog.LevelInfo, "request",
		slog.Group("req", slog.String("method", "GET"), slog.Int("code", 200)),
	)
	assert.Contains(t, line, "req.method=GET")
	assert.Contains(t, line, "req.code=200")
}

func TestCompactRID(t *testing.T) {
	assert.Equal(t, "3f.co.lx", CompactRID("123:456:789"))
	assert.Equal(t, "not-a-rid", CompactRID("not-a-rid"))
	assert.Equal(t, "1:x:2", CompactRID("1:x:2"))
}

func TestRatioSampler(t *testing.T) {
	s := newRatioSampler(1, 3)
	var allowed int
	for i := 0; i < 9; i++ {
		if s.Allow() {
			allowed++
		}
	}
	assert.Equal(t, 3, allowed)

	s.Set(0, 0)
	assert.True(t, s.Allow())

	num, den := parseRatioSpec("2/10")
	assert.Equal(t, 2, num)
	assert.Equal(t, 10, den)
	num, den = parseRatioSpec("25")
	assert.Equal(t, 1, num)
	assert.Equal(t, 25, den)
}

func TestSanitizeLimit(t *testing.T) {
	assert.Equal(t, "ab\tc", Sanitize("a\x00b\tc\u200b"))
	assert.Equal(t, "при", SanitizeLimit("привет", 3))
	assert.Equal(t, "", SanitizeLimit("x", 0))
}
