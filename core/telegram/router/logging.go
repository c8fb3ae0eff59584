package router

import (
	"errors"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/m3rciful/cargobot/core/logger"
	tghelpers "github.com/m3rciful/cargobot/core/telegram/helpers"
	"github.com/m3rciful/cargobot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

const statusSkip = "skip"

// summary emits one "handler.handled" record per routed update.
type summary struct {
	name   string
	start  time.Time
	extras []slog.Attr
}

func newSummary(name string, start time.Time, extras ...slog.Attr) summary {
	return summary{name: normalizeHandlerName(name), start: start, extras: extras}
}

// run tags the context with the handler name, calls fn and logs the result.
func (s summary) run(c tele.Context, fn func() error) error {
	tghelpers.WithHandler(c, s.name)
	err := fn()
	s.log(c, "", err)
	return err
}

// log writes the record; an empty status is derived from err.
func (s summary) log(c tele.Context, status string, err error) {
	ctx := tghelpers.WithHandler(c, s.name)
	msgs, kb := middleware.GetCounters(c)

	outcome := "ok"
	if err != nil {
		outcome = "fail"
	}
	if status == "" {
		status = outcome
	}

	attrs := make([]slog.Attr, 0, 9+len(s.extras))
	attrs = append(attrs,
		slog.String("status", status),
		slog.String("handler", s.name),
		slog.String("outcome", outcome),
		slog.Int("messages", msgs),
		slog.Bool("kb", kb),
		slog.Duration("duration", logger.RoundMS(time.Since(s.start))),
	)
	if err != nil {
		attrs = append(attrs,
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			slog.String("err_code", deriveErrorCode(err)),
			slog.String("cause", s.name),
		)
	}
	attrs = append(attrs, s.extras...)

	level := slog.LevelInfo
	if err != nil {
		level = slog.LevelWarn
	}
	logger.LogEvent(ctx, logger.TG, level, "handler.handled", attrs...)
}

// normalizeHandlerName turns "/Start now" into "start_now". Dots are kept
// so "callback.status_set" survives.
func normalizeHandlerName(name string) string {
	name = strings.TrimPrefix(strings.TrimSpace(name), "/")
	if name == "" {
		return "unknown"
	}
	return strings.ToLower(strings.ReplaceAll(name, " ", "_"))
}

// deriveErrorCode prefers a Code() method anywhere in the chain and falls
// back to the concrete type name.
func deriveErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var c interface{ Code() string }
	if errors.As(err, &c) {
		if code := strings.TrimSpace(c.Code()); code != "" {
			return strings.ToUpper(strings.ReplaceAll(code, " ", "_"))
		}
	}
	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Name() == "" {
		return "UNKNOWN_ERROR"
	}
	return strings.ToUpper(t.Name())
}
