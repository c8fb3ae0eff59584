package router

import (
	"log/slog"
	"time"

	tg "github.com/m3rciful/cargobot/core/telegram"
	"github.com/m3rciful/cargobot/core/telegram/callbacks"

	tele "gopkg.in/telebot.v4"
)

// CallbackOptions customises fallback behaviour for callbacks.
type CallbackOptions struct {
	NotFound tele.HandlerFunc
	// KeepSpinner leaves the callback unanswered so the handler can respond itself.
	KeepSpinner bool
}

// CallbackRoute returns a handler that routes callbacks through the registry.
// Global middlewares registered with bot.Use already wrap it.
func CallbackRoute(reg *tg.Registry, opts CallbackOptions) tg.Route {
	handler := func(c tele.Context) error {
		start := time.Now()
		if c.Callback() == nil {
			return nil
		}

		key, _ := callbacks.ParseCallbackData(c.Callback())

		if !opts.KeepSpinner {
			_ = c.Respond()
		}

		if h, ok := reg.GetCallback(key); ok && h != nil {
			return newSummary("callback."+key, start, slog.String("cb_key", key)).run(c, func() error {
				return h(c)
			})
		}

		fallback := reg.CallbackNotFound()
		if fallback == nil {
			fallback = opts.NotFound
		}
		s := newSummary("callback."+key, start, slog.String("cb_key", key), slog.String("reason", "not_found"))
		if fallback == nil {
			s.log(c, statusSkip, nil)
			return nil
		}
		return s.run(c, func() error { return fallback(c) })
	}
	return tg.Route{Endpoint: tele.OnCallback, Handler: handler}
}
