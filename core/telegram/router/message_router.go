package router

import (
	"time"

	tg "github.com/m3rciful/cargobot/core/telegram"

	tele "gopkg.in/telebot.v4"
)

// Conversation is the per-user dialogue that owns free-form input.
type Conversation interface {
	// Active reports whether the user has an unfinished dialogue.
	Active(c tele.Context) bool
	HandleUpdate(c tele.Context) error
}

// MessageOptions controls fallback behaviour for text, photo and document updates.
type MessageOptions struct {
	UnknownText     tele.HandlerFunc
	UnknownPhoto    tele.HandlerFunc
	UnknownDocument tele.HandlerFunc
}

// MessageRoutes builds handlers for text, photo and document updates.
// An active conversation takes precedence over command aliases and fallbacks.
func MessageRoutes(conv Conversation, reg *tg.Registry, opts MessageOptions) []tg.Route {
	active := func(c tele.Context) bool {
		return conv != nil && c.Sender() != nil && conv.Active(c)
	}

	text := func(c tele.Context) error {
		start := time.Now()

		if active(c) {
			return newSummary("conversation", start).run(c, func() error {
				return conv.HandleUpdate(c)
			})
		}

		if reg != nil {
			if key, cmd, ok := reg.LookupCommand(c.Text()); ok && cmd.Handler != nil {
				return newSummary(key, start).run(c, func() error {
					return cmd.Handler(c)
				})
			}
			if fb := reg.TextFallback(); fb != nil {
				return newSummary("fallback", start).run(c, func() error {
					return fb(c)
				})
			}
		}

		return unknown(c, "unknown_text", start, opts.UnknownText)
	}

	media := func(name string, fallback tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			start := time.Now()
			if active(c) {
				return newSummary("conversation_"+name, start).run(c, func() error {
					return conv.HandleUpdate(c)
				})
			}
			return unknown(c, "unexpected_"+name, start, fallback)
		}
	}

	return []tg.Route{
		{Endpoint: tele.OnText, Handler: text},
		{Endpoint: tele.OnPhoto, Handler: media("photo", opts.UnknownPhoto)},
		{Endpoint: tele.OnDocument, Handler: media("document", opts.UnknownDocument)},
	}
}

// unknown runs h for input nobody expects, or just logs a skip without one.
func unknown(c tele.Context, name string, start time.Time, h tele.HandlerFunc) error {
	s := newSummary(name, start)
	if h == nil {
		s.log(c, statusSkip, nil)
		return nil
	}
	return s.run(c, func() error { return h(c) })
}
