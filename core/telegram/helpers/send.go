package helpers

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/m3rciful/cargobot/core/logger"
	"github.com/m3rciful/cargobot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

var globalDispatcher atomic.Pointer[sender.Dispatcher]

// SetDispatcher wires the worker pool used for replies. nil restores direct sends.
func SetDispatcher(d *sender.Dispatcher) {
	globalDispatcher.Store(d)
}

// sendAsync hands run to the dispatcher and falls back to a direct call
// when the queue is unavailable.
func sendAsync(c tele.Context, action, endpoint string, run func() error) error {
	disp := globalDispatcher.Load()
	if disp == nil {
		return run()
	}
	ctx := BuildContext(c)
	err := disp.TryEnqueue(ctx, action, endpoint, func(context.Context) error { return run() }, nil)
	if errors.Is(err, sender.ErrQueueFull) || errors.Is(err, sender.ErrQueueClosed) {
		logger.Warn(ctx, "tg.sender", "queue.fallback",
			slog.String("operation", action),
			slog.String("err", err.Error()),
		)
		return run()
	}
	return err
}

// Do runs a batch of sends as one dispatcher job so their order is kept.
func Do(c tele.Context, action string, run func() error) error {
	return sendAsync(c, action, "batch", run)
}

// SendHTML replies with HTML parse mode and optional markup.
func SendHTML(c tele.Context, text string, markup ...*tele.ReplyMarkup) error {
	opts := &tele.SendOptions{ParseMode: tele.ModeHTML, DisableWebPagePreview: true}
	if len(markup) > 0 {
		opts.ReplyMarkup = markup[0]
	}
	return sendAsync(c, "send.html", "sendMessage", func() error {
		return c.Send(text, opts)
	})
}

// EditOrSendHTML edits the callback message or sends a new one.
func EditOrSendHTML(c tele.Context, text string, markup ...*tele.ReplyMarkup) error {
	opts := &tele.SendOptions{ParseMode: tele.ModeHTML, DisableWebPagePreview: true}
	if len(markup) > 0 {
		opts.ReplyMarkup = markup[0]
	}
	return c.EditOrSend(text, opts)
}
