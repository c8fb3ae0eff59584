package notify

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/m3rciful/cargobot/core/logger"

	tele "gopkg.in/telebot.v4"
)

// captionLimit is Telegram's maximum caption length.
const captionLimit = 1024

// Transport performs a single delivery attempt.
type Transport interface {
	Deliver(ctx context.Context, m Message) error
}

// Bot is the part of *tele.Bot used for outbound messages.
type Bot interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
	SendAlbum(to tele.Recipient, a tele.Album, opts ...interface{}) ([]tele.Message, error)
}

// TelegramTransport sends text, a single photo or an album.
type TelegramTransport struct {
	bot      Bot
	mediaDir string
}

// NewTelegramTransport resolves photo paths against mediaDir.
func NewTelegramTransport(bot Bot, mediaDir string) *TelegramTransport {
	return &TelegramTransport{bot: bot, mediaDir: mediaDir}
}

// Deliver sends m once. Missing image files are skipped.
func (t *TelegramTransport) Deliver(ctx context.Context, m Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	to := tele.ChatID(m.ChatID)
	opts := &tele.SendOptions{ParseMode: tele.ModeHTML, DisableWebPagePreview: true}

	photos := t.existing(ctx, m.Photos)
	if len(photos) == 0 {
		_, err := t.bot.Send(to, m.Text, opts)
		return err
	}

	caption := m.Text
	separate := utf8.RuneCountInString(caption) > captionLimit
	if separate {
		caption = ""
	}

	var err error
	if len(photos) == 1 {
		_, err = t.bot.Send(to, &tele.Photo{File: tele.FromDisk(photos[0]), Caption: caption}, opts)
	} else {
		album := make(tele.Album, 0, len(photos))
		for i, p := range photos {
			ph := &tele.Photo{File: tele.FromDisk(p)}
			if i == 0 {
				ph.Caption = caption
			}
			album = append(album, ph)
		}
		_, err = t.bot.SendAlbum(to, album, opts)
	}
	if err != nil || !separate {
		return err
	}
	_, err = t.bot.Send(to, m.Text, opts)
	return err
}

func (t *TelegramTransport) existing(ctx context.Context, rel []string) []string {
	out := make([]string, 0, len(rel))
	for _, r := range rel {
		if r == "" {
			continue
		}
		p := filepath.Join(t.mediaDir, filepath.Clean("/"+r))
		if _, err := os.Stat(p); err != nil {
			logger.Notify.LogAttrs(ctx, slog.LevelWarn, "photo skipped",
				slog.String("event", "notify.photo_missing"),
				slog.String("path", r),
				slog.String("err", err.Error()),
			)
			continue
		}
		out = append(out, p)
	}
	return out
}
