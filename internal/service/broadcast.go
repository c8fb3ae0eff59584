package service

import (
	"context"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/m3rciful/cargobot/core/logger"
	"github.com/m3rciful/cargobot/core/telegram/format"
	"github.com/m3rciful/cargobot/internal/shipment"
)

// MaxBroadcastLen is Telegram's message length limit minus the header.
const MaxBroadcastLen = 4000

// Broadcast queues text for every user with notifications enabled and
// returns how many messages were accepted for delivery. Only privileged
// actors may broadcast.
func (s *Service) Broadcast(ctx context.Context, actor shipment.Actor, text string) (int, error) {
	if !actor.Privileged() {
		return 0, denied(actor, "*")
	}
	text = strings.TrimSpace(text)
	switch {
	case text == "":
		return 0, shipment.Invalid("text", "must not be empty")
	case utf8.RuneCountInString(text) > MaxBroadcastLen:
		return 0, shipment.Invalid("text", "too long")
	}
	users, err := s.store.NotifiableUsers(ctx)
	if err != nil {
		return 0, persistence(err)
	}
	if s.notifier == nil {
		return 0, nil
	}
	body := "📢 " + format.Escape(text)
	queued := 0
	for _, u := range users {
		if err := s.notifier.Broadcast(ctx, u.TelegramID, body); err == nil {
			queued++
		}
	}
	level := slog.LevelInfo
	if queued < len(users) {
		level = slog.LevelWarn
	}
	logger.SVCUsers.LogAttrs(ctx, level, "broadcast queued",
		slog.String("event", "broadcast"),
		slog.String("actor", actor.Label()),
		slog.Int("count", queued),
		slog.Int("dropped", len(users)-queued),
	)
	return queued, nil
}
