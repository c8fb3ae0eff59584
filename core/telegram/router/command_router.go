package router

import (
	"log/slog"
	"sort"
	"time"

	"github.com/m3rciful/cargobot/core/logger"
	tg "github.com/m3rciful/cargobot/core/telegram"
	"github.com/m3rciful/cargobot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// CommandRouteOptions configures the admin gate for admin-only commands.
type CommandRouteOptions struct {
	IsAdmin       func(c tele.Context, telegramID int64) bool
	OnAdminReject tele.HandlerFunc
}

// CommandRoutes prepares one route per registered command. Admin-only
// commands are gated; every command logs a handler summary.
func CommandRoutes(reg *tg.Registry, opts CommandRouteOptions) []tg.Route {
	if reg == nil {
		return nil
	}

	gate := middleware.AdminOnlyMiddleware(middleware.AdminOptions{
		IsAdmin:  opts.IsAdmin,
		OnReject: opts.OnAdminReject,
	})

	cmds := reg.Commands()
	names := make([]string, 0, len(cmds))
	for name := range cmds {
		names = append(names, name)
	}
	sort.Strings(names)

	routes := make([]tg.Route, 0, len(names))
	for _, cmd := range names {
		def := cmds[cmd]
		name, inner := cmd, def.Handler
		h := func(c tele.Context) error {
			return newSummary(name, time.Now()).run(c, func() error { return inner(c) })
		}
		if def.AdminOnly {
			h = gate(h)
		}
		routes = append(routes, tg.Route{Endpoint: cmd, Handler: h})
	}

	logger.TWire.Info("tg.wire",
		slog.String("event", "complete"),
		slog.Int("commands", len(cmds)),
		slog.Int("callbacks", len(reg.ListCallbacks())),
	)

	return routes
}
