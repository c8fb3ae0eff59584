// Package app wires the cargobot components together.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/robfig/cron/v3"

	"github.com/m3rciful/cargobot/core/bootstrap"
	"github.com/m3rciful/cargobot/core/logger"
	tg "github.com/m3rciful/cargobot/core/telegram"
	"github.com/m3rciful/cargobot/core/telegram/helpers"
	"github.com/m3rciful/cargobot/core/telegram/router"
	"github.com/m3rciful/cargobot/core/telegram/sender"
	"github.com/m3rciful/cargobot/core/telegram/state"
	"github.com/m3rciful/cargobot/internal/adminapi"
	"github.com/m3rciful/cargobot/internal/bot"
	"github.com/m3rciful/cargobot/internal/config"
	"github.com/m3rciful/cargobot/internal/conversation"
	"github.com/m3rciful/cargobot/internal/events"
	"github.com/m3rciful/cargobot/internal/notify"
	"github.com/m3rciful/cargobot/internal/service"
	"github.com/m3rciful/cargobot/internal/store"
	"github.com/m3rciful/cargobot/migrations"

	tele "gopkg.in/telebot.v4"
)

// App holds the initialized runtime.
type App struct {
	cfg        *config.Config
	db         *sqlx.DB
	bot        *tele.Bot
	dispatcher *sender.Dispatcher
	registry   *tg.Registry
	handlers   *bot.Handlers
	publisher  events.Publisher
	api        *adminapi.Server

	sessions state.Store[conversation.Draft]
	sweeper  *cron.Cron
	closers  []func() error
}

// Bootstrap prepares the database, the bot and every service. Resources
// opened before a failure are released.
func Bootstrap(ctx context.Context, cfg *config.Config) (_ *App, err error) {
	a := &App{cfg: cfg, registry: tg.NewRegistry()}
	defer func() {
		if err != nil {
			_ = a.close()
		}
	}()

	res, err := bootstrap.Run(ctx, bootstrap.Options{
		Config:     cfg.CoreConfig(),
		Database:   cfg.Database,
		Migrations: migrations.FS,
		Modules: bootstrap.Modules{Seeders: []bootstrap.Seeder{
			service.AdminSeeder(cfg.Telegram.Admins()),
		}},
	})
	if err != nil {
		return nil, err
	}
	a.db = res.DB
	a.closers = append(a.closers, a.db.Close)

	if a.bot, err = tg.NewBot(cfg.CoreConfig()); err != nil {
		return nil, err
	}
	a.dispatcher = sender.NewDispatcher(sender.Options{
		Workers:     cfg.Notify.Workers,
		QueueSize:   cfg.Notify.QueueSize,
		MaxAttempts: cfg.Notify.MaxAttempts,
		BaseDelay:   time.Duration(cfg.Notify.BaseDelayMS) * time.Millisecond,
		MaxDuration: time.Duration(cfg.Notify.MaxDurationMS) * time.Millisecond,
	})
	a.closers = append(a.closers, func() error { a.dispatcher.Close(); return nil })

	if a.publisher, err = events.New(cfg.Events); err != nil {
		return nil, fmt.Errorf("events: %w", err)
	}
	a.closers = append(a.closers, a.publisher.Close)

	if err := a.openSessions(ctx); err != nil {
		return nil, err
	}

	sink := notify.NewSink(notify.NewTelegramTransport(a.bot, cfg.Media.Dir), a.dispatcher)
	svc := service.New(service.Options{
		Store:        store.New(a.db),
		Notifier:     notify.NewNotifier(sink, cfg.Notify.OpsChatID),
		Events:       a.publisher,
		IsAdmin:      cfg.Telegram.IsAdmin,
		EventTimeout: cfg.Events.Timeout(),
		Location:     cfg.Location(),
	})
	engine := conversation.New(conversation.Options{
		Sessions: a.sessions,
		Backend:  svc,
		Photos:   bot.NewMediaStore(a.bot, cfg.Media.Dir, int64(cfg.Media.MaxPhotoMB)<<20),
		Cities:   cfg.Cities,
	})
	a.handlers = bot.New(svc, engine)
	if err := a.handlers.Register(a.registry); err != nil {
		return nil, err
	}

	if cfg.AdminAPI.Enabled {
		a.api = adminapi.New(svc, adminapi.Options{Listen: cfg.AdminAPI.Listen, Token: cfg.AdminAPI.Token})
	}
	return a, nil
}

func (a *App) openSessions(ctx context.Context) error {
	ttl := a.cfg.Session.TTL()
	if a.cfg.Session.Driver != config.SessionRedis {
		a.sessions = state.NewMemoryStore[conversation.Draft](ttl)
		return nil
	}
	rs, err := state.NewRedisStore[conversation.Draft](a.cfg.Session.RedisURL, a.cfg.Session.RedisKey, ttl)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, rs.Close)
	if err := rs.Ping(ctx); err != nil {
		return err
	}
	a.sessions = rs
	return nil
}

// TelegramRunOptions builds the runtime options for the bot: global
// middlewares, routes and the lifecycle of the sweeper and the admin API.
func (a *App) TelegramRunOptions() (tg.RunOptions, error) {
	h := a.handlers
	routes := router.CommandRoutes(a.registry, router.CommandRouteOptions{
		IsAdmin:       h.IsAdmin,
		OnAdminReject: h.RejectAdmin,
	})
	routes = append(routes, router.MessageRoutes(h, a.registry, router.MessageOptions{
		UnknownPhoto:    unexpectedMedia,
		UnknownDocument: unexpectedMedia,
	})...)
	routes = append(routes, router.CallbackRoute(a.registry, router.CallbackOptions{KeepSpinner: true}))

	return tg.RunOptions{
		Config:      a.cfg.CoreConfig(),
		Bot:         a.bot,
		Registry:    a.registry,
		Dispatcher:  a.dispatcher,
		Middlewares: tg.DefaultMiddlewares(a.cfg.CoreConfig(), onLimited),
		Routes:      routes,
		OnStart:     a.start,
		OnStop:      a.stop,
	}, nil
}

func (a *App) start(ctx context.Context, _ tg.Runtime) error {
	if mem, ok := a.sessions.(*state.MemoryStore[conversation.Draft]); ok {
		c, err := state.StartSweeper(ctx, a.cfg.Session.SweepSpec, mem)
		if err != nil {
			return err
		}
		a.sweeper = c
	}
	if a.api != nil {
		go func() {
			if err := a.api.Run(); err != nil {
				logger.HTTP.Error("admin api stopped",
					slog.String("event", "http.listen"),
					slog.String("status", "fail"),
					slog.String("err", err.Error()),
				)
			}
		}()
	}
	return nil
}

func (a *App) stop(ctx context.Context, _ tg.Runtime) error {
	if a.sweeper != nil {
		<-a.sweeper.Stop().Done()
	}
	var errs []error
	if a.api != nil {
		sctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		errs = append(errs, a.api.Shutdown(sctx))
		cancel()
	}
	errs = append(errs, a.close())
	return errors.Join(errs...)
}

// close releases resources in reverse order of acquisition.
func (a *App) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

func onLimited(c tele.Context) error {
	if c.Callback() != nil {
		return c.Respond(&tele.CallbackResponse{Text: "Too many requests, slow down."})
	}
	return nil
}

func unexpectedMedia(c tele.Context) error {
	return helpers.SendHTML(c, "Open the menu with /start to send photos for a new shipment.")
}
