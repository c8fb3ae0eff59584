// Package adminapi serves the HTTP admin surface. Every mutation runs as
// the web system actor and goes through the same service calls as the bot.
package adminapi

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"github.com/m3rciful/cargobot/core/logger"
	"github.com/m3rciful/cargobot/internal/service"
)

// Server holds the Fiber application.
type Server struct {
	App  *fiber.App
	addr string
}

// Options configures the server.
type Options struct {
	Listen string
	// Token is the bearer token required on /api routes.
	Token string
}

// New builds the application and registers the routes.
func New(svc *service.Service, opts Options) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		AppName:               "cargobot-admin",
		ReadTimeout:           15 * time.Second,
		WriteTimeout:          30 * time.Second,
	})
	app.Use(requestid.New(requestid.Config{Header: "X-Request-ID"}))
	app.Use(recover.New())
	app.Use(requestLogger)

	h := &handler{svc: svc}
	app.Get("/healthz", h.health)

	api := app.Group("/api", bearerAuth(opts.Token))
	api.Get("/shipments", h.listShipments)
	api.Get("/shipments/:id", h.getShipment)
	api.Get("/shipments/:id/history", h.history)
	api.Patch("/shipments/:id/status", h.setStatus)
	api.Patch("/shipments/:id/comment", h.setComment)
	api.Get("/stats", h.stats)
	api.Get("/export.csv", h.export)

	return &Server{App: app, addr: opts.Listen}
}

// Run listens until Shutdown is called.
func (s *Server) Run() error {
	logger.HTTP.Info("admin api listening",
		slog.String("event", "http.listen"),
		slog.String("addr", s.addr),
	)
	return s.App.Listen(s.addr)
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.App.ShutdownWithContext(ctx)
}

func bearerAuth(token string) fiber.Handler {
	want := []byte("Bearer " + token)
	return func(c *fiber.Ctx) error {
		got := []byte(strings.TrimSpace(c.Get(fiber.HeaderAuthorization)))
		if token == "" || subtle.ConstantTimeCompare(got, want) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
				Message:   "Unauthorized",
				RequestID: requestID(c),
			})
		}
		return c.Next()
	}
}

func requestLogger(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	status := c.Response().StatusCode()
	if err != nil {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		} else {
			status = fiber.StatusInternalServerError
		}
	}
	level := slog.LevelInfo
	if status >= fiber.StatusInternalServerError {
		level = slog.LevelError
	}
	logger.HTTP.LogAttrs(c.UserContext(), level, "",
		slog.String("event", "http.request"),
		slog.String("method", c.Method()),
		slog.String("path", c.Path()),
		slog.Int("code", status),
		slog.String("request_id", requestID(c)),
		slog.Duration("duration", logger.Took(start)),
	)
	return err
}

func requestID(c *fiber.Ctx) string {
	if id, ok := c.Locals("requestid").(string); ok {
		return id
	}
	return "unknown"
}
