// Package bot adapts the dialogue engine and the shipment service to
// Telegram updates.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/m3rciful/cargobot/core/logger"
	tg "github.com/m3rciful/cargobot/core/telegram"
	"github.com/m3rciful/cargobot/core/telegram/commands"
	"github.com/m3rciful/cargobot/core/telegram/helpers"
	"github.com/m3rciful/cargobot/internal/conversation"
	"github.com/m3rciful/cargobot/internal/service"
	"github.com/m3rciful/cargobot/internal/shipment"

	tele "gopkg.in/telebot.v4"
)

// Callback unique keys.
const (
	CbStatusSet = "status_set"
	CbFavorite  = "fav"
	CbComment   = "comment"
	CbPage      = "page"
)

// Handlers owns the Telegram-facing behaviour.
type Handlers struct {
	svc    *service.Service
	engine *conversation.Engine
}

// New builds the handlers.
func New(svc *service.Service, engine *conversation.Engine) *Handlers {
	return &Handlers{svc: svc, engine: engine}
}

// Register adds the commands, callbacks and the text fallback to reg.
func (h *Handlers) Register(reg *tg.Registry) error {
	reg.RegisterCommand(conversation.CmdStart, commands.Command{
		Handler:     h.dialogueCommand(conversation.CmdStart),
		Description: "Main menu",
		Aliases:     []string{"menu"},
	})
	reg.RegisterCommand(conversation.CmdCancel, commands.Command{
		Handler:     h.dialogueCommand(conversation.CmdCancel),
		Description: "Cancel the current action",
	})
	reg.RegisterCommand("/new", commands.Command{
		Handler:     h.dialogueButton(conversation.BtnNewShipment),
		Description: "Register a shipment",
	})
	reg.RegisterCommand("/list", commands.Command{
		Handler:     h.dialogueButton(conversation.BtnWeek),
		Description: "Shipments of the last 7 days",
	})
	reg.RegisterCommand("/favorites", commands.Command{
		Handler:     h.dialogueButton(conversation.BtnFavorites),
		Description: "Favorite shipments",
		Hidden:      true,
	})
	reg.RegisterCommand("/admin", commands.Command{
		Handler:     h.onAdmin,
		Description: "Admin panel",
		AdminOnly:   true,
	})
	reg.RegisterCommand("/stats", commands.Command{
		Handler:     h.onStats,
		Description: "Shipment statistics",
		AdminOnly:   true,
	})
	reg.RegisterCommand("/export", commands.Command{
		Handler:     h.onExport,
		Description: "Export shipments as CSV",
		AdminOnly:   true,
	})
	reg.RegisterCommand("/broadcast", commands.Command{
		Handler:     h.onBroadcast,
		Description: "Message every subscribed user",
		AdminOnly:   true,
	})

	for key, fn := range map[string]tele.HandlerFunc{
		CbStatusSet: h.onStatusSet,
		CbFavorite:  h.onFavorite,
		CbComment:   h.onComment,
		CbPage:      h.onPage,
	} {
		if err := reg.RegisterCallback(key, fn); err != nil {
			return err
		}
	}
	reg.SetCallbackNotFound(h.onStaleButton)
	reg.SetTextFallback(h.HandleUpdate)
	return nil
}

// Active reports whether the sender is inside a dialogue step.
func (h *Handlers) Active(c tele.Context) bool {
	if c.Sender() == nil {
		return false
	}
	return h.engine.Active(helpers.BuildContext(c), c.Sender().ID)
}

// HandleUpdate feeds a text, photo or document update to the engine.
func (h *Handlers) HandleUpdate(c tele.Context) error {
	u, err := h.user(c)
	if err != nil {
		return err
	}
	in := inputFrom(c, u)
	if in.Text == "" && in.Photo == nil {
		return helpers.SendHTML(c, "⚠️ Only text and photos are understood here.")
	}
	return h.handle(c, u, in)
}

func (h *Handlers) handle(c tele.Context, u shipment.User, in conversation.Input) error {
	ctx := helpers.BuildContext(c)
	r, err := h.engine.Handle(ctx, in)
	if err != nil {
		h.logFailure(ctx, "dialogue", err)
		return helpers.SendHTML(c, errorText(err))
	}
	return h.reply(c, shipment.ActorFor(u), r)
}

func (h *Handlers) dialogueCommand(cmd string) tele.HandlerFunc {
	return func(c tele.Context) error {
		u, err := h.user(c)
		if err != nil {
			return err
		}
		return h.handle(c, u, conversation.Input{User: u, ChatID: c.Chat().ID, Command: cmd})
	}
}

// dialogueButton makes a command behave like pressing a main menu button.
func (h *Handlers) dialogueButton(label string) tele.HandlerFunc {
	return func(c tele.Context) error {
		u, err := h.user(c)
		if err != nil {
			return err
		}
		if _, err := h.engine.Handle(helpers.BuildContext(c), conversation.Input{User: u, Command: conversation.CmdCancel}); err != nil {
			return err
		}
		return h.handle(c, u, conversation.Input{User: u, ChatID: c.Chat().ID, Text: label})
	}
}

// IsAdmin is the command gate.
func (h *Handlers) IsAdmin(c tele.Context, telegramID int64) bool {
	u, err := h.svc.UserByTelegramID(helpers.BuildContext(c), telegramID)
	return err == nil && u.IsAdmin
}

// RejectAdmin answers non-admins calling admin commands.
func (h *Handlers) RejectAdmin(c tele.Context) error {
	return helpers.SendHTML(c, "⛔ This command is for administrators.")
}

// user registers the sender on every update so profile changes are kept.
func (h *Handlers) user(c tele.Context) (shipment.User, error) {
	s := c.Sender()
	if s == nil {
		return shipment.User{}, fmt.Errorf("update without sender: %w", shipment.ErrValidation)
	}
	return h.svc.Register(helpers.BuildContext(c), service.Profile{
		TelegramID: s.ID,
		Username:   s.Username,
		FirstName:  s.FirstName,
		LastName:   s.LastName,
	})
}

// inputFrom reduces a message update to engine input. Image documents
// count as photos.
func inputFrom(c tele.Context, u shipment.User) conversation.Input {
	in := conversation.Input{User: u, Text: strings.TrimSpace(c.Text())}
	if chat := c.Chat(); chat != nil {
		in.ChatID = chat.ID
	}
	msg := c.Message()
	if msg == nil {
		return in
	}
	switch {
	case msg.Photo != nil:
		in.Photo = &conversation.Photo{FileID: msg.Photo.FileID, UniqueID: msg.Photo.UniqueID}
	case msg.Document != nil && strings.HasPrefix(msg.Document.MIME, "image/"):
		in.Photo = &conversation.Photo{FileID: msg.Document.FileID, UniqueID: msg.Document.UniqueID}
	}
	if in.Photo != nil {
		in.Text = ""
	}
	return in
}

func (h *Handlers) logFailure(ctx context.Context, op string, err error) {
	level := slog.LevelWarn
	if errors.Is(err, shipment.ErrPersistence) || shipment.Code(err) == "internal" {
		level = slog.LevelError
	}
	logger.TG.LogAttrs(ctx, level, "operation failed",
		slog.String("event", "bot."+op),
		slog.String("status", "fail"),
		slog.String("err_code", shipment.Code(err)),
		slog.String("err", err.Error()),
	)
}

// errorText is the short user-facing form of a domain error.
func errorText(err error) string {
	var te *shipment.TransitionError
	switch {
	case errors.As(err, &te):
		return fmt.Sprintf("⚠️ Cannot change status from %s to %s.", te.From.Label(), te.To.Label())
	case errors.Is(err, shipment.ErrNotFound):
		return "⚠️ Shipment not found."
	case errors.Is(err, shipment.ErrPermission):
		return "⛔ You cannot change this shipment."
	case errors.Is(err, shipment.ErrValidation):
		return "⚠️ Invalid value."
	}
	return "⚠️ Something went wrong, please try again later."
}
