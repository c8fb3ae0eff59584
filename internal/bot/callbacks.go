package bot

import (
	"log/slog"
	"strconv"

	"github.com/m3rciful/cargobot/core/logger"
	"github.com/m3rciful/cargobot/core/telegram/callbacks"
	"github.com/m3rciful/cargobot/core/telegram/helpers"
	"github.com/m3rciful/cargobot/internal/conversation"
	"github.com/m3rciful/cargobot/internal/notify"
	"github.com/m3rciful/cargobot/internal/shipment"

	tele "gopkg.in/telebot.v4"
)

const staleButtonText = "This button is no longer active."

func respond(c tele.Context, text string, alert bool) error {
	return c.Respond(&tele.CallbackResponse{Text: text, ShowAlert: alert})
}

// onStatusSet handles "status_set" with payload "<id>|<status>".
func (h *Handlers) onStatusSet(c tele.Context) error {
	u, err := h.user(c)
	if err != nil {
		return err
	}
	ctx := helpers.BuildContext(c)
	actor := shipment.ActorFor(u)

	id, value := callbacks.PayloadPair(c)
	to, err := shipment.ParseStatus(value)
	if err != nil {
		return respond(c, errorText(err), true)
	}
	updated, err := h.svc.UpdateStatus(ctx, id, to, actor)
	if err != nil {
		h.logFailure(ctx, "status", err)
		return respond(c, errorText(err), true)
	}
	if err := respond(c, "Status: "+to.Label(), false); err != nil {
		return err
	}
	fav, _ := h.svc.IsFavorite(ctx, actor, id)
	return helpers.EditOrSendHTML(c, notify.Card(updated), cardKeyboard(actor, updated, fav))
}

// onFavorite toggles the favorite mark of the payload shipment.
func (h *Handlers) onFavorite(c tele.Context) error {
	u, err := h.user(c)
	if err != nil {
		return err
	}
	ctx := helpers.BuildContext(c)
	actor := shipment.ActorFor(u)

	id := callbacks.CallbackPayload(c)
	on, err := h.svc.ToggleFavorite(ctx, actor, id)
	if err != nil {
		h.logFailure(ctx, "favorite", err)
		return respond(c, errorText(err), true)
	}
	text := "Removed from favorites"
	if on {
		text = "Added to favorites"
	}
	if err := respond(c, text, false); err != nil {
		return err
	}
	sh, err := h.svc.Shipment(ctx, actor, id)
	if err != nil {
		return nil
	}
	return c.Edit(notify.Card(sh), htmlOpts(cardKeyboard(actor, sh, on)))
}

// onComment opens the comment editor.
func (h *Handlers) onComment(c tele.Context) error {
	u, err := h.user(c)
	if err != nil {
		return err
	}
	ctx := helpers.BuildContext(c)
	r, err := h.engine.BeginComment(ctx, conversation.Input{User: u, ChatID: c.Chat().ID}, callbacks.CallbackPayload(c))
	if err != nil {
		h.logFailure(ctx, "comment", err)
		return respond(c, errorText(err), true)
	}
	if err := c.Respond(); err != nil {
		return err
	}
	return h.reply(c, shipment.ActorFor(u), r)
}

// onPage shows another page of the last listing.
func (h *Handlers) onPage(c tele.Context) error {
	u, err := h.user(c)
	if err != nil {
		return err
	}
	page, err := strconv.Atoi(callbacks.CallbackPayload(c))
	if err != nil || page < 1 {
		return respond(c, "Unsupported action", false)
	}
	ctx := helpers.BuildContext(c)
	r, err := h.engine.Paginate(ctx, conversation.Input{User: u, ChatID: c.Chat().ID}, page)
	if err != nil {
		h.logFailure(ctx, "page", err)
		return respond(c, errorText(err), true)
	}
	if err := c.Respond(); err != nil {
		return err
	}
	return h.reply(c, shipment.ActorFor(u), r)
}

// onStaleButton answers callbacks from keyboards of an older release.
func (h *Handlers) onStaleButton(c tele.Context) error {
	logger.TG.LogAttrs(helpers.BuildContext(c), slog.LevelDebug, "stale callback",
		slog.String("event", "tg.callback"),
		slog.String("status", "skip"),
		slog.String("cb_key", callbacks.CallbackKey(c)),
	)
	return respond(c, staleButtonText, false)
}
