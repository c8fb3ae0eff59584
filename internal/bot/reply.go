package bot

import (
	"fmt"
	"strconv"

	"github.com/m3rciful/cargobot/core/telegram/callbacks"
	"github.com/m3rciful/cargobot/core/telegram/helpers"
	"github.com/m3rciful/cargobot/core/telegram/keyboard"
	"github.com/m3rciful/cargobot/internal/conversation"
	"github.com/m3rciful/cargobot/internal/notify"
	"github.com/m3rciful/cargobot/internal/service"
	"github.com/m3rciful/cargobot/internal/shipment"

	tele "gopkg.in/telebot.v4"
)

func htmlOpts(markup *tele.ReplyMarkup) *tele.SendOptions {
	return &tele.SendOptions{ParseMode: tele.ModeHTML, DisableWebPagePreview: true, ReplyMarkup: markup}
}

func replyMarkup(r conversation.Reply) *tele.ReplyMarkup {
	switch {
	case len(r.Keyboard) > 0:
		return keyboard.ReplyButtons(r.Keyboard...)
	case r.RemoveKeyboard:
		return keyboard.RemoveKeyboard()
	}
	return nil
}

// reply sends the engine reply and, for listings, one card per shipment
// followed by the pager. The batch runs as one job to keep its order.
func (h *Handlers) reply(c tele.Context, actor shipment.Actor, r conversation.Reply) error {
	ctx := helpers.BuildContext(c)
	type card struct {
		text   string
		markup *tele.ReplyMarkup
	}
	var cards []card
	if r.Page != nil {
		for _, sh := range r.Page.Items {
			fav, err := h.svc.IsFavorite(ctx, actor, sh.ID)
			if err != nil {
				h.logFailure(ctx, "favorite", err)
			}
			cards = append(cards, card{text: notify.Card(sh), markup: cardKeyboard(actor, sh, fav)})
		}
	}
	var pager *tele.ReplyMarkup
	if r.Page != nil && r.Page.Pages() > 1 {
		pager = pagerKeyboard(*r.Page)
	}

	return helpers.Do(c, "dialogue.reply", func() error {
		if err := c.Send(r.Text, htmlOpts(replyMarkup(r))); err != nil {
			return err
		}
		for _, cd := range cards {
			if err := c.Send(cd.text, htmlOpts(cd.markup)); err != nil {
				return err
			}
		}
		if pager != nil {
			return c.Send(fmt.Sprintf("Page %d of %d", r.Page.Page, r.Page.Pages()), htmlOpts(pager))
		}
		return nil
	})
}

// cardKeyboard offers the allowed status changes to owners and admins,
// plus favorite and comment actions.
func cardKeyboard(actor shipment.Actor, sh shipment.Shipment, favorite bool) *tele.ReplyMarkup {
	var rows [][]keyboard.InlineBtn
	if actor.CanModify(sh) {
		var status []keyboard.InlineBtn
		for _, next := range sh.Status.Next() {
			status = append(status, keyboard.InlineBtn{
				Text:   next.Label(),
				Unique: CbStatusSet,
				Data:   callbacks.Join(sh.ID, string(next)),
			})
		}
		rows = append(rows, keyboard.Chunk(status, 2)...)
	}
	favText := "⭐ Favorite"
	if favorite {
		favText = "✖️ Unfavorite"
	}
	actions := []keyboard.InlineBtn{{Text: favText, Unique: CbFavorite, Data: sh.ID}}
	if actor.CanModify(sh) {
		actions = append(actions, keyboard.InlineBtn{Text: "💬 Comment", Unique: CbComment, Data: sh.ID})
	}
	rows = append(rows, actions)
	return keyboard.InlineButtonsRows(rows...)
}

func pagerKeyboard(p service.Page) *tele.ReplyMarkup {
	var row []keyboard.InlineBtn
	if p.HasPrev() {
		row = append(row, keyboard.InlineBtn{Text: "◀️ Prev", Unique: CbPage, Data: strconv.Itoa(p.Page - 1)})
	}
	if p.HasNext() {
		row = append(row, keyboard.InlineBtn{Text: "Next ▶️", Unique: CbPage, Data: strconv.Itoa(p.Page + 1)})
	}
	return keyboard.InlineButtonsRows(row)
}
