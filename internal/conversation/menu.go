package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/m3rciful/cargobot/core/telegram/format"
	"github.com/m3rciful/cargobot/core/telegram/helpers"
	"github.com/m3rciful/cargobot/core/telegram/state"
	"github.com/m3rciful/cargobot/internal/service"
	"github.com/m3rciful/cargobot/internal/shipment"
)

func (e *Engine) onMenu(ctx context.Context, t *turn, text string) (Reply, error) {
	admin := t.actor.Privileged()
	switch {
	case text == BtnNewShipment:
		return e.startCreate(t), nil
	case text == BtnWeek:
		return e.list(ctx, t, Listing{Days: 7}, 1)
	case text == BtnMonth:
		return e.list(ctx, t, Listing{Days: 30}, 1)
	case text == BtnFavorites:
		return e.list(ctx, t, Listing{Favorites: true}, 1)
	case text == BtnAll && admin:
		return e.list(ctx, t, Listing{All: true}, 1)
	case text == BtnSearch:
		t.session.Data = Draft{}
		t.move(StateSearchQuery)
		return e.prompt(t, ""), nil
	case text == BtnSettings:
		t.session.Data = Draft{}
		t.move(StateSettings)
		return e.settings(t, t.in.User.NotificationsEnabled, ""), nil
	case text == BtnStats && admin:
		return e.stats(ctx, t)
	case text == BtnBroadcast && admin:
		t.session.Data = Draft{}
		t.move(StateAdminBroadcast)
		return e.prompt(t, ""), nil
	}
	return e.mainMenu(t, "Choose an action from the menu."), nil
}

func (e *Engine) list(ctx context.Context, t *turn, l Listing, page int) (Reply, error) {
	p, err := e.backend.List(ctx, t.actor, l.query(page))
	if err != nil {
		if r, ok := e.userError(t, err); ok {
			return r, nil
		}
		return Reply{}, err
	}
	t.session.Data = Draft{Listing: &l}
	t.move(StateMainMenu)
	r := e.mainMenu(t, listingTitle(l, p))
	r.Page = &p
	return r, nil
}

func listingTitle(l Listing, p service.Page) string {
	var what string
	switch {
	case l.Favorites:
		what = "⭐ Favorites"
	case l.All:
		what = "🗂 All shipments"
	case l.Waybill != "":
		what = "🔍 Waybill " + format.Escape(l.Waybill)
	case !l.Date.IsZero():
		what = "🗓 " + l.Date.Format("02.01.2006")
	default:
		what = fmt.Sprintf("📋 Last %d days", l.Days)
	}
	if p.Total == 0 {
		return what + "\n\nNothing found."
	}
	return fmt.Sprintf("%s\n\nFound %d, page %d of %d.", what, p.Total, p.Page, p.Pages())
}

// Paginate shows another page of the last listing.
func (e *Engine) Paginate(ctx context.Context, in Input, page int) (Reply, error) {
	unlock := e.lock(in.User.TelegramID)
	defer unlock()

	t := &turn{in: in, actor: shipment.ActorFor(in.User)}
	s, err := e.sessions.Get(ctx, in.User.TelegramID)
	if err != nil || s.Data.Listing == nil {
		t.reset()
		return e.mainMenu(t, "This list has expired, open it again from the menu."), nil
	}
	t.session = s
	r, err := e.list(ctx, t, *s.Data.Listing, page)
	if err != nil {
		return Reply{}, err
	}
	if err := e.persist(ctx, in.User.TelegramID, t); err != nil {
		return Reply{}, err
	}
	return r, nil
}

func (e *Engine) onSearch(ctx context.Context, t *turn, text string) (Reply, error) {
	if text == BtnBack {
		t.reset()
		return e.mainMenu(t, "Main menu."), nil
	}
	raw, forced := strings.CutPrefix(strings.TrimSpace(text), WaybillPrefix)
	waybill, err := shipment.CleanText("waybill_number", raw)
	if err != nil {
		return e.prompt(t, textError(err, "search text")), nil
	}
	if !forced && !e.hasWaybill(ctx, t, waybill) {
		if date, ok := helpers.ParseDate(waybill, e.backend.Location()); ok {
			return e.list(ctx, t, Listing{Date: date}, 1)
		}
	}
	return e.list(ctx, t, Listing{Waybill: waybill}, 1)
}

// hasWaybill reports whether the actor can see a shipment with exactly this
// waybill number. Date-shaped waybill numbers win over a date search.
func (e *Engine) hasWaybill(ctx context.Context, t *turn, waybill string) bool {
	p, err := e.backend.List(ctx, t.actor, Listing{Waybill: waybill}.query(1))
	return err == nil && p.Total > 0
}

// BeginComment opens the comment editor for a shipment the user may modify.
// A shipment being created is kept: the user is asked to finish or cancel
// it first.
func (e *Engine) BeginComment(ctx context.Context, in Input, shipmentID string) (Reply, error) {
	unlock := e.lock(in.User.TelegramID)
	defer unlock()

	t := &turn{in: in, actor: shipment.ActorFor(in.User)}
	if s, err := e.sessions.Get(ctx, in.User.TelegramID); err == nil {
		if _, creating := previous[s.State]; creating {
			t.session = s
			return e.prompt(t, "⚠️ Finish or cancel the current shipment first."), nil
		}
	}
	if _, err := e.backend.Shipment(ctx, t.actor, shipmentID); err != nil {
		if r, ok := e.userError(t, err); ok {
			return r, nil
		}
		return Reply{}, err
	}
	t.session = state.Session[Draft]{State: StateCommentEdit, Data: Draft{Target: shipmentID}}
	if err := e.persist(ctx, in.User.TelegramID, t); err != nil {
		return Reply{}, err
	}
	return e.prompt(t, ""), nil
}

func (e *Engine) onCommentEdit(ctx context.Context, t *turn, text string) (Reply, error) {
	if text == BtnBack {
		t.reset()
		return e.mainMenu(t, "Main menu."), nil
	}
	if t.in.Photo != nil || text == "" {
		return e.prompt(t, "⚠️ Send the comment as text."), nil
	}
	if isSkip(text) {
		text = ""
	}
	sh, err := e.backend.SetComment(ctx, t.actor, t.session.Data.Target, text)
	if err != nil {
		if r, ok := e.userError(t, err); ok {
			return r, nil
		}
		return Reply{}, err
	}
	t.reset()
	if sh.Comment == nil {
		return e.mainMenu(t, "💬 Comment of "+format.Code(sh.ID)+" cleared."), nil
	}
	return e.mainMenu(t, "💬 Comment of "+format.Code(sh.ID)+" saved."), nil
}

func (e *Engine) onSettings(ctx context.Context, t *turn, text string) (Reply, error) {
	switch text {
	case BtnBack:
		t.reset()
		return e.mainMenu(t, "Main menu."), nil
	case BtnToggle:
		enabled, err := e.backend.ToggleNotifications(ctx, t.in.User)
		if err != nil {
			return Reply{}, err
		}
		return e.settings(t, enabled, "✅ Saved."), nil
	}
	return e.settings(t, t.in.User.NotificationsEnabled, "⚠️ Use the buttons below."), nil
}

func (e *Engine) onBroadcast(ctx context.Context, t *turn, text string) (Reply, error) {
	if text == BtnBack {
		t.reset()
		return e.mainMenu(t, "Main menu."), nil
	}
	n, err := e.backend.Broadcast(ctx, t.actor, text)
	var ve *shipment.ValidationError
	switch {
	case errors.As(err, &ve):
		return e.prompt(t, "⚠️ The text must not be empty and at most 4000 characters."), nil
	case err != nil:
		if r, ok := e.userError(t, err); ok {
			return r, nil
		}
		return Reply{}, err
	}
	t.reset()
	return e.mainMenu(t, fmt.Sprintf("📢 Broadcast queued for %d users.", n)), nil
}

func (e *Engine) stats(ctx context.Context, t *turn) (Reply, error) {
	st, err := e.backend.Stats(ctx)
	if err != nil {
		return Reply{}, err
	}
	return e.mainMenu(t, StatsText(st)), nil
}

// StatsText renders the admin statistics block.
func StatsText(st service.Stats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 Statistics\n\nShipments: %d\nUsers: %d\n", st.Total, st.Users)
	for _, s := range shipment.Statuses {
		fmt.Fprintf(&b, "\n%s: %d", format.Escape(s.Label()), st.ByStatus[s])
	}
	return b.String()
}

// userError turns the domain errors a user can cause into a menu reply.
func (e *Engine) userError(t *turn, err error) (Reply, bool) {
	var msg string
	switch {
	case errors.Is(err, shipment.ErrNotFound):
		msg = "⚠️ Shipment not found."
	case errors.Is(err, shipment.ErrPermission):
		msg = "⛔ You cannot change this shipment."
	default:
		return Reply{}, false
	}
	t.reset()
	return e.mainMenu(t, msg), true
}
