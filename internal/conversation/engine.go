// Package conversation drives the per-user shipment dialogue. It is
// transport-agnostic: the bot adapter turns updates into Input values and
// sends Reply values back.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/m3rciful/cargobot/core/logger"
	"github.com/m3rciful/cargobot/core/telegram/state"
	"github.com/m3rciful/cargobot/internal/shipment"
)

// Options wires an Engine.
type Options struct {
	Sessions state.Store[Draft]
	Backend  Backend
	Photos   PhotoStore
	// Cities are the preset city buttons.
	Cities []string
}

// Engine is safe for concurrent use; updates of one user are serialized.
type Engine struct {
	sessions state.Store[Draft]
	backend  Backend
	photos   PhotoStore
	cities   []string

	mu    sync.Mutex
	locks map[int64]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

// New builds an engine.
func New(opts Options) *Engine {
	return &Engine{
		sessions: opts.Sessions,
		backend:  opts.Backend,
		photos:   opts.Photos,
		cities:   append([]string(nil), opts.Cities...),
		locks:    make(map[int64]*userLock),
	}
}

func (e *Engine) lock(userID int64) func() {
	e.mu.Lock()
	l, ok := e.locks[userID]
	if !ok {
		l = &userLock{}
		e.locks[userID] = l
	}
	l.refs++
	e.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		e.mu.Lock()
		if l.refs--; l.refs == 0 {
			delete(e.locks, userID)
		}
		e.mu.Unlock()
	}
}

// turn is the state of one Handle call.
type turn struct {
	in      Input
	actor   shipment.Actor
	session state.Session[Draft]
	// drop deletes the session instead of saving it.
	drop bool
}

func (t *turn) move(to state.State) {
	t.session.State = to
	t.drop = to == StateMainMenu && t.session.Data.Listing == nil
}

func (t *turn) reset() {
	t.session = state.Session[Draft]{State: StateMainMenu}
	t.drop = true
}

// Active reports whether the user is inside a dialogue step that owns
// free-form input.
func (e *Engine) Active(ctx context.Context, userID int64) bool {
	s, err := e.sessions.Get(ctx, userID)
	return err == nil && s.State != StateMainMenu && s.State != state.StateIdle && s.State != ""
}

// Handle processes one input and returns the reply to send.
func (e *Engine) Handle(ctx context.Context, in Input) (Reply, error) {
	userID := in.User.TelegramID
	if userID == 0 {
		return Reply{}, shipment.Invalid("user", "missing identity")
	}
	unlock := e.lock(userID)
	defer unlock()

	t := &turn{in: in, actor: shipment.ActorFor(in.User)}
	s, err := e.sessions.Get(ctx, userID)
	switch {
	case errors.Is(err, state.ErrNoSession):
		t.reset()
	case err != nil:
		return Reply{}, fmt.Errorf("load session: %w", err)
	default:
		t.session = s
	}
	from := t.session.State

	reply, err := e.dispatch(ctx, t)
	if err != nil {
		return Reply{}, err
	}
	if err := e.persist(ctx, userID, t); err != nil {
		return Reply{}, err
	}

	if from != t.session.State {
		logger.Sessions.LogAttrs(ctx, slog.LevelDebug, "",
			slog.String("event", "dialogue.transition"),
			slog.Int64("user_id", userID),
			slog.String("from", string(from)),
			slog.String("to", string(t.session.State)),
		)
	}
	return reply, nil
}

func (e *Engine) persist(ctx context.Context, userID int64, t *turn) error {
	if t.drop {
		if err := e.sessions.Delete(ctx, userID); err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
		return nil
	}
	if err := e.sessions.Save(ctx, userID, t.session); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (e *Engine) dispatch(ctx context.Context, t *turn) (Reply, error) {
	cmd := strings.ToLower(strings.TrimSpace(t.in.Command))
	text := strings.TrimSpace(t.in.Text)

	switch {
	case cmd == CmdStart:
		t.reset()
		return e.mainMenu(t, "👋 Welcome! Choose an action."), nil
	case cmd == CmdCancel || text == BtnCancel:
		t.reset()
		return e.mainMenu(t, "❌ Cancelled."), nil
	}

	switch t.session.State {
	case StateTypeSelection:
		return e.onType(t, text), nil
	case StateWaybillNumber:
		return e.onWaybill(t, text), nil
	case StateCitySelection:
		return e.onCity(t, text), nil
	case StateWeightInput:
		return e.onWeight(t, text), nil
	case StateCommentInput:
		return e.onComment(t, text), nil
	case StateWaybillPhoto:
		return e.onWaybillPhoto(ctx, t, text), nil
	case StateProductPhoto:
		return e.onProductPhoto(ctx, t, text), nil
	case StateSearchQuery:
		return e.onSearch(ctx, t, text)
	case StateCommentEdit:
		return e.onCommentEdit(ctx, t, text)
	case StateSettings:
		return e.onSettings(ctx, t, text)
	case StateAdminBroadcast:
		return e.onBroadcast(ctx, t, text)
	default:
		return e.onMenu(ctx, t, text)
	}
}

// back returns to the preceding creation step keeping entered fields.
func (e *Engine) back(t *turn) Reply {
	prev, ok := previous[t.session.State]
	if !ok || prev == StateMainMenu {
		t.reset()
		return e.mainMenu(t, "Main menu.")
	}
	t.session.Data.OtherCity = false
	t.session.Data.Committing = false
	t.move(prev)
	return e.prompt(t, "")
}
