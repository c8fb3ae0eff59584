package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/m3rciful/cargobot/core/logger"
	"github.com/m3rciful/cargobot/internal/shipment"
	"github.com/m3rciful/cargobot/internal/store"
)

// CreateShipment validates d, persists it in the created status and runs
// the post-commit hook. Store failures are reported as ErrPersistence.
func (s *Service) CreateShipment(ctx context.Context, actor shipment.Actor, d shipment.Draft) (shipment.Shipment, error) {
	if actor.UserID == 0 {
		return shipment.Shipment{}, shipment.Invalid("owner", "unknown user")
	}
	if err := d.Validate(); err != nil {
		return shipment.Shipment{}, err
	}

	start := time.Now()
	var (
		sh  shipment.Shipment
		err error
	)
	for attempt := 1; attempt <= s.idAttempts; attempt++ {
		sh = shipment.New(s.newID(), actor.UserID, d, s.now())
		err = s.store.CreateShipment(ctx, sh)
		if !errors.Is(err, store.ErrDuplicateID) {
			break
		}
		logger.SVCShipments.LogAttrs(ctx, slog.LevelWarn, "shipment id collision",
			slog.String("event", "shipment.id_collision"),
			slog.String("shipment_id", sh.ID),
			slog.Int("attempts", attempt),
		)
	}
	if err != nil {
		logger.SVCShipments.LogAttrs(ctx, slog.LevelError, "shipment create failed",
			slog.String("event", "shipment.create"),
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return shipment.Shipment{}, persistence(err)
	}

	logger.SVCShipments.LogAttrs(ctx, slog.LevelInfo, "shipment created",
		slog.String("event", "shipment.create"),
		slog.String("status", "ok"),
		slog.String("shipment_id", sh.ID),
		slog.String("type", string(sh.Type)),
		slog.Duration("duration", logger.Took(start)),
	)
	s.afterCreate(ctx, sh, actor)
	return sh, nil
}

// Shipment loads one shipment the actor may see.
func (s *Service) Shipment(ctx context.Context, actor shipment.Actor, id string) (shipment.Shipment, error) {
	sh, err := s.store.GetShipment(ctx, id)
	if err != nil {
		return shipment.Shipment{}, persistence(err)
	}
	if !actor.CanModify(sh) {
		return shipment.Shipment{}, denied(actor, id)
	}
	return sh, nil
}

// ListQuery narrows the bot listing. At most one of Days, Date and Waybill
// is expected; Favorites restricts to the actor's favorites.
type ListQuery struct {
	Days      int
	Date      time.Time
	Waybill   string
	Favorites bool
	// All lists every user's shipments and needs a privileged actor.
	All  bool
	Page int
}

// List returns the actor's shipments, newest first, BotPageSize per page.
func (s *Service) List(ctx context.Context, actor shipment.Actor, q ListQuery) (Page, error) {
	f := store.Filter{OwnerID: actor.UserID, Waybill: q.Waybill}
	if q.All {
		if !actor.Privileged() {
			return Page{}, denied(actor, "*")
		}
		f.OwnerID = 0
	}
	if q.Favorites {
		f.OwnerID = 0
		f.FavoriteOf = actor.UserID
	}
	if q.Days > 0 {
		f.Since = s.now().Add(-time.Duration(q.Days) * 24 * time.Hour)
	}
	if !q.Date.IsZero() {
		y, m, d := q.Date.In(s.loc).Date()
		f.From = time.Date(y, m, d, 0, 0, 0, 0, s.loc)
		f.To = f.From.AddDate(0, 0, 1)
	}
	return s.page(ctx, f, q.Page, BotPageSize)
}

// SearchQuery is the admin API listing.
type SearchQuery struct {
	Search string
	Status shipment.Status
	Type   shipment.OperationType
	Page   int
}

// Search lists every shipment matching q, APIPageSize per page.
func (s *Service) Search(ctx context.Context, q SearchQuery) (Page, error) {
	if q.Status != "" && !q.Status.Valid() {
		return Page{}, shipment.Invalid("status", "unknown status")
	}
	if q.Type != "" && !q.Type.Valid() {
		return Page{}, shipment.Invalid("type", "unknown operation type")
	}
	return s.page(ctx, store.Filter{Search: q.Search, Status: q.Status, Type: q.Type}, q.Page, APIPageSize)
}

// UpdateStatus moves a shipment to a new status. The current status is
// re-read under the transaction; the audit row is written in the same
// transaction and notifications follow the commit.
func (s *Service) UpdateStatus(ctx context.Context, id string, to shipment.Status, actor shipment.Actor) (shipment.Shipment, error) {
	if !to.Valid() {
		return shipment.Shipment{}, shipment.Invalid("status", fmt.Sprintf("unknown status %q", to))
	}
	updated, from, err := s.store.UpdateStatus(ctx, id, to, actor, func(cur shipment.Shipment) error {
		if !actor.CanModify(cur) {
			return denied(actor, id)
		}
		return shipment.ValidateTransition(cur.Status, to)
	})
	if err != nil {
		logger.SVCShipments.LogAttrs(ctx, slog.LevelWarn, "status change rejected",
			slog.String("event", "shipment.status"),
			slog.String("status", "fail"),
			slog.String("shipment_id", id),
			slog.String("to", string(to)),
			slog.String("actor", actor.Label()),
			slog.String("err_code", shipment.Code(err)),
		)
		return shipment.Shipment{}, persistence(err)
	}

	logger.SVCShipments.LogAttrs(ctx, slog.LevelInfo, "status changed",
		slog.String("event", "shipment.status"),
		slog.String("status", "ok"),
		slog.String("shipment_id", id),
		slog.String("from", string(from)),
		slog.String("to", string(to)),
		slog.String("actor", actor.Label()),
	)
	s.afterStatusChange(ctx, updated, from, actor)
	return updated, nil
}

// History returns the audit trail of a shipment the actor may see.
func (s *Service) History(ctx context.Context, actor shipment.Actor, id string) ([]store.AuditEntry, error) {
	if _, err := s.Shipment(ctx, actor, id); err != nil {
		return nil, err
	}
	entries, err := s.store.Audit(ctx, id)
	return entries, persistence(err)
}

// SetComment replaces the comment. Blank text or "-" clears it.
func (s *Service) SetComment(ctx context.Context, actor shipment.Actor, id, text string) (shipment.Shipment, error) {
	sh, err := s.Shipment(ctx, actor, id)
	if err != nil {
		return shipment.Shipment{}, err
	}
	comment := shipment.StringPtr(text)
	if comment != nil && *comment == "-" {
		comment = nil
	}
	if err := s.store.SetComment(ctx, id, comment); err != nil {
		return shipment.Shipment{}, persistence(err)
	}
	sh.Comment = comment
	return sh, nil
}

// ToggleFavorite flips the actor's favorite mark and returns the new state.
func (s *Service) ToggleFavorite(ctx context.Context, actor shipment.Actor, id string) (bool, error) {
	if _, err := s.Shipment(ctx, actor, id); err != nil {
		return false, err
	}
	on, err := s.store.ToggleFavorite(ctx, actor.UserID, id)
	return on, persistence(err)
}

// IsFavorite reports the actor's favorite mark.
func (s *Service) IsFavorite(ctx context.Context, actor shipment.Actor, id string) (bool, error) {
	on, err := s.store.IsFavorite(ctx, actor.UserID, id)
	return on, persistence(err)
}
