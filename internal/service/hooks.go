package service

import (
	"context"
	"log/slog"

	"github.com/m3rciful/cargobot/core/logger"
	"github.com/m3rciful/cargobot/internal/events"
	"github.com/m3rciful/cargobot/internal/shipment"
)

// afterCreate runs once a new shipment is committed.
func (s *Service) afterCreate(ctx context.Context, sh shipment.Shipment, actor shipment.Actor) {
	if owner, ok := s.owner(ctx, sh); ok && s.notifier != nil {
		s.notifier.ShipmentCreated(ctx, sh, owner)
	}
	s.publish(ctx, events.Event{
		Name:      events.ShipmentCreated,
		Shipment:  sh,
		NewStatus: sh.Status,
		Actor:     actor.Label(),
		At:        sh.CreatedAt,
	})
}

// afterStatusChange runs once a status transition is committed.
func (s *Service) afterStatusChange(ctx context.Context, sh shipment.Shipment, from shipment.Status, actor shipment.Actor) {
	if owner, ok := s.owner(ctx, sh); ok && s.notifier != nil {
		s.notifier.StatusChanged(ctx, sh, from, owner, actor)
	}
	s.publish(ctx, events.Event{
		Name:      events.ShipmentStatusChanged,
		Shipment:  sh,
		OldStatus: from,
		NewStatus: sh.Status,
		Actor:     actor.Label(),
		At:        s.now(),
	})
}

func (s *Service) owner(ctx context.Context, sh shipment.Shipment) (shipment.User, bool) {
	u, err := s.store.UserByID(ctx, sh.OwnerID)
	if err != nil {
		logger.SVCShipments.LogAttrs(ctx, slog.LevelError, "owner lookup failed",
			slog.String("event", "shipment.owner"),
			slog.String("shipment_id", sh.ID),
			slog.String("err", err.Error()),
		)
		return shipment.User{}, false
	}
	return u, true
}

// publish never fails the committed operation; errors are logged.
func (s *Service) publish(ctx context.Context, e events.Event) {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.eventTimeout)
	defer cancel()
	if err := s.events.Publish(pctx, e); err != nil {
		logger.Events.LogAttrs(ctx, slog.LevelError, "event publish failed",
			slog.String("event", "events.publish"),
			slog.String("status", "fail"),
			slog.String("topic", e.Name),
			slog.String("shipment_id", e.Key()),
			slog.String("err", err.Error()),
		)
	}
}
