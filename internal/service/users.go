package service

import (
	"context"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/cargobot/core/bootstrap"
	"github.com/m3rciful/cargobot/core/logger"
	"github.com/m3rciful/cargobot/internal/shipment"
	"github.com/m3rciful/cargobot/internal/store"
)

// Profile is the chat identity reported by Telegram.
type Profile struct {
	TelegramID int64
	Username   string
	FirstName  string
	LastName   string
}

// Register creates the user on first contact and refreshes the profile.
// Configured administrators are promoted.
func (s *Service) Register(ctx context.Context, p Profile) (shipment.User, error) {
	if p.TelegramID == 0 {
		return shipment.User{}, shipment.Invalid("telegram_id", "missing")
	}
	u, err := s.store.UpsertUser(ctx, shipment.User{
		TelegramID: p.TelegramID,
		Username:   p.Username,
		FirstName:  p.FirstName,
		LastName:   p.LastName,
		IsAdmin:    s.isAdmin(p.TelegramID),
	})
	if err != nil {
		return shipment.User{}, persistence(err)
	}
	return u, nil
}

// UserByTelegramID loads a registered user.
func (s *Service) UserByTelegramID(ctx context.Context, telegramID int64) (shipment.User, error) {
	u, err := s.store.UserByTelegramID(ctx, telegramID)
	return u, persistence(err)
}

// ToggleNotifications flips the preference and returns the new value.
func (s *Service) ToggleNotifications(ctx context.Context, u shipment.User) (bool, error) {
	cur, err := s.store.UserByID(ctx, u.ID)
	if err != nil {
		return false, persistence(err)
	}
	enabled := !cur.NotificationsEnabled
	if err := s.store.SetNotifications(ctx, u.ID, enabled); err != nil {
		return false, persistence(err)
	}
	logger.SVCUsers.LogAttrs(ctx, slog.LevelInfo, "notifications toggled",
		slog.String("event", "user.notifications"),
		slog.Int64("user", u.ID),
		slog.Bool("enabled", enabled),
	)
	return enabled, nil
}

// AdminSeeder promotes the configured administrators at startup.
func AdminSeeder(telegramIDs []int64) bootstrap.Seeder {
	return bootstrap.SeederFunc(func(ctx context.Context, db *sqlx.DB) error {
		st := store.New(db)
		for _, id := range telegramIDs {
			if err := st.PromoteAdmin(ctx, id); err != nil {
				return err
			}
		}
		logger.SEED.Info("admins promoted",
			slog.String("event", "db.seed"),
			slog.Int("count", len(telegramIDs)),
		)
		return nil
	})
}
