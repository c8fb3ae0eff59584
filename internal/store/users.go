package store

import (
	"context"
	"fmt"

	"github.com/m3rciful/cargobot/internal/shipment"
)

const userColumns = `id, telegram_id, username, first_name, last_name, notifications_enabled, is_admin, created_at`

// UpsertUser creates the user on first contact and refreshes the profile
// fields afterwards. The admin flag is only ever raised here.
func (s *Store) UpsertUser(ctx context.Context, u shipment.User) (shipment.User, error) {
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO users (telegram_id, username, first_name, last_name, notifications_enabled, is_admin, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (telegram_id) DO UPDATE SET
			username = excluded.username,
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			is_admin = (users.is_admin OR excluded.is_admin)`),
		u.TelegramID, u.Username, u.FirstName, u.LastName, true, u.IsAdmin, s.now())
	if err != nil {
		return shipment.User{}, fmt.Errorf("upsert user: %w", err)
	}
	return s.UserByTelegramID(ctx, u.TelegramID)
}

// UserByTelegramID loads a user by chat identity.
func (s *Store) UserByTelegramID(ctx context.Context, telegramID int64) (shipment.User, error) {
	var u shipment.User
	err := s.db.GetContext(ctx, &u, s.q(`SELECT `+userColumns+` FROM users WHERE telegram_id = ?`), telegramID)
	if err != nil {
		return shipment.User{}, notFound(err, "user")
	}
	return u, nil
}

// UserByID loads a user by internal id.
func (s *Store) UserByID(ctx context.Context, id int64) (shipment.User, error) {
	var u shipment.User
	err := s.db.GetContext(ctx, &u, s.q(`SELECT `+userColumns+` FROM users WHERE id = ?`), id)
	if err != nil {
		return shipment.User{}, notFound(err, "user")
	}
	return u, nil
}

// SetNotifications stores the user's notification preference.
func (s *Store) SetNotifications(ctx context.Context, userID int64, enabled bool) error {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE users SET notifications_enabled = ? WHERE id = ?`), enabled, userID)
	if err != nil {
		return fmt.Errorf("set notifications: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("user %d: %w", userID, shipment.ErrNotFound)
	}
	return nil
}

// NotifiableUsers lists users that accept broadcasts.
func (s *Store) NotifiableUsers(ctx context.Context) ([]shipment.User, error) {
	var users []shipment.User
	err := s.db.SelectContext(ctx, &users, s.q(`SELECT `+userColumns+` FROM users WHERE notifications_enabled = ? ORDER BY id`), true)
	if err != nil {
		return nil, fmt.Errorf("list notifiable users: %w", err)
	}
	return users, nil
}

// CountUsers returns the number of known users.
func (s *Store) CountUsers(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM users`); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

// PromoteAdmin grants the admin flag, creating a bare user when needed.
func (s *Store) PromoteAdmin(ctx context.Context, telegramID int64) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO users (telegram_id, notifications_enabled, is_admin, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (telegram_id) DO UPDATE SET is_admin = excluded.is_admin`),
		telegramID, true, true, s.now())
	if err != nil {
		return fmt.Errorf("promote admin %d: %w", telegramID, err)
	}
	return nil
}
