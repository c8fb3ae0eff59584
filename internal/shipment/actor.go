package shipment

import (
	"strconv"
	"time"
)

// User is the profile linking a Telegram identity to internal records.
type User struct {
	ID                   int64     `db:"id" json:"id"`
	TelegramID           int64     `db:"telegram_id" json:"telegram_id"`
	Username             string    `db:"username" json:"username"`
	FirstName            string    `db:"first_name" json:"first_name"`
	LastName             string    `db:"last_name" json:"last_name"`
	NotificationsEnabled bool      `db:"notifications_enabled" json:"notifications_enabled"`
	IsAdmin              bool      `db:"is_admin" json:"is_admin"`
	CreatedAt            time.Time `db:"created_at" json:"created_at"`
}

// DisplayName prefers @username, then the first name, then the id.
func (u User) DisplayName() string {
	switch {
	case u.Username != "":
		return "@" + u.Username
	case u.FirstName != "":
		return u.FirstName
	}
	return strconv.FormatInt(u.TelegramID, 10)
}

// Actor is whoever performs an operation.
type Actor struct {
	UserID     int64
	TelegramID int64
	Name       string
	IsAdmin    bool
	// System marks the admin API, which is always privileged.
	System bool
}

// SystemActor is used by the HTTP admin API.
var SystemActor = Actor{Name: "web", System: true}

// ActorFor builds the actor for a bot user.
func ActorFor(u User) Actor {
	return Actor{UserID: u.ID, TelegramID: u.TelegramID, Name: u.DisplayName(), IsAdmin: u.IsAdmin}
}

// Privileged reports whether the actor may act on any shipment.
func (a Actor) Privileged() bool { return a.System || a.IsAdmin }

// CanModify reports whether the actor owns s or is privileged.
func (a Actor) CanModify(s Shipment) bool {
	return a.Privileged() || (a.UserID != 0 && a.UserID == s.OwnerID)
}

// Label is written to the audit trail.
func (a Actor) Label() string {
	if a.Name != "" {
		return a.Name
	}
	if a.System {
		return "system"
	}
	return "user:" + strconv.FormatInt(a.UserID, 10)
}
