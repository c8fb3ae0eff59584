package state

import (
	"context"
	"errors"
	"time"
)

// State identifies a conversation step.
type State string

// StateIdle indicates there is no active conversation with the user.
const StateIdle State = "idle"

// DefaultTTL is the idle lifetime applied when a store is built with ttl <= 0.
const DefaultTTL = 30 * time.Minute

// ErrNoSession is returned by Get when the user has no live session.
var ErrNoSession = errors.New("state: no session")

// Session is the conversation state of one user plus its scratch data.
type Session[T any] struct {
	State     State     `json:"state"`
	Data      T         `json:"data"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store keeps one session per user id. Save refreshes the idle TTL.
type Store[T any] interface {
	Get(ctx context.Context, userID int64) (Session[T], error)
	Save(ctx context.Context, userID int64, s Session[T]) error
	Delete(ctx context.Context, userID int64) error
}
