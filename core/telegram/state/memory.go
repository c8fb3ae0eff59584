package state

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/cargobot/core/logger"
)

// MemoryStore keeps sessions in process memory. Expired sessions are hidden
// on read and removed by Sweep.
type MemoryStore[T any] struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	sessions map[int64]Session[T]
}

// NewMemoryStore builds an in-memory store with the given idle TTL.
func NewMemoryStore[T any](ttl time.Duration) *MemoryStore[T] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore[T]{
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[int64]Session[T]),
	}
}

// Get returns the live session or ErrNoSession.
func (m *MemoryStore[T]) Get(_ context.Context, userID int64) (Session[T], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	if !ok || m.expired(s, m.now()) {
		return Session[T]{}, ErrNoSession
	}
	return s, nil
}

// Save stores s and stamps UpdatedAt.
func (m *MemoryStore[T]) Save(_ context.Context, userID int64, s Session[T]) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.UpdatedAt = m.now()
	m.sessions[userID] = s
	return nil
}

// Delete drops the user's session.
func (m *MemoryStore[T]) Delete(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
	return nil
}

// Sweep removes sessions idle for longer than the TTL and returns how many were dropped.
func (m *MemoryStore[T]) Sweep(ctx context.Context) int {
	m.mu.Lock()
	now := m.now()
	removed := 0
	for id, s := range m.sessions {
		if m.expired(s, now) {
			delete(m.sessions, id)
			removed++
		}
	}
	left := len(m.sessions)
	m.mu.Unlock()

	if removed > 0 {
		logger.Sessions.LogAttrs(ctx, slog.LevelDebug, "",
			slog.String("event", "sessions.sweep"),
			slog.Int("count", removed),
			slog.Int("pending_count", left),
		)
	}
	return removed
}

// Len returns the number of stored sessions including expired ones not yet swept.
func (m *MemoryStore[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *MemoryStore[T]) expired(s Session[T], now time.Time) bool {
	return now.Sub(s.UpdatedAt) > m.ttl
}
