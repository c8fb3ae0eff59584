// Package service implements the shipment use cases shared by the bot and
// the admin API: creation, listing, status transitions, comments,
// favorites, statistics, export and broadcasts. Side effects of a commit
// run from explicit post-commit hooks.
package service

import (
	"context"
	"time"

	"github.com/m3rciful/cargobot/internal/events"
	"github.com/m3rciful/cargobot/internal/shipment"
	"github.com/m3rciful/cargobot/internal/store"
)

// Page sizes of the two surfaces.
const (
	BotPageSize = 5
	APIPageSize = 10
)

// Notifier receives post-commit notifications. Implementations must not block.
type Notifier interface {
	ShipmentCreated(ctx context.Context, s shipment.Shipment, owner shipment.User)
	StatusChanged(ctx context.Context, s shipment.Shipment, from shipment.Status, owner shipment.User, actor shipment.Actor)
	// Broadcast reports whether the message was accepted for delivery.
	Broadcast(ctx context.Context, chatID int64, text string) error
}

// Options wires a Service.
type Options struct {
	Store    *store.Store
	Notifier Notifier
	Events   events.Publisher
	// IsAdmin marks configured administrators by Telegram id.
	IsAdmin func(telegramID int64) bool
	// EventTimeout bounds one publish call.
	EventTimeout time.Duration
	Location     *time.Location
	// IDAttempts bounds id regeneration after a collision.
	IDAttempts int
}

// Service is safe for concurrent use.
type Service struct {
	store        *store.Store
	notifier     Notifier
	events       events.Publisher
	isAdmin      func(int64) bool
	eventTimeout time.Duration
	loc          *time.Location
	idAttempts   int
	newID        func() string
	now          func() time.Time
}

// New applies defaults for zero options.
func New(opts Options) *Service {
	s := &Service{
		store:        opts.Store,
		notifier:     opts.Notifier,
		events:       opts.Events,
		isAdmin:      opts.IsAdmin,
		eventTimeout: opts.EventTimeout,
		loc:          opts.Location,
		idAttempts:   opts.IDAttempts,
		newID:        shipment.NewID,
		now:          func() time.Time { return time.Now().UTC() },
	}
	if s.events == nil {
		s.events = events.Noop{}
	}
	if s.isAdmin == nil {
		s.isAdmin = func(int64) bool { return false }
	}
	if s.eventTimeout <= 0 {
		s.eventTimeout = 5 * time.Second
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.idAttempts <= 0 {
		s.idAttempts = 5
	}
	return s
}

// Location is used to interpret calendar dates.
func (s *Service) Location() *time.Location { return s.loc }

// Page is one slice of a listing.
type Page struct {
	Items    []shipment.Shipment `json:"items"`
	Page     int                 `json:"page"`
	PageSize int                 `json:"page_size"`
	Total    int                 `json:"total"`
}

// Pages is the number of pages, at least one.
func (p Page) Pages() int {
	if p.PageSize <= 0 || p.Total == 0 {
		return 1
	}
	return (p.Total + p.PageSize - 1) / p.PageSize
}

// HasPrev reports whether an earlier page exists.
func (p Page) HasPrev() bool { return p.Page > 1 }

// HasNext reports whether a later page exists.
func (p Page) HasNext() bool { return p.Page < p.Pages() }

func (s *Service) page(ctx context.Context, f store.Filter, page, size int) (Page, error) {
	if page < 1 {
		page = 1
	}
	items, total, err := s.store.ListShipments(ctx, f, size, (page-1)*size)
	if err != nil {
		return Page{}, persistence(err)
	}
	return Page{Items: items, Page: page, PageSize: size, Total: total}, nil
}
