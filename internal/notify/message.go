// Package notify renders shipment notifications and delivers them to
// Telegram chats through the retrying sender dispatcher.
package notify

import (
	"errors"
	"fmt"

	"github.com/m3rciful/cargobot/core/telegram/sender"
	"github.com/m3rciful/cargobot/internal/shipment"
)

// Kind labels a message for logs.
type Kind string

const (
	KindShipmentCreated Kind = "shipment_created"
	KindStatusChanged   Kind = "status_changed"
	KindBroadcast       Kind = "broadcast"
)

// MaxPhotos is the number of images a message may carry.
const MaxPhotos = 2

// Message is one outbound chat message with up to two images.
type Message struct {
	Kind   Kind
	ChatID int64
	// Text is HTML; it becomes the caption of the first image when it fits.
	Text string
	// Photos are paths relative to the media directory.
	Photos []string
}

// Validate rejects messages that cannot be delivered.
func (m Message) Validate() error {
	switch {
	case m.ChatID == 0:
		return fmt.Errorf("%w: empty destination", shipment.ErrDelivery)
	case m.Text == "" && len(m.Photos) == 0:
		return fmt.Errorf("%w: empty message", shipment.ErrDelivery)
	case len(m.Photos) > MaxPhotos:
		return fmt.Errorf("%w: %d photos, at most %d", shipment.ErrDelivery, len(m.Photos), MaxPhotos)
	}
	return nil
}

// Result reports how a delivery ended.
type Result struct {
	Attempts int
	Err      error
}

// OK reports success.
func (r Result) OK() bool { return r.Err == nil }

func resultFrom(r sender.Result) Result {
	if r.Err == nil {
		return Result{Attempts: r.Attempts}
	}
	if errors.Is(r.Err, shipment.ErrDelivery) {
		return Result{Attempts: r.Attempts, Err: r.Err}
	}
	return Result{Attempts: r.Attempts, Err: fmt.Errorf("%w: %w", shipment.ErrDelivery, r.Err)}
}
