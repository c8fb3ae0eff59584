package notify

import (
	"context"

	"github.com/m3rciful/cargobot/internal/shipment"
)

// Enqueuer accepts messages for asynchronous delivery.
type Enqueuer interface {
	Enqueue(ctx context.Context, m Message) error
}

// Notifier turns shipment events into owner and operations chat messages.
// No method waits for delivery. Event messages that cannot be queued are
// logged by the sink.
type Notifier struct {
	out       Enqueuer
	opsChatID int64
}

// NewNotifier mirrors events to opsChatID; zero disables the mirror.
func NewNotifier(out Enqueuer, opsChatID int64) *Notifier {
	return &Notifier{out: out, opsChatID: opsChatID}
}

// ShipmentCreated confirms to the owner and mirrors the shipment with its
// photos to the operations chat.
func (n *Notifier) ShipmentCreated(ctx context.Context, s shipment.Shipment, owner shipment.User) {
	n.toOwner(ctx, owner, Message{Kind: KindShipmentCreated, Text: ReceiptText(s)})
	n.toOps(ctx, Message{Kind: KindShipmentCreated, Text: CreatedText(s, owner), Photos: Photos(s)})
}

// StatusChanged informs the owner and the operations chat.
func (n *Notifier) StatusChanged(ctx context.Context, s shipment.Shipment, from shipment.Status, owner shipment.User, actor shipment.Actor) {
	text := StatusChangedText(s, from, actor)
	n.toOwner(ctx, owner, Message{Kind: KindStatusChanged, Text: text})
	n.toOps(ctx, Message{Kind: KindStatusChanged, Text: text})
}

// Broadcast queues text for one chat. Callers pick recipients by preference
// and count a nil error as accepted.
func (n *Notifier) Broadcast(ctx context.Context, chatID int64, text string) error {
	return n.out.Enqueue(ctx, Message{Kind: KindBroadcast, ChatID: chatID, Text: text})
}

func (n *Notifier) toOwner(ctx context.Context, owner shipment.User, m Message) {
	if owner.TelegramID == 0 || !owner.NotificationsEnabled {
		return
	}
	m.ChatID = owner.TelegramID
	_ = n.out.Enqueue(ctx, m)
}

func (n *Notifier) toOps(ctx context.Context, m Message) {
	if n.opsChatID == 0 {
		return
	}
	m.ChatID = n.opsChatID
	_ = n.out.Enqueue(ctx, m)
}
