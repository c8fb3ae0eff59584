package notify

import (
	"fmt"
	"strings"

	"github.com/m3rciful/cargobot/core/telegram/format"
	"github.com/m3rciful/cargobot/internal/shipment"
)

const timeLayout = "02.01.2006 15:04"

// Card renders the shipment summary shown in chats.
func Card(s shipment.Shipment) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📦 Shipment %s\n", format.Code(s.ID))
	fmt.Fprintf(&b, "Type: %s\n", format.Escape(s.Type.Label()))
	fmt.Fprintf(&b, "Waybill: %s\n", format.Escape(s.WaybillNumber))
	fmt.Fprintf(&b, "City: %s\n", format.Escape(s.City))
	fmt.Fprintf(&b, "Weight: %s\n", format.Escape(format.Weight(s.Weight, "unknown")))
	fmt.Fprintf(&b, "Status: %s\n", format.Escape(s.Status.Label()))
	if s.Comment != nil && strings.TrimSpace(*s.Comment) != "" {
		fmt.Fprintf(&b, "Comment: %s\n", format.Escape(*s.Comment))
	}
	fmt.Fprintf(&b, "Created: %s", s.CreatedAt.Format(timeLayout))
	return b.String()
}

// CreatedText is sent to the operations chat for a new shipment.
func CreatedText(s shipment.Shipment, owner shipment.User) string {
	return "🆕 New shipment from " + format.Escape(owner.DisplayName()) + "\n\n" + Card(s)
}

// ReceiptText confirms a new shipment to its owner.
func ReceiptText(s shipment.Shipment) string {
	return "✅ Shipment registered\n\n" + Card(s)
}

// StatusChangedText announces a status transition.
func StatusChangedText(s shipment.Shipment, from shipment.Status, actor shipment.Actor) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🔔 Status of %s changed\n", format.Code(s.ID))
	fmt.Fprintf(&b, "%s → %s\n", format.Escape(from.Label()), format.Bold(s.Status.Label()))
	fmt.Fprintf(&b, "Waybill: %s\n", format.Escape(s.WaybillNumber))
	fmt.Fprintf(&b, "City: %s", format.Escape(s.City))
	if label := actor.Label(); label != "" {
		fmt.Fprintf(&b, "\nBy: %s", format.Escape(label))
	}
	return b.String()
}

// Photos returns the stored image paths of s.
func Photos(s shipment.Shipment) []string {
	var out []string
	for _, p := range []*string{s.WaybillPhoto, s.ProductPhoto} {
		if p != nil && *p != "" {
			out = append(out, *p)
		}
	}
	return out
}
