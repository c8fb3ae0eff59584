package shipment

import (
	"fmt"
	"strings"
)

// OperationType says what the field user is doing with the cargo.
type OperationType string

const (
	TypeSend     OperationType = "send"
	TypeReceive  OperationType = "receive"
	TypeTransfer OperationType = "transfer"
)

// OperationTypes lists every type in menu order.
var OperationTypes = []OperationType{TypeSend, TypeReceive, TypeTransfer}

var typeLabels = map[OperationType]string{
	TypeSend:     "📤 Send",
	TypeReceive:  "📥 Receive",
	TypeTransfer: "🔄 Transfer",
}

// Valid reports whether t is a known operation type.
func (t OperationType) Valid() bool {
	_, ok := typeLabels[t]
	return ok
}

// Label is the button text for t.
func (t OperationType) Label() string {
	if l, ok := typeLabels[t]; ok {
		return l
	}
	return string(t)
}

// ParseOperationType accepts a button label or a raw value.
func ParseOperationType(raw string) (OperationType, error) {
	raw = strings.TrimSpace(raw)
	for t, label := range typeLabels {
		if raw == label {
			return t, nil
		}
	}
	t := OperationType(strings.ToLower(raw))
	if !t.Valid() {
		return "", Invalid("type", fmt.Sprintf("unknown operation type %q", raw))
	}
	return t, nil
}
