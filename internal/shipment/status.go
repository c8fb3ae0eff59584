package shipment

import (
	"fmt"
	"strings"
)

// Status is the lifecycle position of a shipment.
type Status string

const (
	StatusCreated    Status = "created"
	StatusProcessing Status = "processing"
	StatusTransit    Status = "transit"
	StatusDelivered  Status = "delivered"
	StatusProblem    Status = "problem"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{StatusCreated, StatusProcessing, StatusTransit, StatusDelivered, StatusProblem}

// transitions is the allowed-next table. delivered has no outbound edges.
var transitions = map[Status][]Status{
	StatusCreated:    {StatusProcessing, StatusProblem},
	StatusProcessing: {StatusTransit, StatusProblem},
	StatusTransit:    {StatusDelivered, StatusProblem},
	StatusProblem:    {StatusProcessing, StatusTransit},
	StatusDelivered:  nil,
}

var statusLabels = map[Status]string{
	StatusCreated:    "📝 Created",
	StatusProcessing: "🔄 Processing",
	StatusTransit:    "🚚 In transit",
	StatusDelivered:  "✅ Delivered",
	StatusProblem:    "⚠️ Problem",
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Label is the human readable form with an emoji.
func (s Status) Label() string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return string(s)
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s.Valid() && len(transitions[s]) == 0
}

// Next returns the statuses reachable from s.
func (s Status) Next() []Status {
	return append([]Status(nil), transitions[s]...)
}

// CanTransition reports whether from -> to is an allowed edge.
// A same-state change is never allowed.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns a *TransitionError for a disallowed change.
func ValidateTransition(from, to Status) error {
	if !to.Valid() {
		return Invalid("status", fmt.Sprintf("unknown status %q", to))
	}
	if !CanTransition(from, to) {
		return &TransitionError{From: from, To: to}
	}
	return nil
}

// ParseStatus accepts a canonical value in any case.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", Invalid("status", fmt.Sprintf("unknown status %q", raw))
	}
	return s, nil
}
