package shipment

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// MaxTextLen bounds waybill numbers and city names.
const MaxTextLen = 100

// Shipment is a persisted cargo movement record.
type Shipment struct {
	ID            string        `db:"id" json:"id"`
	OwnerID       int64         `db:"owner_id" json:"owner_id"`
	Type          OperationType `db:"operation_type" json:"type"`
	WaybillNumber string        `db:"waybill_number" json:"waybill_number"`
	City          string        `db:"city" json:"city"`
	Weight        *float64      `db:"weight" json:"weight,omitempty"`
	Comment       *string       `db:"comment" json:"comment,omitempty"`
	Status        Status        `db:"status" json:"status"`
	WaybillPhoto  *string       `db:"waybill_photo" json:"waybill_photo,omitempty"`
	ProductPhoto  *string       `db:"product_photo" json:"product_photo,omitempty"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
}

// Draft carries the fields a user supplies when creating a shipment.
type Draft struct {
	Type          OperationType `json:"type,omitempty"`
	WaybillNumber string        `json:"waybill_number,omitempty"`
	City          string        `json:"city,omitempty"`
	Weight        *float64      `json:"weight,omitempty"`
	Comment       *string       `json:"comment,omitempty"`
	WaybillPhoto  *string       `json:"waybill_photo,omitempty"`
	ProductPhoto  *string       `json:"product_photo,omitempty"`
}

// Validate checks the invariants a persisted shipment must hold.
func (d Draft) Validate() error {
	if !d.Type.Valid() {
		return Invalid("type", "unknown operation type")
	}
	if _, err := CleanText("waybill_number", d.WaybillNumber); err != nil {
		return err
	}
	if _, err := CleanText("city", d.City); err != nil {
		return err
	}
	if d.Weight != nil && *d.Weight <= 0 {
		return Invalid("weight", "must be positive")
	}
	return nil
}

// CleanText trims s and enforces the non-empty and length rules.
func CleanText(field, s string) (string, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return "", Invalid(field, "must not be empty")
	case utf8.RuneCountInString(s) > MaxTextLen:
		return "", Invalid(field, "too long")
	}
	return s, nil
}

// New builds a shipment in the created status from a validated draft.
func New(id string, ownerID int64, d Draft, now time.Time) Shipment {
	return Shipment{
		ID:            id,
		OwnerID:       ownerID,
		Type:          d.Type,
		WaybillNumber: strings.TrimSpace(d.WaybillNumber),
		City:          strings.TrimSpace(d.City),
		Weight:        d.Weight,
		Comment:       d.Comment,
		Status:        StatusCreated,
		WaybillPhoto:  d.WaybillPhoto,
		ProductPhoto:  d.ProductPhoto,
		CreatedAt:     now,
	}
}

// NewID returns eight upper-case hex characters taken from a random UUID.
func NewID() string {
	u := uuid.New()
	return strings.ToUpper(strings.ReplaceAll(u.String(), "-", "")[:8])
}

// StringPtr returns nil for blank s.
func StringPtr(s string) *string {
	if s = strings.TrimSpace(s); s == "" {
		return nil
	}
	return &s
}
