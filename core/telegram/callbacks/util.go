package callbacks

import (
	"strings"

	tele "gopkg.in/telebot.v4"
)

// Sep separates values inside a callback payload.
const Sep = "|"

// ParseCallbackData splits Telebot's "\f<unique>|<payload>" encoding.
// cb.Unique is preferred when Telebot has already parsed it.
func ParseCallbackData(cb *tele.Callback) (unique, payload string) {
	if cb == nil {
		return "", ""
	}
	if cb.Unique != "" {
		return cb.Unique, cb.Data
	}
	raw := strings.TrimPrefix(cb.Data, "\f")
	unique, payload, _ = strings.Cut(raw, Sep)
	return strings.TrimSpace(unique), payload
}

// CallbackKey returns the unique part of the current callback.
func CallbackKey(c tele.Context) string {
	k, _ := ParseCallbackData(c.Callback())
	return k
}

// CallbackPayload returns the payload of the current callback.
func CallbackPayload(c tele.Context) string {
	_, p := ParseCallbackData(c.Callback())
	return p
}

// PayloadPair splits a "<id>|<value>" payload. value is empty when absent.
func PayloadPair(c tele.Context) (id, value string) {
	id, value, _ = strings.Cut(CallbackPayload(c), Sep)
	return strings.TrimSpace(id), strings.TrimSpace(value)
}

// Join builds a payload from parts.
func Join(parts ...string) string {
	return strings.Join(parts, Sep)
}
