package format

import (
	"html"
	"strconv"
	"strings"
)

// Escape quotes text for Telegram's HTML parse mode.
func Escape(text string) string {
	return html.EscapeString(text)
}

// Bold wraps escaped text in <b>.
func Bold(text string) string {
	return "<b>" + Escape(text) + "</b>"
}

// Code wraps escaped text in <code>.
func Code(text string) string {
	return "<code>" + Escape(text) + "</code>"
}

// DerefString returns *s or def when s is nil or blank.
func DerefString(s *string, def string) string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return def
	}
	return *s
}

// Weight renders kilograms without trailing zeros, or def when unknown.
func Weight(kg *float64, def string) string {
	if kg == nil || *kg <= 0 {
		return def
	}
	return strconv.FormatFloat(*kg, 'f', -1, 64) + " kg"
}
