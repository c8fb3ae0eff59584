// Package commands describes slash commands registered with the bot.
package commands

import (
	"regexp"
	"strings"

	tele "gopkg.in/telebot.v4"
)

// MaxDescription is the longest description Telegram accepts in setMyCommands.
const MaxDescription = 256

var nameRe = regexp.MustCompile(`^/[a-z0-9_]{1,32}$`)

// Command is a slash command with its menu metadata.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	// AdminOnly commands are gated and never shown in the public menu.
	AdminOnly bool
	Hidden    bool
	// Aliases are matched against plain text, with or without a slash.
	Aliases []string
}

// Check returns a short cause when cmd cannot be registered under name,
// or "" when it can.
func (cmd Command) Check(name string) string {
	switch {
	case cmd.Handler == nil || strings.TrimSpace(cmd.Description) == "":
		return "invalid"
	case !strings.HasPrefix(name, "/"):
		return "no_slash_prefix"
	case !nameRe.MatchString(name):
		return "bad_name"
	case len(cmd.Description) > MaxDescription:
		return "description_too_long"
	}
	return ""
}

// Matches reports whether text equals one of the aliases.
func (cmd Command) Matches(text string) bool {
	text = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(text)), "/")
	for _, alias := range cmd.Aliases {
		if strings.TrimPrefix(strings.ToLower(alias), "/") == text {
			return true
		}
	}
	return false
}
