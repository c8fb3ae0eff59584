package commands

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	tele "gopkg.in/telebot.v4"
)

func TestCheck(t *testing.T) {
	ok := Command{Handler: func(tele.Context) error { return nil }, Description: "Main menu"}

	assert.Equal(t, "", ok.Check("/start"))
	assert.Equal(t, "no_slash_prefix", ok.Check("start"))
	assert.Equal(t, "bad_name", ok.Check("/Start"))
	assert.Equal(t, "bad_name", ok.Check("/"+strings.Repeat("a", 33)))
	assert.Equal(t, "invalid", Command{Description: "x"}.Check("/start"))
	assert.Equal(t, "invalid", Command{Handler: ok.Handler}.Check("/start"))

	long := ok
	long.Description = strings.Repeat("d", MaxDescription+1)
	assert.Equal(t, "description_too_long", long.Check("/start"))
}

func TestMatches(t *testing.T) {
	cmd := Command{Aliases: []string{"menu", "/home"}}
	assert.True(t, cmd.Matches("menu"))
	assert.True(t, cmd.Matches("/Menu"))
	assert.True(t, cmd.Matches(" home "))
	assert.False(t, cmd.Matches("📦 New shipment"))
	assert.False(t, Command{}.Matches("menu"))
}
