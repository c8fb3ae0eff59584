package middleware

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"
)

func offlineContext(t *testing.T, userID int64, text string) tele.Context {
	t.Helper()
	b, err := tele.NewBot(tele.Settings{Offline: true})
	require.NoError(t, err)
	return b.NewContext(tele.Update{
		ID: 1,
		Message: &tele.Message{
			Sender: &tele.User{ID: userID},
			Chat:   &tele.Chat{ID: userID, Type: tele.ChatPrivate},
			Text:   text,
		},
	})
}

func TestAdminOnlyMiddleware(t *testing.T) {
	var reached, rejected int
	mw := AdminOnlyMiddleware(AdminOptions{
		IsAdmin:  func(_ tele.Context, id int64) bool { return id == 100 },
		OnReject: func(tele.Context) error { rejected++; return nil },
	})
	h := mw(func(tele.Context) error { reached++; return nil })

	require.NoError(t, h(offlineContext(t, 100, "/stats")))
	require.NoError(t, h(offlineContext(t, 5, "/stats")))
	assert.Equal(t, 1, reached)
	assert.Equal(t, 1, rejected)
}

func TestRateLimitMiddleware(t *testing.T) {
	var handled, limited int
	mw := RateLimitMiddleware(RateLimitOptions{
		Interval:  time.Hour,
		OnLimited: func(tele.Context) error { limited++; return nil },
	})
	h := mw(func(tele.Context) error { handled++; return nil })

	require.NoError(t, h(offlineContext(t, 1, "a")))
	require.NoError(t, h(offlineContext(t, 1, "b")))
	require.NoError(t, h(offlineContext(t, 2, "c")))
	assert.Equal(t, 2, handled)
	assert.Equal(t, 1, limited)
}

func TestRateLimitMiddlewareExclusions(t *testing.T) {
	var handled int
	mw := RateLimitMiddleware(RateLimitOptions{
		Interval: time.Hour,
		Exclude:  map[string]struct{}{"message": {}},
	})
	h := mw(func(tele.Context) error { handled++; return nil })
	for i := 0; i < 3; i++ {
		require.NoError(t, h(offlineContext(t, 1, "x")))
	}
	assert.Equal(t, 3, handled)
}

func TestRecoverMiddleware(t *testing.T) {
	h := RecoverMiddleware(func(tele.Context) error { panic("boom") })
	err := h(offlineContext(t, 1, "x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	sentinel := errors.New("plain")
	h = RecoverMiddleware(func(tele.Context) error { return sentinel })
	assert.ErrorIs(t, h(offlineContext(t, 1, "x")), sentinel)
}

func TestLoggerMiddlewareStoresRID(t *testing.T) {
	c := offlineContext(t, 7, "hello")
	h := LoggerMiddleware(func(c tele.Context) error {
		assert.Equal(t, "1:7:7", c.Get("rid"))
		return nil
	})
	require.NoError(t, h(c))
}
