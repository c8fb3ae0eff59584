package middleware

import tele "gopkg.in/telebot.v4"

// AdminOptions configures the admin gate. IsAdmin decides per Telegram user id.
type AdminOptions struct {
	IsAdmin  func(c tele.Context, telegramID int64) bool
	OnReject tele.HandlerFunc
}

// AdminOnlyMiddleware lets only administrators reach next.
func AdminOnlyMiddleware(opts AdminOptions) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			user := c.Sender()
			if user != nil && opts.IsAdmin != nil && opts.IsAdmin(c, user.ID) {
				return next(c)
			}
			if opts.OnReject != nil {
				return opts.OnReject(c)
			}
			return nil
		}
	}
}
