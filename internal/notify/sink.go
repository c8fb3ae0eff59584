package notify

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/m3rciful/cargobot/core/logger"
	"github.com/m3rciful/cargobot/core/telegram/sender"
)

// Queue is implemented by *sender.Dispatcher.
type Queue interface {
	// Enqueue waits for a free slot while ctx allows.
	Enqueue(ctx context.Context, action, endpoint string, run sender.Func, done func(sender.Result)) error
	Deliver(ctx context.Context, action, endpoint string, run sender.Func) sender.Result
}

// Sink delivers messages with the dispatcher's retry policy. Failures are
// logged and returned as values; they never panic into the caller.
type Sink struct {
	transport Transport
	queue     Queue
}

// NewSink pairs a transport with a dispatcher.
func NewSink(t Transport, q Queue) *Sink {
	return &Sink{transport: t, queue: q}
}

// Send delivers m on the calling goroutine and waits for the outcome.
func (s *Sink) Send(ctx context.Context, m Message) Result {
	if err := m.Validate(); err != nil {
		s.logFailure(ctx, m, Result{Err: err})
		return Result{Err: err}
	}
	res := resultFrom(s.queue.Deliver(ctx, action(m), endpoint(m), s.run(m)))
	if !res.OK() {
		s.logFailure(ctx, m, res)
	}
	return res
}

// Enqueue hands m to the worker pool without waiting for delivery. It
// blocks only while the queue is full; a message it could not queue is
// logged and reported.
func (s *Sink) Enqueue(ctx context.Context, m Message) error {
	if err := m.Validate(); err != nil {
		s.logFailure(ctx, m, Result{Err: err})
		return err
	}
	done := func(r sender.Result) {
		if res := resultFrom(r); !res.OK() {
			s.logFailure(ctx, m, res)
		}
	}
	if err := s.queue.Enqueue(ctx, action(m), endpoint(m), s.run(m), done); err != nil {
		res := resultFrom(sender.Result{Err: err})
		s.logFailure(ctx, m, res)
		return res.Err
	}
	return nil
}

func (s *Sink) run(m Message) sender.Func {
	return func(ctx context.Context) error { return s.transport.Deliver(ctx, m) }
}

func (s *Sink) logFailure(ctx context.Context, m Message, res Result) {
	logger.Notify.LogAttrs(ctx, slog.LevelError, "notification failed",
		slog.String("event", "notify.fail"),
		slog.String("status", "fail"),
		slog.String("kind", string(m.Kind)),
		slog.Int64("dest", m.ChatID),
		slog.Int("attempts", res.Attempts),
		slog.String("err", logger.SanitizeLimit(res.Err.Error(), 256)),
	)
}

func action(m Message) string { return "notify." + string(m.Kind) }

func endpoint(m Message) string { return strconv.FormatInt(m.ChatID, 10) }
