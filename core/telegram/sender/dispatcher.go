package sender

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m3rciful/cargobot/core/logger"
	"github.com/m3rciful/cargobot/core/telegram/netutil"

	tele "gopkg.in/telebot.v4"
)

var (
	// ErrQueueClosed is returned when enqueue is attempted after dispatcher stop.
	ErrQueueClosed = errors.New("telegram sender: queue closed")
	// ErrQueueFull indicates the queue is saturated and the job was not accepted.
	ErrQueueFull = errors.New("telegram sender: queue full")
	// ErrExhausted marks a job that failed on every attempt.
	ErrExhausted = errors.New("telegram sender: delivery failed")

	tokenRe = regexp.MustCompile(`bot[0-9]+:[A-Za-z0-9_-]+`)
)

// Options controls the behaviour of the outbound dispatcher.
type Options struct {
	QueueSize int
	Workers   int
	// MaxAttempts counts the first try. Zero means 3.
	MaxAttempts int
	// BaseDelay is the wait after the first failure; it doubles on every retry.
	BaseDelay time.Duration
	// MaxDuration bounds the time spent on a single job including waits.
	MaxDuration time.Duration
	// EnqueueWait bounds how long Enqueue waits for a free queue slot.
	EnqueueWait time.Duration
}

// Func performs one delivery attempt.
type Func func(ctx context.Context) error

// Result reports the outcome of a job.
type Result struct {
	Attempts int
	Err      error
}

// OK reports whether the job was delivered.
func (r Result) OK() bool { return r.Err == nil }

type job struct {
	ctx      context.Context
	action   string
	endpoint string
	run      Func
	done     func(Result)
}

// Dispatcher executes outbound Telegram calls on a worker pool and retries
// transient failures with exponential backoff.
type Dispatcher struct {
	opts Options
	jobs chan job
	stop chan struct{}
	once sync.Once
	wg   sync.WaitGroup
	// mu guards sends on jobs against Close.
	mu     sync.RWMutex
	closed bool
	errs atomic.Uint64

	wait func(ctx context.Context, d time.Duration) error
}

// NewDispatcher starts a dispatcher with defaults for zero options.
func NewDispatcher(opts Options) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = time.Second
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = 30 * time.Second
	}
	if opts.EnqueueWait <= 0 {
		opts.EnqueueWait = opts.MaxDuration
	}

	d := &Dispatcher{
		opts: opts,
		jobs: make(chan job, opts.QueueSize),
		stop: make(chan struct{}),
		wait: sleep,
	}
	d.wg.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go d.worker()
	}
	return d
}

// Enqueue schedules run on the worker pool, waiting for a free slot until
// ctx is done or EnqueueWait passes. done, when not nil, receives the final
// result on the worker goroutine.
func (d *Dispatcher) Enqueue(ctx context.Context, action, endpoint string, run Func, done func(Result)) error {
	return d.push(job{ctx: ctx, action: action, endpoint: endpoint, run: run, done: done}, true)
}

// TryEnqueue is Enqueue without waiting: a full queue fails with ErrQueueFull.
func (d *Dispatcher) TryEnqueue(ctx context.Context, action, endpoint string, run Func, done func(Result)) error {
	return d.push(job{ctx: ctx, action: action, endpoint: endpoint, run: run, done: done}, false)
}

func (d *Dispatcher) push(j job, wait bool) error {
	if j.run == nil {
		return errors.New("telegram sender: nil run function")
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrQueueClosed
	}
	select {
	case d.jobs <- j:
		return nil
	default:
	}
	if !wait {
		return ErrQueueFull
	}

	ctx := orBackground(j.ctx)
	timer := time.NewTimer(d.opts.EnqueueWait)
	defer timer.Stop()
	select {
	case d.jobs <- j:
		return nil
	case <-d.stop:
		return ErrQueueClosed
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrQueueFull, ctx.Err())
	case <-timer.C:
		return ErrQueueFull
	}
}

// Deliver runs the job on the calling goroutine with the same retry policy.
func (d *Dispatcher) Deliver(ctx context.Context, action, endpoint string, run Func) Result {
	return d.handleJob(job{ctx: ctx, action: action, endpoint: endpoint, run: run})
}

// ErrorCount returns the number of failed jobs.
func (d *Dispatcher) ErrorCount() uint64 {
	return d.errs.Load()
}

// Close stops accepting jobs and waits until queued ones finish.
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		// Waiting senders give up on stop, then the write lock excludes new ones.
		close(d.stop)
		d.mu.Lock()
		d.closed = true
		close(d.jobs)
		d.mu.Unlock()
		d.wg.Wait()
	})
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for j := range d.jobs {
		res := d.handleJob(j)
		if j.done != nil {
			j.done(res)
		}
	}
}

// Backoff returns the wait before attempt+1 given the base delay.
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return base << (attempt - 1)
}

func (d *Dispatcher) handleJob(j job) Result {
	// Jobs outlive the update that queued them, so only values are inherited.
	ctx := context.WithoutCancel(orBackground(j.ctx))
	runCtx, cancel := context.WithTimeout(ctx, d.opts.MaxDuration)
	defer cancel()

	start := time.Now()
	var lastErr error
	attempt := 0
	for attempt < d.opts.MaxAttempts {
		attempt++
		lastErr = j.run(runCtx)
		if lastErr == nil {
			logger.Debug(ctx, "tg.sender", "send.success",
				append(sendLogAttrs(j), slog.Int("attempts", attempt), slog.Duration("duration", logger.Took(start)))...)
			return Result{Attempts: attempt}
		}
		if !Retryable(lastErr) || attempt == d.opts.MaxAttempts {
			break
		}
		delay := Backoff(d.opts.BaseDelay, attempt)
		var flood tele.FloodError
		if errors.As(lastErr, &flood) && time.Duration(flood.RetryAfter)*time.Second > delay {
			delay = time.Duration(flood.RetryAfter) * time.Second
		}
		logger.Debug(ctx, "tg.sender", "send.retry",
			append(sendLogAttrs(j),
				slog.Int("attempts", attempt),
				slog.Duration("backoff", delay),
				slog.String("err", sanitizeErrorMessage(lastErr)),
			)...)
		if err := d.wait(runCtx, delay); err != nil {
			lastErr = errors.Join(lastErr, err)
			break
		}
	}

	d.errs.Add(1)
	logger.Error(ctx, "tg.sender", "send.fail",
		append(sendLogAttrs(j),
			slog.String("status", "fail"),
			slog.Int("attempts", attempt),
			slog.Int("http_code", httpStatusFromError(lastErr)),
			slog.Bool("retryable", Retryable(lastErr)),
			slog.String("err", sanitizeErrorMessage(lastErr)),
			slog.Duration("duration", logger.Took(start)),
		)...)
	return Result{Attempts: attempt, Err: fmt.Errorf("%w after %d attempt(s): %w", ErrExhausted, attempt, lastErr)}
}

// Retryable reports whether err is a transient transport or server failure.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if netutil.ShouldRetry(err) {
		return true
	}
	var flood tele.FloodError
	if errors.As(err, &flood) {
		return true
	}
	code := httpStatusFromError(err)
	return code == http.StatusTooManyRequests || code >= 500
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func orBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

func sendLogAttrs(j job) []slog.Attr {
	attrs := []slog.Attr{slog.String("operation", j.action)}
	if j.endpoint != "" {
		attrs = append(attrs, slog.String("endpoint", j.endpoint))
	}
	return attrs
}

// sanitizeErrorMessage prevents accidental leakage of Telegram bot tokens in logs.
func sanitizeErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	return tokenRe.ReplaceAllString(err.Error(), "bot<redacted>")
}

func httpStatusFromError(err error) int {
	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var floodErr tele.FloodError
	if errors.As(err, &floodErr) {
		return http.StatusTooManyRequests
	}
	var groupErr tele.GroupError
	if errors.As(err, &groupErr) {
		return http.StatusBadRequest
	}
	return 0
}
