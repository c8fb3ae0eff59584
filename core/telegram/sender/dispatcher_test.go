package sender

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"
)

func newTestDispatcher(t *testing.T, opts Options) (*Dispatcher, *[]time.Duration) {
	t.Helper()
	d := NewDispatcher(opts)
	t.Cleanup(d.Close)
	var waits []time.Duration
	d.wait = func(_ context.Context, dur time.Duration) error {
		waits = append(waits, dur)
		return nil
	}
	return d, &waits
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, time.Second, Backoff(time.Second, 1))
	assert.Equal(t, 2*time.Second, Backoff(time.Second, 2))
	assert.Equal(t, 4*time.Second, Backoff(time.Second, 3))
	assert.Equal(t, time.Second, Backoff(time.Second, 0))
}

func TestDeliverRetriesServerErrors(t *testing.T) {
	d, waits := newTestDispatcher(t, Options{MaxAttempts: 3, BaseDelay: time.Second})

	calls := 0
	res := d.Deliver(context.Background(), "sendPhoto", "chat", func(context.Context) error {
		calls++
		if calls < 3 {
			return tele.NewError(502, "Bad Gateway")
		}
		return nil
	})

	require.True(t, res.OK())
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *waits)
	assert.Zero(t, d.ErrorCount())
}

func TestDeliverStopsOnClientErrors(t *testing.T) {
	d, waits := newTestDispatcher(t, Options{MaxAttempts: 3})

	calls := 0
	res := d.Deliver(context.Background(), "sendMessage", "chat", func(context.Context) error {
		calls++
		return tele.NewError(400, "Bad Request: chat not found")
	})

	require.False(t, res.OK())
	assert.Equal(t, 1, calls)
	assert.Empty(t, *waits)
	assert.ErrorIs(t, res.Err, ErrExhausted)
	assert.EqualValues(t, 1, d.ErrorCount())
}

func TestDeliverExhaustsAttempts(t *testing.T) {
	d, waits := newTestDispatcher(t, Options{MaxAttempts: 3, BaseDelay: 10 * time.Millisecond})

	boom := tele.NewError(500, "Internal Server Error")
	res := d.Deliver(context.Background(), "sendMediaGroup", "chat", func(context.Context) error {
		return boom
	})

	assert.Equal(t, 3, res.Attempts)
	assert.Len(t, *waits, 2)
	assert.ErrorIs(t, res.Err, ErrExhausted)
	var apiErr *tele.Error
	require.True(t, errors.As(res.Err, &apiErr))
	assert.Equal(t, 500, apiErr.Code)
}

func TestEnqueueReportsResult(t *testing.T) {
	d, _ := newTestDispatcher(t, Options{Workers: 1})

	done := make(chan Result, 1)
	err := d.Enqueue(context.Background(), "sendMessage", "chat", func(context.Context) error {
		return nil
	}, func(r Result) { done <- r })
	require.NoError(t, err)

	select {
	case r := <-done:
		assert.True(t, r.OK())
		assert.Equal(t, 1, r.Attempts)
	case <-time.After(2 * time.Second):
		t.Fatal("job did not complete")
	}
}

func TestEnqueueAfterClose(t *testing.T) {
	d := NewDispatcher(Options{})
	d.Close()
	err := d.Enqueue(context.Background(), "sendMessage", "", func(context.Context) error { return nil }, nil)
	assert.ErrorIs(t, err, ErrQueueClosed)
}

// fillQueue parks the only worker on gate and occupies the single queue slot.
func fillQueue(t *testing.T, d *Dispatcher, gate chan struct{}) {
	t.Helper()
	started := make(chan struct{})
	require.NoError(t, d.Enqueue(context.Background(), "sendMessage", "busy", func(context.Context) error {
		close(started)
		<-gate
		return nil
	}, nil))
	<-started
	require.NoError(t, d.Enqueue(context.Background(), "sendMessage", "queued", func(context.Context) error { return nil }, nil))
}

func TestEnqueueWaitsForFreeSlot(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, QueueSize: 1})
	gate := make(chan struct{})
	fillQueue(t, d, gate)

	assert.ErrorIs(t, d.TryEnqueue(context.Background(), "sendMessage", "x", func(context.Context) error { return nil }, nil), ErrQueueFull)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := d.Enqueue(ctx, "sendMessage", "x", func(context.Context) error { return nil }, nil)
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.ErrorIs(t, err, context.Canceled)

	time.AfterFunc(20*time.Millisecond, func() { close(gate) })
	var delivered sync.WaitGroup
	delivered.Add(1)
	require.NoError(t, d.Enqueue(context.Background(), "sendMessage", "late", func(context.Context) error {
		delivered.Done()
		return nil
	}, nil))
	d.Close()
	delivered.Wait()
}

func TestEnqueueGivesUpAfterWait(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, QueueSize: 1, EnqueueWait: 10 * time.Millisecond})
	gate := make(chan struct{})
	fillQueue(t, d, gate)

	err := d.Enqueue(context.Background(), "sendMessage", "x", func(context.Context) error { return nil }, nil)
	assert.ErrorIs(t, err, ErrQueueFull)
	close(gate)
	d.Close()
}

func TestEnqueueRacingClose(t *testing.T) {
	for round := 0; round < 50; round++ {
		d := NewDispatcher(Options{Workers: 2, QueueSize: 2})
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := d.Enqueue(context.Background(), "sendMessage", "chat", func(context.Context) error { return nil }, nil)
				if err != nil {
					assert.ErrorIs(t, err, ErrQueueClosed)
				}
			}()
		}
		d.Close()
		wg.Wait()
	}
}

func TestSanitizeErrorMessage(t *testing.T) {
	err := errors.New(`Post "https://api.telegram.org/bot123:AbC-_d/sendMessage": timeout`)
	assert.NotContains(t, sanitizeErrorMessage(err), "123:AbC")
	assert.Contains(t, sanitizeErrorMessage(err), "bot<redacted>")
}
