package state

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/m3rciful/cargobot/core/logger"
)

// Sweepable is implemented by stores that need periodic expiry.
type Sweepable interface {
	Sweep(ctx context.Context) int
}

// StartSweeper schedules store.Sweep on a cron spec such as "@every 1m".
// Stop the returned cron to end sweeping.
func StartSweeper(ctx context.Context, spec string, store Sweepable) (*cron.Cron, error) {
	if spec == "" {
		spec = "@every 1m"
	}
	c := cron.New()
	if _, err := c.AddFunc(spec, func() { store.Sweep(ctx) }); err != nil {
		return nil, fmt.Errorf("state: sweeper schedule %q: %w", spec, err)
	}
	c.Start()
	logger.Sessions.Info("sweeper started",
		slog.String("event", "sessions.sweeper"),
		slog.String("status", "ok"),
		slog.String("schedule", spec),
	)
	return c, nil
}
