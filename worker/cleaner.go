package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/danielmmetz/hn-apicheck/store"
)

// Cleaner prunes run history older than the retention window.
type Cleaner struct {
	runs      *store.RunStore
	retention time.Duration
	now       func() time.Time

	// first pass after delay, then every period
	delay  time.Duration
	period time.Duration
}

func NewCleaner(runs *store.RunStore, retention time.Duration) *Cleaner {
	return &Cleaner{
		runs:      runs,
		retention: retention,
		now:       time.Now,
		delay:     time.Hour,
		period:    24 * time.Hour,
	}
}

// Start prunes once after c.delay and then every c.period until ctx is
// cancelled. A restart loop must not turn into a vacuum loop, hence the delay.
func (c *Cleaner) Start(ctx context.Context) {
	go func() {
		timer := time.NewTimer(c.delay)
		defer timer.Stop()
		for {
			select {
			case <-ctx.Done():
				slog.Info("cleaner: shutting down")
				return
			case <-timer.C:
				c.cleanup(ctx)
				timer.Reset(c.period)
			}
		}
	}()
}

func (c *Cleaner) cleanup(ctx context.Context) {
	cutoff := c.now().Add(-c.retention)
	slog.Info("cleaner: starting cleanup", "cutoff", cutoff)

	deleted, err := c.runs.DeleteBefore(ctx, cutoff.Unix())
	if err != nil {
		slog.Error("cleaner: error deleting old runs", "error", err)
		return
	}

	if deleted > 0 {
		slog.Info("cleaner: deleted old runs", "count", deleted)
		if err := c.runs.Vacuum(); err != nil {
			slog.Error("cleaner: vacuum error", "error", err)
		}
	}

	slog.Info("cleaner: cleanup complete")
}
