package store

import (
	"context"
	"log/slog"
	"time"
)

// DefaultSweepInterval is used when StartSweeper is given a non-positive interval.
const DefaultSweepInterval = time.Minute

// SweepCallback is called after each sweep that removed at least one session.
type SweepCallback func(removed int)

// StartSweeper runs a background goroutine that periodically removes expired
// sessions until ctx is cancelled. The returned channel is closed once the
// goroutine has exited.
func StartSweeper(ctx context.Context, st Store, interval time.Duration, onSweep SweepCallback) <-chan struct{} {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	done := make(chan struct{})
	ticker := time.NewTicker(interval)
	go func() {
		defer close(done)
		defer ticker.Stop()
		slog.Info("session sweeper started", "interval", interval)

		for {
			select {
			case <-ticker.C:
				sweep(ctx, st, onSweep)
			case <-ctx.Done():
				slog.Info("session sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
	return done
}

func sweep(ctx context.Context, st Store, onSweep SweepCallback) {
	removed, err := st.SweepExpired(ctx)
	if err != nil {
		if ctx.Err() == nil {
			slog.Error("session sweeper failed", "error", err)
		}
		return
	}
	if removed == 0 {
		return
	}
	slog.Info("session sweeper removed expired sessions", "count", removed)
	if onSweep != nil {
		onSweep(removed)
	}
}
