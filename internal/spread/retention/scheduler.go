package retention

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Pruner deletes recorded signals older than a cutoff.
type Pruner interface {
	DeleteSignalsBefore(ctx context.Context, before time.Time) (int64, error)
}

// MidnightPruner removes signals older than Retention once at start-up, then at
// every UTC midnight.
type MidnightPruner struct {
	Pruner    Pruner
	Retention time.Duration
	Logger    *zap.Logger

	now func() time.Time
}

// Start runs the schedule in a goroutine until ctx is cancelled.
func (m *MidnightPruner) Start(ctx context.Context) {
	go func() {
		// Run immediately once at startup
		m.RunOnce(ctx)

		// Wait until next UTC midnight
		wait := time.NewTimer(time.Until(nextMidnight(m.clock())))
		defer wait.Stop()
		select {
		case <-ctx.Done():
			return
		case <-wait.C:
		}

		// Then run once every 24 hours
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()

		for {
			m.RunOnce(ctx)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

// RunOnce prunes with a one-minute timeout and returns how many signals were removed.
func (m *MidnightPruner) RunOnce(ctx context.Context) int64 {
	if m.Retention <= 0 {
		return 0
	}
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	cutoff := m.clock().Add(-m.Retention)
	n, err := m.Pruner.DeleteSignalsBefore(ctx, cutoff)
	if err != nil {
		m.logger().Warn("failed to prune recorded signals", zap.Time("cutoff", cutoff), zap.Error(err))
		return 0
	}
	m.logger().Info("pruned recorded signals", zap.Int64("removed", n), zap.Time("cutoff", cutoff))
	return n
}

func (m *MidnightPruner) clock() time.Time {
	if m.now != nil {
		return m.now()
	}
	return time.Now()
}

func (m *MidnightPruner) logger() *zap.Logger {
	if m.Logger == nil {
		return zap.NewNop()
	}
	return m.Logger
}

func nextMidnight(now time.Time) time.Time {
	return now.UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)
}
