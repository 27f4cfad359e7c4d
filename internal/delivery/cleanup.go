package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/waveline/notify-server/internal/repositories"
)

// CleanupOptions controls a retention pass.
type CleanupOptions struct {
	// ReadRetention removes read notifications older than this.
	ReadRetention time.Duration
	// AllRetention removes every notification older than this, read or not.
	AllRetention time.Duration
	// BatchSize bounds each delete batch.
	BatchSize int
	// DryRun counts what would be removed without deleting.
	DryRun bool
}

// CleanupResult reports what a retention pass removed (or would remove).
type CleanupResult struct {
	ReadPurged int64
	AllPurged  int64
}

// Cleaner purges old notifications in bounded batches. Unread rows survive
// the read cutoff and are only removed past the all cutoff.
type Cleaner struct {
	notifications repositories.NotificationRepository
	logger        zerolog.Logger
}

// NewCleaner creates a retention cleaner.
func NewCleaner(notifications repositories.NotificationRepository, logger zerolog.Logger) *Cleaner {
	return &Cleaner{notifications: notifications, logger: logger}
}

// Run executes one retention pass.
func (c *Cleaner) Run(ctx context.Context, opts CleanupOptions) (*CleanupResult, error) {
	now := time.Now()
	readCutoff := now.Add(-opts.ReadRetention)
	allCutoff := now.Add(-opts.AllRetention)

	res := &CleanupResult{}

	if opts.DryRun {
		readCount, err := c.notifications.CountOlderThan(ctx, readCutoff, true)
		if err != nil {
			return res, fmt.Errorf("count read notifications: %w", err)
		}
		allCount, err := c.notifications.CountOlderThan(ctx, allCutoff, false)
		if err != nil {
			return res, fmt.Errorf("count old notifications: %w", err)
		}
		res.ReadPurged = readCount
		res.AllPurged = allCount
		c.logger.Info().
			Int64("read_candidates", readCount).
			Int64("all_candidates", allCount).
			Msg("cleanup dry run complete")
		return res, nil
	}

	readPurged, err := c.notifications.PurgeOlderThan(ctx, readCutoff, true, opts.BatchSize)
	res.ReadPurged = readPurged
	if err != nil {
		return res, fmt.Errorf("purge read notifications: %w", err)
	}

	allPurged, err := c.notifications.PurgeOlderThan(ctx, allCutoff, false, opts.BatchSize)
	res.AllPurged = allPurged
	if err != nil {
		return res, fmt.Errorf("purge old notifications: %w", err)
	}

	c.logger.Info().
		Int64("read_purged", res.ReadPurged).
		Int64("all_purged", res.AllPurged).
		Msg("cleanup complete")
	return res, nil
}
