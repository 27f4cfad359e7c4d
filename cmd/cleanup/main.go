package main

import (
	"context"
	"flag"
	"time"

	"github.com/waveline/notify-server/internal/delivery"
	"github.com/waveline/notify-server/internal/repositories"
	"github.com/waveline/notify-server/pkg/config"
	"github.com/waveline/notify-server/pkg/logger"
)

func main() {
	var (
		readDays  = flag.Int("read-days", 0, "purge read notifications older than this many days (default from config)")
		allDays   = flag.Int("all-days", 0, "purge all notifications older than this many days (default from config)")
		batchSize = flag.Int("batch-size", 0, "delete batch size (default from config)")
		dryRun    = flag.Bool("dry-run", false, "count without deleting")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	db, err := config.InitDB(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize databases")
	}
	defer db.CloseDB()

	opts := delivery.CleanupOptions{
		ReadRetention: time.Duration(cfg.Notifications.ReadRetentionDays) * 24 * time.Hour,
		AllRetention:  time.Duration(cfg.Notifications.RetentionDays) * 24 * time.Hour,
		BatchSize:     cfg.Notifications.PurgeBatchSize,
		DryRun:        *dryRun,
	}
	if *readDays > 0 {
		opts.ReadRetention = time.Duration(*readDays) * 24 * time.Hour
	}
	if *allDays > 0 {
		opts.AllRetention = time.Duration(*allDays) * 24 * time.Hour
	}
	if *batchSize > 0 {
		opts.BatchSize = *batchSize
	}

	cleaner := delivery.NewCleaner(repositories.NewPostgresNotificationRepository(db.Postgres), log)

	res, err := cleaner.Run(context.Background(), opts)
	if err != nil {
		log.Fatal().Err(err).Msg("cleanup failed")
	}

	log.Info().
		Int64("read_purged", res.ReadPurged).
		Int64("all_purged", res.AllPurged).
		Bool("dry_run", *dryRun).
		Msg("cleanup finished")
}
