package main

import (
	"context"
	"flag"
	"time"

	"github.com/waveline/notify-server/internal/delivery"
	"github.com/waveline/notify-server/internal/queue"
	"github.com/waveline/notify-server/internal/repositories"
	"github.com/waveline/notify-server/pkg/config"
	"github.com/waveline/notify-server/pkg/logger"
)

func main() {
	var (
		dateStr = flag.String("date", "", "calendar day to summarize (YYYY-MM-DD, default yesterday)")
		userID  = flag.Uint("user", 0, "restrict the run to one user id")
		dryRun  = flag.Bool("dry-run", false, "report without enqueueing jobs")
		force   = flag.Bool("force", false, "ignore digest opt-outs")
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

	opts := delivery.DigestOptions{
		UserID: *userID,
		DryRun: *dryRun,
		Force:  *force,
	}
	if *dateStr != "" {
		day, err := time.ParseInLocation("2006-01-02", *dateStr, time.Local)
		if err != nil {
			log.Fatal().Err(err).Str("date", *dateStr).Msg("invalid date")
		}
		opts.Date = day
	}

	taskRepo := repositories.NewPostgresTaskRepository(db.Postgres)
	enqueuer, err := queue.NewEnqueuer(taskRepo, queue.WithDefaultMaxRetries(cfg.Queue.MaxRetries))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create enqueuer")
	}

	scheduler := delivery.NewDigestScheduler(
		repositories.NewPostgresNotificationRepository(db.Postgres),
		repositories.NewPostgresPreferenceRepository(db.Postgres),
		enqueuer,
		log,
	)

	res, err := scheduler.Run(context.Background(), opts)
	if err != nil {
		log.Fatal().Err(err).Msg("digest run failed")
	}

	log.Info().
		Int("users_scanned", res.UsersScanned).
		Int("jobs_enqueued", res.JobsEnqueued).
		Int("users_skipped", res.UsersSkipped).
		Int("notifications", res.Notifications).
		Bool("dry_run", *dryRun).
		Msg("digest finished")
}
