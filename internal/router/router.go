package router

import (
	"fmt"

	"github.com/labstack/echo/v4"
	eMiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/waveline/notify-server/internal/cache"
	"github.com/waveline/notify-server/internal/delivery"
	"github.com/waveline/notify-server/internal/handlers"
	"github.com/waveline/notify-server/internal/middleware"
	"github.com/waveline/notify-server/internal/models"
	"github.com/waveline/notify-server/internal/notify"
	"github.com/waveline/notify-server/internal/queue"
	"github.com/waveline/notify-server/internal/repositories"
	"github.com/waveline/notify-server/pkg/config"
	"github.com/waveline/notify-server/pkg/mailer"
)

// App bundles the long-running pieces main has to start and stop alongside
// the HTTP server.
type App struct {
	Worker *queue.Worker
}

// SetupMiddleware configures global Echo middleware
func SetupMiddleware(e *echo.Echo) {
	e.Use(eMiddleware.Recover())
	e.Use(eMiddleware.CORS())
}

// SetupRoutes migrates the schema, wires all dependencies and registers every
// route. push and emailSender are the outbound transports; either may be a
// no-op implementation in development.
func SetupRoutes(
	e *echo.Echo,
	cfg *config.Config,
	db *config.DB,
	push delivery.PushSender,
	emailSender mailer.EmailSender,
	logger zerolog.Logger,
) (*App, error) {
	err := db.Postgres.AutoMigrate(
		&models.User{},
		&models.Follow{},
		&models.Notification{},
		&models.NotificationPreferences{},
		&models.PushDevice{},
		&queue.Task{},
		&queue.DeadTask{},
	)
	if err != nil {
		return nil, fmt.Errorf("auto migrate models: %w", err)
	}

	// Health check - always accessible
	e.GET("/health", handlers.HealthCheck)

	// --- Initialize Repositories ---
	userRepo := repositories.NewPostgresUserRepository(db.Postgres)
	followRepo := repositories.NewPostgresFollowRepository(db.Postgres)
	notificationRepo := repositories.NewPostgresNotificationRepository(db.Postgres)
	preferenceRepo := repositories.NewPostgresPreferenceRepository(db.Postgres)
	deviceRepo := repositories.NewPostgresDeviceRepository(db.Postgres)
	taskRepo := repositories.NewPostgresTaskRepository(db.Postgres)

	var postRepo repositories.PostRepository
	if db.Mongo != nil {
		postRepo = repositories.NewMongoPostRepository(db.Mongo.Database("socialmedia"))
	}

	unreadCache := cache.NewUnreadCountCache(db.Redis, logger)

	// --- Queue plumbing ---
	enqueuer, err := queue.NewEnqueuer(taskRepo, queue.WithDefaultMaxRetries(cfg.Queue.MaxRetries))
	if err != nil {
		return nil, fmt.Errorf("create enqueuer: %w", err)
	}

	worker, err := queue.NewWorker(taskRepo,
		queue.WithQueues(delivery.EmailQueue, delivery.PushQueue, queue.DefaultQueueName),
		queue.WithPullInterval(cfg.Queue.PullInterval),
		queue.WithLockTimeout(cfg.Queue.LockTimeout),
		queue.WithConcurrency(cfg.Queue.Concurrency),
		queue.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("create worker: %w", err)
	}

	emailWorker := delivery.NewEmailWorker(notificationRepo, preferenceRepo, userRepo, emailSender, cfg.SiteName, cfg.SiteURL, logger)
	pushWorker := delivery.NewPushWorker(notificationRepo, preferenceRepo, deviceRepo, push, logger)
	digestWorker := delivery.NewDigestWorker(notificationRepo, userRepo, emailSender, cfg.SiteName, cfg.SiteURL, logger)
	worker.RegisterHandlers(emailWorker.Handler(), pushWorker.Handler(), digestWorker.Handler())

	// --- Fan-out dispatcher ---
	guard := notify.NewGuard(notificationRepo, cfg.Notifications.DedupWindow, logger)
	renderer := notify.NewRenderer(logger)
	dispatcher := notify.NewDispatcher(
		notificationRepo, preferenceRepo, userRepo, followRepo, postRepo,
		enqueuer, guard, renderer, unreadCache,
		notify.DispatcherConfig{
			FanoutBatchSize: cfg.Notifications.FanoutBatchSize,
			RetractWindow:   cfg.Notifications.RetractWindow,
			SiteName:        cfg.SiteName,
		},
		logger,
	)

	// --- Protected routes (require JWT authentication) ---
	api := e.Group("/api/v1")
	api.Use(middleware.JWTAuthMiddleware(cfg.JWTSecret))

	notificationHandler := handlers.NewNotificationHandler(notificationRepo, userRepo, unreadCache)
	notificationHandler.RegisterNotificationRoutes(api)

	preferenceHandler := handlers.NewPreferenceHandler(preferenceRepo)
	preferenceHandler.RegisterPreferenceRoutes(api)

	deviceHandler := handlers.NewDeviceHandler(deviceRepo)
	deviceHandler.RegisterDeviceRoutes(api)

	eventHandler := handlers.NewEventHandler(dispatcher)
	eventHandler.RegisterEventRoutes(api)

	logger.Info().
		Dur("dedup_window", cfg.Notifications.DedupWindow).
		Dur("retract_window", cfg.Notifications.RetractWindow).
		Int("fanout_batch", cfg.Notifications.FanoutBatchSize).
		Msg("routes configured")

	return &App{Worker: worker}, nil
}
