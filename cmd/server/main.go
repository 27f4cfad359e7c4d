package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/waveline/notify-server/internal/delivery"
	"github.com/waveline/notify-server/internal/router"
	"github.com/waveline/notify-server/pkg/config"
	"github.com/waveline/notify-server/pkg/firebase"
	"github.com/waveline/notify-server/pkg/logger"
	"github.com/waveline/notify-server/pkg/mailer"
	"github.com/waveline/notify-server/validators"
)

func main() {
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

	ctx := context.Background()

	// Push transport. Without Firebase credentials, push jobs log and drop.
	var push delivery.PushSender
	if cfg.FirebaseCredentialsPath != "" {
		firebaseApp, err := firebase.InitFirebase(ctx, cfg.FirebaseCredentialsPath)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize Firebase")
		}
		push = firebaseApp
	} else {
		log.Warn().Msg("no Firebase credentials configured, push delivery disabled")
		push = noopPush{}
	}

	// Email transport. Without Postmark tokens, emails are logged instead.
	var emailSender mailer.EmailSender
	if cfg.PostmarkServerToken != "" {
		emailSender, err = mailer.NewPostmarkMailer(mailer.Config{
			ServerToken:  cfg.PostmarkServerToken,
			AccountToken: cfg.PostmarkAccountToken,
			SenderEmail:  cfg.SenderEmail,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize mailer")
		}
	} else {
		log.Warn().Msg("no Postmark tokens configured, using dev email sender")
		emailSender = &mailer.DevSender{Log: func(to, subject string) {
			log.Info().Str("to", to).Str("subject", subject).Msg("dev email sender")
		}}
	}

	e := echo.New()
	e.HideBanner = true
	e.Validator = validators.NewValidator()
	router.SetupMiddleware(e)

	app, err := router.SetupRoutes(e, cfg, db, push, emailSender, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up routes")
	}

	if err := app.Worker.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start queue worker")
	}
	defer app.Worker.Stop()

	go func() {
		if err := e.Start(":" + cfg.Port); err != nil {
			log.Info().Err(err).Msg("http server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	if err := e.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}
}

// noopPush drops every push send. Used when Firebase is not configured.
type noopPush struct{}

func (noopPush) Send(context.Context, string, string, string, map[string]string) error {
	return nil
}
