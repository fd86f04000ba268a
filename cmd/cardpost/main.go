package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/blockedby/cardpost/internal/config"
	"github.com/blockedby/cardpost/internal/database"
	"github.com/blockedby/cardpost/internal/dispatcher"
	"github.com/blockedby/cardpost/internal/logger"
	"github.com/blockedby/cardpost/internal/migrator"
	"github.com/blockedby/cardpost/internal/nats"
	"github.com/blockedby/cardpost/internal/publisher"
	"github.com/blockedby/cardpost/internal/repository"
	"github.com/blockedby/cardpost/internal/scheduler"
	"github.com/blockedby/cardpost/internal/telegram"
	"github.com/blockedby/cardpost/internal/web"
	"github.com/blockedby/cardpost/internal/web/handlers"
	"github.com/blockedby/cardpost/migrations"
)

var version = "dev"

func main() {
	// 1. Load config (.env is optional)
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// 2. Initialize logger
	if err := logger.Init(cfg.LogLevel, cfg.LogFile); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	log := logger.Get()
	log.Info().Str("version", version).Msg("starting cardpost delivery service")

	// 3. Setup context with graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info().Msg("received shutdown signal")
		cancel()
	}()

	// 4. Connect to database and apply migrations. Workers, the trigger and
	// the API share one pool.
	db, err := database.New(ctx, cfg.DatabaseURL, database.WithMaxConns(int32(cfg.Dispatch.Workers+4)))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	m, err := migrator.NewWithFS(migrations.FS)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load migrations")
	}
	if err := m.Up(ctx, cfg.DatabaseURL); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}
	if v, dirty, err := m.Version(ctx, cfg.DatabaseURL); err == nil {
		log.Info().Uint("schema_version", v).Bool("dirty", dirty).Msg("database schema up to date")
	}

	// 5. Connect to NATS. Outcome events are best effort.
	var events dispatcher.OutcomePublisher
	nc, err := nats.New(ctx, cfg.NatsURL)
	if err != nil {
		log.Warn().Err(err).Msg("failed to connect to nats, outcome events disabled")
	} else {
		defer nc.Close()
		if err := nc.EnsureStream(ctx, publisher.StreamSends, publisher.StreamSubjects); err != nil {
			log.Warn().Err(err).Msg("failed to ensure sends stream, outcome events disabled")
		} else {
			events = publisher.NewNATSPublisher(nc)
		}
	}

	// 6. Delivery channels
	var channels dispatcher.Channels

	if cfg.EmailEnabled() {
		mailer, err := dispatcher.NewSMTPMailer(dispatcher.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create smtp mailer")
		}
		channels.Email = dispatcher.NewEmailSender(mailer, log)
	} else {
		log.Warn().Msg("SMTP_HOST or SMTP_FROM not set, email delivery disabled")
	}

	var tgManager *telegram.Manager
	if cfg.TelegramEnabled() {
		tgManager = telegram.NewManager(cfg, db.GORM, log)
		if err := tgManager.Init(ctx); err != nil {
			log.Error().Err(err).Msg("telegram manager init failed")
		}
		tgClient := telegram.NewClient(tgManager, cfg.TGRatePerSecond, log)
		defer tgClient.Close()
		channels.Messenger = dispatcher.NewMessengerSender(tgClient, log)
	} else {
		log.Warn().Msg("TG_API_ID or TG_API_HASH not set, messenger delivery disabled")
	}

	// 7. Repositories, hub and dispatcher
	cardsRepo := repository.NewCardsRepository(db.GORM, cfg.PublicBaseURL, log)
	sendsRepo := repository.NewScheduledSendsRepository(db.Pool, log)

	hub := web.NewHub()
	go hub.Run()

	tracker := dispatcher.NewDeliveryTracker(sendsRepo, cardsRepo, events, hub, log)

	dispatchCfg := dispatcher.Config{
		BatchSize:  cfg.Dispatch.BatchSize,
		Workers:    cfg.Dispatch.Workers,
		JobTimeout: cfg.Dispatch.JobTimeout,
		Retry: dispatcher.RetryPolicy{
			MaxAttempts:     cfg.Dispatch.MaxAttempts,
			InitialInterval: cfg.Dispatch.RetryInitial,
			MaxInterval:     cfg.Dispatch.RetryMax,
		},
	}
	dispatch, err := dispatcher.NewService(sendsRepo, cardsRepo, channels, tracker, hub, dispatchCfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create dispatcher")
	}

	var runner *dispatcher.Runner
	if cfg.Dispatch.Cron != "" {
		runner, err = dispatcher.NewRunner(cfg.Dispatch.Cron, dispatch, cfg.Dispatch.RunTimeout, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create dispatch schedule")
		}
		runner.Start()
		log.Info().Str("cron", cfg.Dispatch.Cron).Msg("dispatch schedule started")
	}
	if cfg.Dispatch.Secret == "" {
		log.Warn().Msg("DISPATCH_SECRET not set, the trigger endpoint rejects every call")
	}

	// 8. Web handlers
	schedulerSvc := scheduler.NewService(cardsRepo, sendsRepo, log)

	triggerHandler := handlers.NewTriggerHandler(dispatch, cfg.Dispatch.Secret, cfg.Dispatch.RunTimeout, log)
	sendsHandler := handlers.NewSendsHandler(schedulerSvc, log)

	var messengerStatus handlers.MessengerStatus
	if tgManager != nil {
		messengerStatus = tgManager
	}
	statusHandler := handlers.NewDispatcherHandler(dispatch, sendsRepo, messengerStatus, cfg.EmailEnabled(), log)

	// 9. Initialize server
	server := web.NewServer(&web.Config{
		Port:           cfg.HTTPPort,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Version:        version,
	}, hub)

	server.RegisterTriggerHandler(triggerHandler)
	server.RegisterSendsHandler(sendsHandler)
	server.RegisterDispatcherHandler(statusHandler)
	if tgManager != nil {
		server.RegisterMessengerHandler(handlers.NewMessengerHandler(tgManager, hub, log), triggerHandler.RequireSecret)
	}

	// 10. Start server
	log.Info().Int("port", cfg.HTTPPort).Msg("starting web server")
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	// 11. Wait for shutdown
	<-ctx.Done()
	log.Info().Msg("shutting down services...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if runner != nil {
		runner.Stop(shutdownCtx)
	}
	if err := server.Stop(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("server shutdown")
	}
	if tgManager != nil {
		tgManager.CancelQR()
		tgManager.Stop()
	}
	hub.Stop()

	log.Info().Msg("shutdown complete")
}
