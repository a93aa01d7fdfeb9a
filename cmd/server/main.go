package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"lealta/internal/config"
	"lealta/internal/dispatch"
	"lealta/internal/handler"
	"lealta/internal/metrics"
	"lealta/internal/middleware"
	"lealta/internal/progress"
	"lealta/internal/provider"
	"lealta/internal/queue"
	"lealta/internal/repository"
	"lealta/internal/scheduler"
	"lealta/internal/service"
)

const version = "1.0.0"

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to load config")
	}

	log := newLogger(cfg)

	db, campaigns, jobs, err := openStores(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()
	log.Info().Str("driver", cfg.Database.Driver).Msg("connected to database")

	presets, err := config.NewPresetStore(cfg.Presets.Path, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load pacing presets")
	}
	if cfg.Presets.Watch && cfg.Presets.Path != "" {
		if err := presets.Watch(); err != nil {
			log.Warn().Err(err).Msg("preset hot reload unavailable")
		}
		defer presets.Close()
	}

	client, err := newProvider(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build provider client")
	}
	log.Info().Str("provider", client.Name()).Msg("provider ready")

	var events dispatch.EventSink
	var queueURL string
	if cfg.RabbitMQ.Enabled {
		queueURL = cfg.GetRabbitMQURL()
		conn, err := queue.NewConnection(queueURL, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
		}
		defer conn.Close()

		publisher, err := queue.NewEventPublisher(conn, cfg.RabbitMQ.Queue)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to declare event queue")
		}
		events = publisher
		log.Info().Str("queue", cfg.RabbitMQ.Queue).Msg("event publishing enabled")
	}

	m := metrics.New()

	controller := dispatch.NewController(campaigns, jobs, client, events, m, dispatch.Config{
		WorkerCap:       cfg.Dispatcher.GlobalWorkerCap,
		ProviderTimeout: cfg.Dispatcher.ProviderTimeout,
		RequeuePoll:     cfg.Dispatcher.RequeuePoll,
		StalenessFactor: cfg.Dispatcher.StalenessFactor,
		StalenessFloor:  cfg.Dispatcher.StalenessFloor,
	}, log)

	tracker := progress.NewTracker(campaigns, jobs, cfg.Dispatcher.FailureSampleSize)
	campaignService := service.NewCampaignService(campaigns, jobs, presets, log)
	healthService := service.NewHealthService(db, queueURL, version)

	campaignHandler := handler.NewCampaignHandler(campaignService, controller, tracker)
	healthHandler := handler.NewHealthHandler(healthService)

	router := mux.NewRouter()
	router.Use(middleware.Recovery(log))
	router.Use(middleware.RequestLogger(log))

	router.HandleFunc("/health", healthHandler.HandleHealth).Methods("GET")
	router.Handle("/metrics", m.Handler()).Methods("GET")

	router.HandleFunc("/campaigns", campaignHandler.Create).Methods("POST")
	router.HandleFunc("/campaigns", campaignHandler.List).Methods("GET")
	router.HandleFunc("/campaigns/{id}", campaignHandler.Get).Methods("GET")
	router.HandleFunc("/campaigns/{id}/start", campaignHandler.Start).Methods("POST")
	router.HandleFunc("/campaigns/{id}/pause", campaignHandler.Pause).Methods("POST")
	router.HandleFunc("/campaigns/{id}/resume", campaignHandler.Resume).Methods("POST")
	router.HandleFunc("/campaigns/{id}/cancel", campaignHandler.Cancel).Methods("POST")
	router.HandleFunc("/presets/recommendation", campaignHandler.RecommendPreset).Methods("GET")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Scheduler.Enabled {
		sched := scheduler.New(campaigns, controller, cfg.Scheduler.Spec, log)
		go func() {
			if err := sched.Run(ctx); err != nil {
				log.Error().Err(err).Msg("scheduler stopped with error")
			}
		}()
	}

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Server.Port).Str("env", cfg.Env).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}
	if err := controller.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("dispatcher shutdown failed")
	}
	log.Info().Msg("stopped")
}

func newLogger(cfg *config.Config) zerolog.Logger {
	zerolog.DurationFieldUnit = time.Millisecond
	if cfg.IsDevelopment() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
			With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// openStores opens the configured database and returns driver-matched
// store implementations. The sqlite schema is applied on startup because
// sqlite deployments have no migration step.
func openStores(cfg *config.Config) (*sql.DB, repository.CampaignStore, repository.JobStore, error) {
	switch cfg.Database.Driver {
	case "sqlite":
		db, err := sql.Open("sqlite", cfg.Database.SQLiteDSN)
		if err != nil {
			return nil, nil, nil, err
		}
		// Serialized writers keep the claim update atomic.
		db.SetMaxOpenConns(1)
		if _, err := db.Exec(repository.SQLiteSchema); err != nil {
			db.Close()
			return nil, nil, nil, err
		}
		return db, repository.NewSQLiteCampaignStore(db), repository.NewSQLiteJobStore(db), nil
	default:
		db, err := sql.Open("postgres", cfg.GetDatabaseDSN())
		if err != nil {
			return nil, nil, nil, err
		}
		if err := db.Ping(); err != nil {
			db.Close()
			return nil, nil, nil, err
		}
		return db, repository.NewCampaignRepository(db), repository.NewJobRepository(db), nil
	}
}

func newProvider(cfg *config.Config) (provider.Client, error) {
	switch cfg.Provider.Kind {
	case "gateway":
		return provider.NewGatewayClient(cfg.Provider.GatewayURL, cfg.Provider.GatewayKey, nil), nil
	case "telegram":
		return provider.NewTelegramClient(cfg.Provider.BotToken)
	default:
		return provider.NewSimulatedClient(cfg.Provider.SuccessRate), nil
	}
}
