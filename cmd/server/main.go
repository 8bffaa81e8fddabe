package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"

	"github.com/pesio-ai/be-st-sourcing/internal/client"
	"github.com/pesio-ai/be-st-sourcing/internal/config"
	"github.com/pesio-ai/be-st-sourcing/internal/database"
	"github.com/pesio-ai/be-st-sourcing/internal/handler"
	"github.com/pesio-ai/be-st-sourcing/internal/logger"
	"github.com/pesio-ai/be-st-sourcing/internal/middleware"
	"github.com/pesio-ai/be-st-sourcing/internal/repository"
	"github.com/pesio-ai/be-st-sourcing/internal/service"
	"github.com/pesio-ai/be-st-sourcing/internal/workflow"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:       cfg.Service.LogLevel,
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name,
		Version:     cfg.Service.Version,
	})

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("environment", cfg.Service.Environment).
		Msg("Starting Sourcing Service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	db, err := database.New(ctx, database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.Database,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.MaxConns,
		MinConns: cfg.Database.MinConns,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("Database connection established")

	// Initialize repositories
	offerRepo := repository.NewOfferRepository(db)
	jobRepo := repository.NewJobRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	workflowRepo := repository.NewWorkflowRepository(db)
	configRepo := repository.NewWorkflowConfigRepository(db)
	userRoleRepo := repository.NewUserRoleRepository(db)
	historyRepo := repository.NewCandidateHistoryRepository(db)

	// Initialize workflow engine
	selector := workflow.NewSelector(configRepo, cfg.Workflow.ConfigCacheTTL, log.Logger)
	trigger := workflow.NewTrigger(selector, userRoleRepo, log.Logger)

	// Initialize NATS notification publisher
	var nc *nats.Conn
	if cfg.NATS.Enabled {
		nc, err = nats.Connect(cfg.NATS.URL,
			nats.Name(cfg.Service.Name),
			nats.MaxReconnects(-1),
		)
		if err != nil {
			log.Fatal().Err(err).Str("url", cfg.NATS.URL).Msg("Failed to connect to NATS")
		}
		defer nc.Drain()
		log.Info().Str("url", cfg.NATS.URL).Msg("NATS connection established")
	}
	notifier, err := client.NewNotificationPublisher(nc, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create notification publisher")
	}

	// Initialize credentialing client
	var credentialing client.CredentialingClientInterface
	if cfg.Credentialing.Enabled {
		credentialing = client.NewCredentialingClient(cfg.Credentialing.BaseURL, cfg.Credentialing.Timeout)
		log.Info().Str("base_url", cfg.Credentialing.BaseURL).Msg("Credentialing client initialized")
	}

	// Initialize services
	dispatcher := service.NewSideEffectDispatcher(credentialing, notifier, historyRepo, log)
	workflowService := service.NewWorkflowService(db, trigger, workflowRepo, offerRepo, jobRepo, submissionRepo, dispatcher, log)
	offerService := service.NewOfferService(db, offerRepo, submissionRepo, workflowRepo, workflowService, log)
	jobService := service.NewJobService(db, jobRepo, workflowService, log)
	submissionService := service.NewSubmissionService(db, submissionRepo, jobRepo, historyRepo, workflowService, log)

	// Setup HTTP routes
	httpHandler := handler.NewHTTPHandler(offerService, jobService, submissionService, workflowService, log)
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	// Offer routes
	mux.HandleFunc("/api/v1/offers", httpHandler.Offers)
	mux.HandleFunc("/api/v1/offers/get", httpHandler.GetOffer)
	mux.HandleFunc("/api/v1/offers/update", httpHandler.UpdateOffer)
	mux.HandleFunc("/api/v1/offers/counter", httpHandler.CounterOffer)
	mux.HandleFunc("/api/v1/offers/accept", httpHandler.AcceptOffer)
	mux.HandleFunc("/api/v1/offers/withdraw", httpHandler.WithdrawOffer)

	// Job routes
	mux.HandleFunc("/api/v1/jobs", httpHandler.Jobs)

	// Submission routes
	mux.HandleFunc("/api/v1/submissions/submit", httpHandler.SubmitCandidate)
	mux.HandleFunc("/api/v1/candidates/history", httpHandler.CandidateHistory)

	// Workflow routes
	mux.HandleFunc("/api/v1/workflows/advance", httpHandler.AdvanceWorkflow)
	mux.HandleFunc("/api/v1/workflows/get", httpHandler.GetWorkflow)
	mux.HandleFunc("/api/v1/workflows/pending", httpHandler.PendingWorkflows)
	mux.HandleFunc("/api/v1/workflows/pending/count", httpHandler.CountPendingWorkflows)

	// Apply middleware
	var h http.Handler = mux
	h = middleware.RequestID(h)
	h = middleware.Logger(&log.Logger)(h)
	h = middleware.Recovery(&log.Logger)(h)
	h = middleware.CORS([]string{"*"})(h)
	h = middleware.Timeout(cfg.Server.RequestTimeout)(h)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	log.Info().Msg("Server stopped")
}
