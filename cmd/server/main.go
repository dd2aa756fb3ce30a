package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/relaydesk/voicegate/internal/alerts"
	"github.com/relaydesk/voicegate/internal/audio"
	"github.com/relaydesk/voicegate/internal/auth"
	"github.com/relaydesk/voicegate/internal/calendar"
	"github.com/relaydesk/voicegate/internal/callstate"
	"github.com/relaydesk/voicegate/internal/completion"
	"github.com/relaydesk/voicegate/internal/config"
	"github.com/relaydesk/voicegate/internal/event"
	"github.com/relaydesk/voicegate/internal/ingestion"
	"github.com/relaydesk/voicegate/internal/metrics"
	"github.com/relaydesk/voicegate/internal/orchestrator"
	"github.com/relaydesk/voicegate/internal/retrieval"
	"github.com/relaydesk/voicegate/internal/storage"
	"github.com/relaydesk/voicegate/pkg/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Configure logger
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("level", cfg.LogLevel).Msg("invalid log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Info().
		Str("port", cfg.Port).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Str("log_level", cfg.LogLevel).
		Msg("starting voicegate server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Operator alert channel
	notifier := alerts.NewNotifier(log.Logger)

	// Durable storage behind the async writer
	store, err := storage.NewStore(ctx, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize storage")
	}
	writer := storage.NewWriter(store, storage.WriterConfig{
		QueueSize:   cfg.StorageQueueSize,
		MaxAttempts: cfg.StorageMaxAttempts,
		RetryDelay:  cfg.StorageRetryDelay,
	}, notifier, log.Logger)

	// Call state tracker
	tracker := callstate.NewTracker(writer, callstate.DefaultStatusPolicy(cfg.MinTurnsForCompleted), log.Logger)

	// Retrieval: real embeddings with an API key, deterministic local
	// embeddings without one
	var embedder retrieval.Embedder
	if cfg.GeminiAPIKey != "" {
		embedder, err = retrieval.NewGenAIEmbedder(ctx, cfg.GeminiAPIKey, cfg.EmbeddingModel)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create embedding client")
		}
	} else {
		log.Warn().Msg("GEMINI_API_KEY not set, using local hash embeddings")
		embedder = retrieval.NewHashEmbedder()
	}

	registry := retrieval.NewRegistry(log.Logger)
	ingestionService := ingestion.NewService(registry, embedder, log.Logger)
	if cfg.KnowledgeDir != "" {
		if err := ingestionService.LoadDir(ctx, cfg.KnowledgeDir); err != nil {
			log.Fatal().Err(err).Str("dir", cfg.KnowledgeDir).Msg("failed to load knowledge base")
		}
		log.Info().Strs("namespaces", registry.Namespaces()).Msg("knowledge base loaded")
	}

	// Completion service
	var completer completion.Completer
	if cfg.GeminiAPIKey != "" {
		completer, err = completion.NewGenAIClient(ctx, cfg.GeminiAPIKey, cfg.CompletionModel)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create completion client")
		}
	} else {
		log.Warn().Msg("GEMINI_API_KEY not set, using echo completer")
		completer = &completion.Echo{}
	}

	// Calendar booking for scheduled appointments
	booker := calendar.NewGoogleBooker(store, log.Logger)

	// Turn orchestrator
	orch := orchestrator.New(registry, completer, booker, tracker, notifier, orchestrator.Config{
		RetrievalK:        cfg.RetrievalK,
		RetrievalTimeout:  cfg.RetrievalTimeout,
		CompletionTimeout: cfg.CompletionTimeout,
		FallbackResponse:  cfg.FallbackResponse,
	}, log.Logger)

	// Transports
	eventReceiver := event.NewReceiver(tracker, orch, log.Logger)
	audioHandler := audio.NewHandler(orch, tracker, audio.TextCodec{}, audio.TextCodec{}, cfg, log.Logger)

	// Create router
	r := chi.NewRouter()

	// Add middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(log.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Register public routes (no auth required)
	r.Get("/health", healthHandler)

	// Caller-facing audio channel; the telephony provider authenticates
	// callers upstream
	r.Get("/ws/talk", audioHandler.ServeHTTP)

	// Provider webhook, protected by the shared secret
	r.Group(func(r chi.Router) {
		r.Use(auth.WebhookMiddleware(cfg.WebhookSecret, log.Logger))
		r.Post("/webhook", eventReceiver.HandleWebhook)
	})

	// Operator surface
	r.Route("/internal", func(r chi.Router) {
		r.Use(auth.OperatorMiddleware(cfg.OperatorSecret, cfg.SkipAuth, log.Logger))
		r.Get("/event/stats", eventReceiver.GetStats)
		r.Get("/calls/{callID}", eventReceiver.GetCall)
		r.Get("/calls/{callID}/transcript", eventReceiver.GetTranscript)
		r.Post("/ingest", ingestionService.HandleIngest)
		r.Get("/metrics", metrics.Get().Handler())
		r.Get("/alerts", notifier.Handler())
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Msgf("server listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")
	cancel()

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Attempt graceful shutdown
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	// Flush queued persistence work before exiting
	writer.Stop()
	store.Close()

	log.Info().Msg("server stopped")
}

// healthHandler handles health check requests
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","service":"voicegate"}`)
}
