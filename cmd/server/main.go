package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.uber.org/zap"

	"github.com/stashd/stash/internal/agent"
	"github.com/stashd/stash/internal/classify"
	"github.com/stashd/stash/internal/config"
	"github.com/stashd/stash/internal/connections"
	"github.com/stashd/stash/internal/conversation"
	"github.com/stashd/stash/internal/database"
	"github.com/stashd/stash/internal/handlers"
	"github.com/stashd/stash/internal/locks"
	"github.com/stashd/stash/internal/logger"
	"github.com/stashd/stash/internal/maintenance"
	"github.com/stashd/stash/internal/middleware"
	"github.com/stashd/stash/internal/outbox"
	"github.com/stashd/stash/internal/queue"
	"github.com/stashd/stash/internal/services/ai"
	"github.com/stashd/stash/internal/services/extract"
	"github.com/stashd/stash/internal/taxonomy"
	"github.com/stashd/stash/internal/telemetry"
)

const serviceName = "stash-api"

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug mode for LLM API logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	debugMode := cfg.ServerDebugMode || *debugFlag

	zapLogger, err := logger.New(cfg.Environment, debugMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() {
		_ = logger.Sync(zapLogger)
	}()

	zapLogger.Info("starting_server",
		zap.Bool("debug_mode", debugMode),
		zap.String("server_port", cfg.ServerPort),
		zap.String("ai_model", cfg.AIModel),
		zap.Bool("otel_enabled", cfg.OTELEnabled),
	)

	if cfg.OpenAIKey == "" {
		zapLogger.Fatal("openai_api_key_required")
	}

	// OpenTelemetry tracing (optional).
	if cfg.OTELEnabled {
		shutdownTracing, err := telemetry.Init(context.Background(), serviceName, cfg.OTELEndpoint)
		if err != nil {
			zapLogger.Warn("failed_to_initialize_otel_tracer", zap.Error(err))
		} else {
			zapLogger.Info("otel_tracer_initialized", zap.String("endpoint", cfg.OTELEndpoint))
			defer func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				if err := shutdownTracing(shutdownCtx); err != nil {
					zapLogger.Error("failed_to_shutdown_otel_tracer", zap.Error(err))
				}
			}()
		}
	}

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			zapLogger.Warn("failed_to_close_database_connection", zap.Error(err))
		}
	}()
	zapLogger.Info("connected_to_database")

	redisLimiter, err := middleware.NewRedisRateLimiter(cfg.RedisURL)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_redis", zap.Error(err))
	}
	defer func() {
		if err := redisLimiter.Close(); err != nil {
			zapLogger.Warn("failed_to_close_redis_connection", zap.Error(err))
		}
	}()
	zapLogger.Info("connected_to_redis")

	jobQueue, err := connectRabbitMQ(cfg.RabbitMQURL, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_rabbitmq_after_retries", zap.Error(err))
	}
	defer func() {
		if err := jobQueue.Close(); err != nil {
			zapLogger.Warn("failed_to_close_rabbitmq_connection", zap.Error(err))
		}
	}()

	// Repositories.
	noteRepo := database.NewNoteRepository(db)
	bucketRepo := database.NewBucketRepository(db)
	suggestionRepo := database.NewSuggestionRepository(db)
	connectionRepo := database.NewConnectionRepository(db)
	conversationRepo := database.NewConversationRepository(db)
	maintenanceStateRepo := database.NewMaintenanceStateRepository(db)
	ratelimitConfigRepo := database.NewRatelimitConfigRepository(db)

	// Shared infrastructure.
	ob := outbox.New(zapLogger, 0)
	tax := taxonomy.NewCache(bucketRepo, noteRepo, time.Duration(cfg.TaxonomyCacheTTLSecs)*time.Second)
	publisher := queue.NewPublisher(jobQueue)
	model := ai.NewOpenAIProviderWithLogger(cfg.OpenAIKey, cfg.AIBaseURL, cfg.AIModel, cfg.EmbeddingModel, zapLogger, debugMode)

	// Domain services.
	classifier := classify.NewEngine(model, tax, bucketRepo, zapLogger)
	detector := connections.NewDetector(noteRepo, connectionRepo, zapLogger)
	executor := maintenance.NewExecutor(bucketRepo, noteRepo, tax, zapLogger)
	trigger := maintenance.NewTrigger(maintenanceStateRepo, publisher, ob, zapLogger)
	convStore := conversation.NewStore(conversationRepo, ob)
	ownerLocks := locks.NewOwnerLocks(time.Duration(cfg.OwnerLockTimeoutSecs)*time.Second, zapLogger)

	dispatcher := agent.NewDispatcher(noteRepo, bucketRepo, tax, classifier, detector, model, ob, zapLogger)
	dispatcher.SetNoteSavedHook(trigger.NoteSaved)
	loop := agent.NewLoop(model, dispatcher, zapLogger, cfg.AgentMaxTurns)

	// Handlers.
	noteHandler := handlers.NewNoteHandler(noteRepo, tax, extract.New(nil), publisher, trigger.NoteSaved, zapLogger)
	bucketHandler := handlers.NewBucketHandler(bucketRepo, noteRepo, tax, zapLogger)
	suggestionHandler := handlers.NewSuggestionHandler(suggestionRepo, executor, zapLogger)
	chatHandler := handlers.NewChatHandler(loop, dispatcher, convStore, ownerLocks, zapLogger)
	healthChecker := handlers.NewHealthChecker(db, jobQueue)

	r := mux.NewRouter()

	// Middleware executes in registration order, outermost first.
	if cfg.OTELEnabled {
		r.Use(otelmux.Middleware(serviceName))
	}
	r.Use(middleware.SecurityHeaders(cfg.EnableHSTS))
	r.Use(middleware.CORSFromEnv(cfg.FrontendURL))
	r.Use(middleware.MaxRequestSize(middleware.DefaultMaxRequestSize))
	r.Use(middleware.ContentType)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(middleware.ErrorHandler(zapLogger))
	r.Use(middleware.Audit(zapLogger))
	r.Use(middleware.Logging(zapLogger))

	rateLimitReloader := middleware.NewRateLimitReloader(redisLimiter.Client(), ratelimitConfigRepo, "5-S", zapLogger, 1*time.Minute)
	if rateLimitReloader == nil {
		zapLogger.Fatal("failed_to_create_rate_limit_reloader")
	}

	// Public routes.
	r.HandleFunc("/healthz", healthChecker.HealthCheck).Methods("GET")
	r.HandleFunc("/version", versionInfo).Methods("GET")

	openAPIPath := filepath.Join("api", "openapi", "openapi.yaml")
	handlers.NewOpenAPIHandler(openAPIPath).RegisterRoutes(r)

	// Owner-scoped API routes.
	apiRouter := r.PathPrefix("/api/v1").Subrouter()
	apiRouter.Use(rateLimitReloader.Middleware())
	apiRouter.Use(middleware.Owner())

	noteHandler.RegisterRoutes(apiRouter.PathPrefix("/notes").Subrouter())
	bucketHandler.RegisterRoutes(apiRouter.PathPrefix("/buckets").Subrouter())
	suggestionHandler.RegisterRoutes(apiRouter.PathPrefix("/suggestions").Subrouter())
	chatHandler.RegisterRoutes(apiRouter)

	// Preflight requests short-circuit after the CORS middleware has
	// set its headers.
	r.Methods("OPTIONS").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	srv := &http.Server{
		Addr:           ":" + cfg.ServerPort,
		Handler:        r,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()
	go rateLimitReloader.Start(bgCtx)

	// DLQ garbage collector: hourly sweep, 24h retention.
	if dlqPurger, ok := jobQueue.(queue.DLQPurger); ok {
		dlqGC := queue.NewGarbageCollector(dlqPurger, 1*time.Hour, 24*time.Hour)
		go func() {
			if err := dlqGC.Start(bgCtx); err != nil && err != context.Canceled {
				zapLogger.Error("dlq_garbage_collector_stopped_with_error", zap.Error(err))
			}
		}()
		zapLogger.Info("started_dlq_garbage_collector")
	}

	go func() {
		zapLogger.Info("server_starting", zap.String("port", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("server_failed_to_start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("server_shutting_down")
	bgCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Fatal("server_forced_to_shutdown", zap.Error(err))
	}

	// Drain pending outbox work (conversation writes, maintenance
	// triggers) before closing connections.
	ob.Wait()

	zapLogger.Info("server_exited")
}

// connectRabbitMQ retries the broker connection with capped exponential
// backoff to ride out broker startup delays.
func connectRabbitMQ(amqpURL string, zapLogger *zap.Logger) (queue.JobQueue, error) {
	const maxRetries = 10
	const initialDelay = 2 * time.Second

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		jobQueue, err := queue.NewRabbitMQQueue(amqpURL)
		if err == nil {
			zapLogger.Info("connected_to_rabbitmq")
			return jobQueue, nil
		}

		lastErr = err
		delay := initialDelay * time.Duration(1<<uint(attempt))
		if delay > 30*time.Second {
			delay = 30 * time.Second
		}
		zapLogger.Warn("failed_to_connect_to_rabbitmq_retrying",
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", maxRetries),
			zap.Error(err),
			zap.Duration("retry_delay", delay),
		)
		time.Sleep(delay)
	}
	return nil, lastErr
}

func versionInfo(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, `{"version":"1.0.0","timestamp":"%s"}`, time.Now().UTC().Format(time.RFC3339))
}
