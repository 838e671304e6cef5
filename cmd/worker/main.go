package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/stashd/stash/internal/classify"
	"github.com/stashd/stash/internal/config"
	"github.com/stashd/stash/internal/connections"
	"github.com/stashd/stash/internal/database"
	"github.com/stashd/stash/internal/logger"
	"github.com/stashd/stash/internal/maintenance"
	"github.com/stashd/stash/internal/queue"
	"github.com/stashd/stash/internal/services/ai"
	"github.com/stashd/stash/internal/taxonomy"
	"github.com/stashd/stash/internal/workers"
)

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug mode for LLM API logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	debugMode := cfg.WorkerDebugMode || *debugFlag

	zapLogger, err := logger.New(cfg.Environment, debugMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() {
		_ = logger.Sync(zapLogger)
	}()

	zapLogger.Info("starting_worker",
		zap.Bool("debug_mode", debugMode),
		zap.String("ai_model", cfg.AIModel),
	)

	if cfg.OpenAIKey == "" {
		zapLogger.Fatal("openai_api_key_required")
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

	noteRepo := database.NewNoteRepository(db)
	bucketRepo := database.NewBucketRepository(db)
	suggestionRepo := database.NewSuggestionRepository(db)
	connectionRepo := database.NewConnectionRepository(db)

	jobQueue, err := queue.NewRabbitMQQueue(cfg.RabbitMQURL)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_rabbitmq", zap.Error(err))
	}
	defer func() {
		if err := jobQueue.Close(); err != nil {
			zapLogger.Warn("failed_to_close_rabbitmq_connection", zap.Error(err))
		}
	}()
	zapLogger.Info("connected_to_rabbitmq", zap.Int("prefetch", cfg.RabbitMQPrefetch))

	model := ai.NewOpenAIProviderWithLogger(cfg.OpenAIKey, cfg.AIBaseURL, cfg.AIModel, cfg.EmbeddingModel, zapLogger, debugMode)

	tax := taxonomy.NewCache(bucketRepo, noteRepo, time.Duration(cfg.TaxonomyCacheTTLSecs)*time.Second)
	classifier := classify.NewEngine(model, tax, bucketRepo, zapLogger)
	detector := connections.NewDetector(noteRepo, connectionRepo, zapLogger)
	maintEngine := maintenance.NewEngine(bucketRepo, noteRepo, suggestionRepo, tax, model, zapLogger)

	enricher := workers.NewEnricher(model, noteRepo, bucketRepo, classifier, detector, maintEngine, tax, jobQueue)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	msgChan, errChan, err := jobQueue.Consume(ctx, cfg.RabbitMQPrefetch)
	if err != nil {
		zapLogger.Fatal("failed_to_start_consuming", zap.Error(err))
	}
	zapLogger.Info("worker_started")

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgChan:
				if !ok {
					zapLogger.Info("message_channel_closed")
					return
				}
				if err := enricher.ProcessJob(ctx, msg); err != nil {
					zapLogger.Error("failed_to_process_job",
						zap.Error(err),
						zap.String("job_id", msg.GetJob().ID.String()),
						zap.String("job_type", string(msg.GetJob().Type)),
					)
				}
			}
		}
	}()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case err, ok := <-errChan:
				if !ok {
					return
				}
				zapLogger.Error("queue_error", zap.Error(err))
			}
		}
	}()

	<-sigChan
	zapLogger.Info("shutdown_signal_received")
	cancel()
	zapLogger.Info("worker_stopped")
}
