package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/cuongbtq/docconv/internal/config"
	"github.com/cuongbtq/docconv/internal/correction"
	"github.com/cuongbtq/docconv/internal/extraction"
	"github.com/cuongbtq/docconv/internal/queue"
	"github.com/cuongbtq/docconv/internal/render"
	"github.com/cuongbtq/docconv/internal/store"
	"github.com/cuongbtq/docconv/internal/worker"
	"github.com/cuongbtq/docconv/shared/database"
	"github.com/cuongbtq/docconv/shared/logger"
	"github.com/cuongbtq/docconv/shared/rabbitmq"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	// Parse command-line flags
	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	provider, err := cfg.ResolveProvider(os.Getenv)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("correction_provider", provider),
	)

	// Initialize database client
	dbClient, err := initDatabase(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	taskStore := store.NewStore(dbClient.GetDB(), appLogger.Logger)
	if err := taskStore.Migrate(context.Background()); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	appLogger.Info("Database connection established")

	// Initialize RabbitMQ client for job events
	var publisher worker.EventPublisher
	if cfg.RabbitMQ.Enabled {
		rabbitClient, err := initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
		}
		defer rabbitClient.Close()
		publisher = rabbitClient

		appLogger.Info("RabbitMQ connection established")
	}

	corrector, err := correction.New(provider, correctionConfig(&cfg.Correction), appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize correction: %w", err)
	}

	// Jobs left in processing by a previous run go back to waiting
	if _, err := worker.Recover(context.Background(), taskStore, appLogger.Logger); err != nil {
		return fmt.Errorf("failed to recover jobs: %w", err)
	}

	jobQueue := queue.New(cfg.Dispatcher.QueueCapacity)

	// Create worker instance
	workerInstance := worker.NewWorker(&worker.Config{
		Logger:       appLogger.Logger,
		Store:        taskStore,
		Queue:        jobQueue,
		Extractor:    extraction.NewInvoker(extractionConfig(&cfg.Extraction), nil, appLogger.Logger),
		Corrector:    corrector,
		Renderer:     render.NewFitzRenderer(cfg.Correction.ImageWidth, cfg.Correction.JPEGQuality),
		Publisher:    publisher,
		Concurrency:  cfg.Worker.Concurrency,
		PollInterval: cfg.Dispatcher.PollInterval,
	})

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start worker in a goroutine
	errChan := make(chan error, 1)
	go func() {
		if err := workerInstance.Start(ctx); err != nil {
			errChan <- err
		}
	}()

	appLogger.Info("Worker service started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case err := <-errChan:
		appLogger.Error("Worker error",
			slog.Any("error", err),
		)
		return err
	}

	// Cancel context to stop dispatching
	cancel()

	// Give in-flight jobs time to finish
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		workerInstance.Stop()
		close(done)
	}()

	select {
	case <-done:
		appLogger.Info("Worker stopped gracefully")
	case <-shutdownCtx.Done():
		appLogger.Warn("Worker shutdown timeout exceeded, forcing exit")
	}

	jobQueue.Close()

	// Claimed jobs that never ran are returned to waiting
	if _, err := worker.Recover(context.Background(), taskStore, appLogger.Logger); err != nil {
		appLogger.Error("Failed to recover jobs on shutdown",
			slog.Any("error", err),
		)
	}

	appLogger.Info("Worker service shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	}

	return logger.New(loggerCfg)
}

// initDatabase initializes the task database client
func initDatabase(cfg *config.DatabaseConfig, logger *slog.Logger) (*database.Client, error) {
	dbConfig := &database.Config{
		Driver:          cfg.Driver,
		Path:            cfg.Path,
		BusyTimeout:     cfg.BusyTimeout,
		ResetOnStart:    cfg.ResetOnStart,
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}

	return database.NewClient(dbConfig, logger)
}

// initRabbitMQ initializes the RabbitMQ event publisher
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	rabbitConfig := &rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		RoutingKey:         cfg.RoutingKey,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}

func extractionConfig(cfg *config.ExtractionConfig) extraction.Config {
	return extraction.Config{
		Command:  cfg.Command,
		Mode:     cfg.Mode,
		Language: cfg.Language,
	}
}

func correctionConfig(cfg *config.CorrectionConfig) correction.Config {
	return correction.Config{
		CustomInstruction: cfg.CustomInstruction,
		Timeout:           cfg.Timeout,
		MaxRetries:        cfg.MaxRetries,
		OpenAI: correction.OpenAIConfig{
			APIKey:      cfg.OpenAI.APIKey,
			BaseURL:     cfg.OpenAI.BaseURL,
			Model:       cfg.OpenAI.Model,
			Temperature: *cfg.OpenAI.Temperature,
			ImageDetail: cfg.OpenAI.ImageDetail,
		},
		Gemini: correction.GeminiConfig{
			APIKey:  cfg.Gemini.APIKey,
			BaseURL: cfg.Gemini.BaseURL,
			Model:   cfg.Gemini.Model,
		},
	}
}
