package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/cardscope/gradepipe/internal/api/handler"
	"github.com/cardscope/gradepipe/internal/api/router"
	"github.com/cardscope/gradepipe/internal/config"
	"github.com/cardscope/gradepipe/internal/events"
	"github.com/cardscope/gradepipe/internal/imaging"
	"github.com/cardscope/gradepipe/internal/pipeline"
	"github.com/cardscope/gradepipe/internal/pricing"
	"github.com/cardscope/gradepipe/internal/vision"
	"github.com/cardscope/gradepipe/shared/logger"
	"github.com/cardscope/gradepipe/shared/postgresql"
	"github.com/cardscope/gradepipe/shared/rabbitmq"
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

	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting API service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	// Job store with periodic eviction of expired jobs
	store := pipeline.NewStore(cfg.Pipeline.JobTTL, appLogger.Logger)
	store.StartSweeper(rootCtx, cfg.Pipeline.SweepInterval)

	// Image resolver
	resolver := imaging.NewResolver(imaging.Config{
		MaxImages:    cfg.Pipeline.MaxImages,
		MaxBytes:     cfg.Pipeline.MaxImageBytes,
		FetchTimeout: cfg.Pipeline.FetchTimeout,
	}, appLogger.Logger)

	// Vision model client (identity extraction + condition assessment)
	apiKey := os.Getenv(cfg.OpenAI.APIKeyEnv)
	visionClient, err := vision.NewClient(apiKey, cfg.OpenAI.Model, cfg.OpenAI.Timeout, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize vision client: %w", err)
	}

	deps := pipeline.Dependencies{
		Images:   resolver,
		Identity: visionClient,
		Model:    visionClient,
	}

	// Optional Postgres-backed post-grading value estimator
	var dbClient *postgresql.Client
	if cfg.Pricing.Enabled {
		dbClient, err = initPostgreSQL(&cfg.Pricing.Database, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize pricing database: %w", err)
		}
		source := pricing.NewPostgresPriceSource(dbClient)
		deps.Value = pricing.NewEstimator(source, pricing.Config{
			PSAFee: cfg.Pricing.PSAFee,
			BGSFee: cfg.Pricing.BGSFee,
		}, appLogger.Logger)
		appLogger.Info("Post-grading value estimator enabled")
	}

	// Optional RabbitMQ step-event publisher
	var rabbitClient *rabbitmq.Client
	if cfg.Events.Enabled {
		rabbitClient, err = initRabbitMQ(&cfg.Events.RabbitMQ, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
		}
		deps.Events = events.NewPublisher(rabbitClient, appLogger.Logger)
		appLogger.Info("Step event publisher enabled")
	}

	runner := pipeline.NewRunner(store, deps, cfg.Pipeline.ModelTimeout, appLogger.Logger)

	r := initRouter(cfg, appLogger.Logger, store, runner)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Server failed to start",
				slog.Any("error", err),
			)
			os.Exit(1)
		}
	}()

	appLogger.Info("API service is running",
		slog.String("address", addr),
	)

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	cleanup := func() {
		cancel()
		rootCancel()
		if dbClient != nil {
			dbClient.Close()
		}
		if rabbitClient != nil {
			rabbitClient.Close()
		}
	}
	defer cleanup()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown",
			slog.Any("error", err),
		)
		return err
	}

	appLogger.Info("Server shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	})
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	return postgresql.NewClient(&postgresql.Config{
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
	}, logger)
}

// initRabbitMQ initializes the RabbitMQ client
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	return rabbitmq.NewClient(&rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		QueueAutoDelete:    cfg.Queue.AutoDelete,
		QueueExclusive:     cfg.Queue.Exclusive,
		RoutingKey:         cfg.RoutingKey,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}, logger)
}

// initRouter initializes the Gin router with all routes and middleware
func initRouter(cfg *config.Config, logger *slog.Logger, store *pipeline.Store, runner *pipeline.Runner) *gin.Engine {
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	return router.SetupRouter(&handler.Dependencies{
		Logger:    logger,
		Store:     store,
		Runner:    runner,
		MaxImages: cfg.Pipeline.MaxImages,
	})
}
