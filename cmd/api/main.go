package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/wms-platform/pick-floor/internal/application"
	"github.com/wms-platform/pick-floor/internal/domain"
	"github.com/wms-platform/pick-floor/internal/infrastructure/inventory"
	"github.com/wms-platform/pick-floor/internal/infrastructure/memory"
	mongoRepo "github.com/wms-platform/pick-floor/internal/infrastructure/mongodb"
	"github.com/wms-platform/pick-floor/internal/push"
	"github.com/wms-platform/pick-floor/pkg/cloudevents"
	"github.com/wms-platform/pick-floor/pkg/idempotency"
	"github.com/wms-platform/pick-floor/pkg/kafka"
	"github.com/wms-platform/pick-floor/pkg/logging"
	"github.com/wms-platform/pick-floor/pkg/metrics"
	"github.com/wms-platform/pick-floor/pkg/middleware"
	"github.com/wms-platform/pick-floor/pkg/mongodb"
	"github.com/wms-platform/pick-floor/pkg/outbox"
	"github.com/wms-platform/pick-floor/pkg/temporal"
	"github.com/wms-platform/pick-floor/pkg/tracing"
)

const serviceName = "pick-floor-api"

func main() {
	// Setup enhanced logger
	logConfig := logging.DefaultConfig(serviceName)
	logConfig.Level = logging.LogLevel(getEnv("LOG_LEVEL", "info"))
	logConfig.Environment = getEnv("ENVIRONMENT", "development")
	logConfig.Version = getEnv("APP_VERSION", "dev")
	logger := logging.New(logConfig)
	logger.SetDefault()

	logger.Info("Starting pick-floor API")

	config := loadConfig()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize OpenTelemetry tracing
	tracingConfig := tracing.DefaultConfig(serviceName)
	tracingConfig.OTLPEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")
	tracingConfig.Environment = logConfig.Environment
	tracingConfig.ServiceVersion = config.Version
	tracingConfig.Enabled = getEnv("TRACING_ENABLED", "false") == "true"

	tracerProvider, err := tracing.Initialize(ctx, tracingConfig)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize tracing")
		// Continue without tracing
	} else if tracerProvider != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
				logger.WithError(err).Error("Failed to shutdown tracer")
			}
		}()
		logger.Info("Tracing initialized", "endpoint", tracingConfig.OTLPEndpoint)
	}

	m := metrics.New(metrics.DefaultConfig(serviceName))
	logger.Info("Metrics initialized")

	eventFactory := cloudevents.NewEventFactory("/pick-floor")
	hub := push.NewHub(config.Version, logger, m)
	defer hub.Close()

	var (
		units    domain.UnitRepository
		timeline domain.TimelineRepository
		bins     domain.BinStockRepository
		keys     idempotency.KeyRepository
		ready    = func() error { return nil }
		workers  []func(ctx context.Context) error
	)

	switch config.StorageMode {
	case "memory":
		repo := memory.NewUnitRepository()
		repo.OnEvents(hub.OnUnitEvents)
		units, timeline = repo, repo
		bins = memory.NewBinStockRepository()
		keys = idempotency.NewMemoryKeyRepository()
		logger.Warn("Running with in-memory storage; state is lost on restart")

	case "mongo":
		config.MongoDB.Monitor = mongodb.NewCommandMonitor(m, logger)
		mongoClient, err := mongodb.NewClient(ctx, config.MongoDB)
		if err != nil {
			logger.WithError(err).Error("Failed to connect to MongoDB")
			os.Exit(1)
		}
		defer mongoClient.Close(context.Background())
		logger.Info("Connected to MongoDB", "database", config.MongoDB.Database)

		db := mongoClient.Database()
		unitRepo := mongoRepo.NewUnitRepository(db, eventFactory)
		binRepo := mongoRepo.NewBinStockRepository(db, eventFactory)
		keyRepo := idempotency.NewMongoKeyRepository(db)
		if err := ensureIndexes(ctx, unitRepo, binRepo, keyRepo); err != nil {
			logger.WithError(err).Warn("Failed to initialize indexes")
		} else {
			logger.Info("Indexes initialized")
		}
		units, timeline, bins, keys = unitRepo, mongoRepo.NewTimelineRepository(db), binRepo, keyRepo
		ready = func() error { return mongoClient.HealthCheck(ctx) }

		// Outbox publisher drains saved events to Kafka
		producer := kafka.NewInstrumentedProducer(kafka.NewProducer(config.Kafka), m, logger)
		defer producer.Close()
		outboxPublisher := outbox.NewPublisher(unitRepo.OutboxRepository(), producer, logger, m, &outbox.PublisherConfig{
			PollInterval: 1 * time.Second,
			BatchSize:    100,
		})
		if err := outboxPublisher.Start(ctx); err != nil {
			logger.WithError(err).Error("Failed to start outbox publisher")
			os.Exit(1)
		}
		defer outboxPublisher.Stop()
		logger.Info("Outbox publisher started", "brokers", config.Kafka.Brokers)

		// Every instance consumes the whole topic so each hub sees every change
		consumer := kafka.NewConsumer(config.PushKafka, logger, m)
		consumer.SubscribeAll(kafka.Topics.PickingEvents, hub.HandleEvent)
		defer consumer.Close()
		workers = append(workers, consumer.Start)

	default:
		logger.Error("Unknown STORAGE_MODE", "mode", config.StorageMode)
		os.Exit(1)
	}

	var gateway domain.InventoryGateway
	switch config.InventoryMode {
	case "remote":
		gateway = inventory.NewHTTPGateway(inventory.DefaultHTTPConfig(config.InventoryURL), logger, m)
		logger.Info("Using remote inventory", "url", config.InventoryURL)
	default:
		var scheduler inventory.ReplenishmentScheduler
		if config.TemporalEnabled {
			temporalClient, err := temporal.NewClient(ctx, config.Temporal, logger)
			if err != nil {
				logger.WithError(err).Warn("Temporal unavailable; replenishment will not be scheduled")
			} else {
				defer temporalClient.Close()
				scheduler = inventory.NewTemporalScheduler(temporalClient)
			}
		}
		gateway = inventory.NewLedgerGateway(bins, scheduler, logger, m)
		logger.Info("Using embedded inventory ledger", "replenishment", scheduler != nil)
	}

	queueService := application.NewQueueService(units, timeline, gateway, logger, m)
	reconciliationService := application.NewReconciliationService(gateway, logger)

	// Setup Gin router with middleware
	gin.SetMode(getEnv("GIN_MODE", gin.ReleaseMode))
	router := gin.New()
	middleware.Setup(router, middleware.DefaultConfig(serviceName, logger))
	router.Use(middleware.MetricsMiddleware(m))
	router.Use(middleware.SimpleTracingMiddleware(serviceName))

	router.GET("/health", middleware.HealthCheck(serviceName))
	router.GET("/ready", middleware.ReadinessCheck(serviceName, ready))
	router.GET("/metrics", middleware.MetricsEndpoint(m))
	router.GET("/version", versionHandler(config.Version))

	api := router.Group("/api/v1")
	api.Use(idempotency.Middleware(&idempotency.Config{
		ServiceName:     serviceName,
		Repository:      keys,
		Logger:          logger,
		RetentionPeriod: 24 * time.Hour,
		LockTimeout:     5 * time.Minute,
	}))
	registerRoutes(api, queueService, reconciliationService, logger)
	api.GET("/ws", gin.WrapF(hub.ServeWS))

	srv := &http.Server{
		Addr:         config.ServerAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Server started", "addr", config.ServerAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	for _, run := range workers {
		run := run
		g.Go(func() error { return run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Error("Server forced to shutdown")
	}
	logger.Info("Server stopped")
}

type indexer interface {
	EnsureIndexes(ctx context.Context) error
}

func ensureIndexes(ctx context.Context, repos ...indexer) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, repo := range repos {
		repo := repo
		g.Go(func() error { return repo.EnsureIndexes(gctx) })
	}
	return g.Wait()
}

// Config holds application configuration
type Config struct {
	ServerAddr      string
	Version         string
	StorageMode     string
	InventoryMode   string
	InventoryURL    string
	TemporalEnabled bool
	MongoDB         *mongodb.Config
	Kafka           *kafka.Config
	PushKafka       *kafka.Config
	Temporal        *temporal.Config
}

func loadConfig() *Config {
	hostname, _ := os.Hostname()
	brokers := []string{getEnv("KAFKA_BROKERS", "localhost:9092")}

	pushKafka := kafka.DefaultConfig()
	pushKafka.Brokers = brokers
	pushKafka.ConsumerGroup = "pick-floor-push-" + getEnv("INSTANCE_ID", hostname)
	pushKafka.ClientID = serviceName
	pushKafka.StartFromLatest = true

	temporalConfig := temporal.DefaultConfig()
	temporalConfig.HostPort = getEnv("TEMPORAL_HOST", temporalConfig.HostPort)
	temporalConfig.Namespace = getEnv("TEMPORAL_NAMESPACE", temporalConfig.Namespace)
	temporalConfig.Identity = serviceName

	return &Config{
		ServerAddr:      getEnv("SERVER_ADDR", ":8080"),
		Version:         getEnv("APP_VERSION", "dev"),
		StorageMode:     getEnv("STORAGE_MODE", "mongo"),
		InventoryMode:   getEnv("INVENTORY_MODE", "embedded"),
		InventoryURL:    getEnv("INVENTORY_SERVICE_URL", "http://localhost:8008"),
		TemporalEnabled: getEnv("TEMPORAL_ENABLED", "true") == "true",
		MongoDB: &mongodb.Config{
			URI:            getEnv("MONGODB_URI", "mongodb://localhost:27017"),
			Database:       getEnv("MONGODB_DATABASE", "pick_floor_db"),
			ConnectTimeout: 10 * time.Second,
			MaxPoolSize:    100,
			MinPoolSize:    10,
		},
		Kafka: &kafka.Config{
			Brokers:      brokers,
			ClientID:     serviceName,
			BatchSize:    100,
			BatchTimeout: 10 * time.Millisecond,
			RequiredAcks: -1,
		},
		PushKafka: pushKafka,
		Temporal:  temporalConfig,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
