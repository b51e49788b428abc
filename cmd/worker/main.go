package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/workflow"

	"github.com/wms-platform/pick-floor/internal/activities"
	"github.com/wms-platform/pick-floor/internal/infrastructure/inventory"
	mongoRepo "github.com/wms-platform/pick-floor/internal/infrastructure/mongodb"
	"github.com/wms-platform/pick-floor/internal/workflows"
	"github.com/wms-platform/pick-floor/pkg/cloudevents"
	"github.com/wms-platform/pick-floor/pkg/logging"
	"github.com/wms-platform/pick-floor/pkg/metrics"
	"github.com/wms-platform/pick-floor/pkg/mongodb"
	"github.com/wms-platform/pick-floor/pkg/temporal"
)

const serviceName = "pick-floor-worker"

func main() {
	logConfig := logging.DefaultConfig(serviceName)
	logConfig.Level = logging.LogLevel(getEnv("LOG_LEVEL", "info"))
	logConfig.Environment = getEnv("ENVIRONMENT", "development")
	logConfig.Version = getEnv("APP_VERSION", "dev")
	logger := logging.New(logConfig)
	logger.SetDefault()

	logger.Info("Starting pick-floor replenishment worker")

	config := loadConfig()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New(metrics.DefaultConfig(serviceName))
	config.MongoDB.Monitor = mongodb.NewCommandMonitor(m, logger)

	mongoClient, err := mongodb.NewClient(ctx, config.MongoDB)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to MongoDB")
		os.Exit(1)
	}
	defer mongoClient.Close(context.Background())
	logger.Info("Connected to MongoDB", "database", config.MongoDB.Database)

	eventFactory := cloudevents.NewEventFactory("/pick-floor")
	bins := mongoRepo.NewBinStockRepository(mongoClient.Database(), eventFactory)

	// The worker only moves reserve stock; it never schedules more runs
	ledger := inventory.NewLedgerGateway(bins, nil, logger, m)

	temporalClient, err := temporal.NewClient(ctx, config.Temporal, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to create Temporal client")
		os.Exit(1)
	}
	defer temporalClient.Close()
	logger.Info("Connected to Temporal", "hostPort", config.Temporal.HostPort)

	w := temporalClient.NewWorker(temporal.DefaultWorkerOptions(temporal.TaskQueues.Replenishment))

	w.RegisterWorkflowWithOptions(workflows.ReplenishmentWorkflow, workflow.RegisterOptions{
		Name: temporal.WorkflowNames.Replenishment,
	})
	logger.Info("Registered workflow", "workflow", temporal.WorkflowNames.Replenishment)

	replenishmentActivities := activities.NewReplenishmentActivities(ledger)
	w.RegisterActivityWithOptions(replenishmentActivities.MoveReserveStock, activity.RegisterOptions{
		Name: temporal.ActivityNames.MoveReserveStock,
	})
	w.RegisterActivityWithOptions(replenishmentActivities.ClearPendingReplenishment, activity.RegisterOptions{
		Name: temporal.ActivityNames.ClearPendingReplenishment,
	})
	logger.Info("Registered activities")

	if err := w.Start(); err != nil {
		logger.WithError(err).Error("Worker failed to start")
		os.Exit(1)
	}
	logger.Info("Worker started", "taskQueue", temporal.TaskQueues.Replenishment)

	<-ctx.Done()
	logger.Info("Shutting down worker...")

	w.Stop()
	logger.Info("Worker stopped")
}

// Config holds worker configuration
type Config struct {
	MongoDB  *mongodb.Config
	Temporal *temporal.Config
}

func loadConfig() *Config {
	temporalConfig := temporal.DefaultConfig()
	temporalConfig.HostPort = getEnv("TEMPORAL_HOST", temporalConfig.HostPort)
	temporalConfig.Namespace = getEnv("TEMPORAL_NAMESPACE", temporalConfig.Namespace)
	temporalConfig.Identity = serviceName

	return &Config{
		MongoDB: &mongodb.Config{
			URI:            getEnv("MONGODB_URI", "mongodb://localhost:27017"),
			Database:       getEnv("MONGODB_DATABASE", "pick_floor_db"),
			ConnectTimeout: 10 * time.Second,
			MaxPoolSize:    20,
			MinPoolSize:    2,
		},
		Temporal: temporalConfig,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
