package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/steiner385/MachShop-sub017/config"
	"github.com/steiner385/MachShop-sub017/domain/repository"
	"github.com/steiner385/MachShop-sub017/domain/service"
	"github.com/steiner385/MachShop-sub017/infrastructure/notify"
	"github.com/steiner385/MachShop-sub017/infrastructure/provider"
	"github.com/steiner385/MachShop-sub017/infrastructure/storage/memory"
	"github.com/steiner385/MachShop-sub017/infrastructure/storage/postgres"
	"github.com/steiner385/MachShop-sub017/infrastructure/storage/rediscache"
	transport "github.com/steiner385/MachShop-sub017/transport/http"
)

const serviceName = "erp-reconciler"

func main() {
	cfg, err := config.LoadConfig("./config")
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("Configuration validation failed: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting reconciliation service",
		zap.String("service", serviceName),
		zap.String("environment", cfg.Service.Environment),
		zap.String("integration_id", cfg.Service.IntegrationID),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Persistence.
	var (
		discrepancyStore repository.DiscrepancyStore
		reportStore      repository.ReportStore
		jobStore         repository.JobStore
		operationStore   repository.OperationStore
		conflictStore    repository.ConflictStore
	)
	switch cfg.Storage.Backend {
	case "postgres":
		store, err := postgres.NewStore(cfg.Storage.Postgres, logger)
		if err != nil {
			logger.Fatal("Failed to initialize postgres store", zap.Error(err))
		}
		defer store.Close()
		discrepancyStore, reportStore, jobStore, operationStore, conflictStore = store, store, store, store, store
	default:
		store := memory.NewStore()
		discrepancyStore, reportStore, jobStore, operationStore, conflictStore = store, store, store, store, store
	}
	if cfg.Storage.Redis.Enabled {
		cache, err := rediscache.NewCache(ctx, cfg.Storage.Redis, logger)
		if err != nil {
			logger.Fatal("Failed to initialize redis cache", zap.Error(err))
		}
		defer cache.Close()
		reportStore = rediscache.NewReportStore(reportStore, cache, logger)
	}

	// Audit/notification sink.
	var notifier repository.Notifier
	if cfg.Notify.Enabled {
		kafkaNotifier := notify.NewKafkaNotifier(cfg.Notify, logger)
		defer kafkaNotifier.Close()
		notifier = kafkaNotifier
	}

	// Core services.
	clock := repository.SystemClock{}
	recordProvider := provider.NewHTTPProvider(cfg.Providers, logger)
	detector := service.NewDiscrepancyDetector(cfg.Detection, clock, logger)
	coordinator := service.NewEntityReconciliationCoordinator(cfg.Detection, detector, recordProvider, clock, logger)
	reports := service.NewReconciliationReportBuilder(cfg.Reporting, reportStore, clock, notifier, logger)
	scheduler := service.NewSyncJobScheduler(cfg.Scheduler, jobStore, clock, notifier, logger)
	conflicts := service.NewConflictResolutionEngine(cfg.Detection, conflictStore, clock, notifier, logger)
	executor := service.NewSyncExecutor(detector, conflicts, operationStore, clock, notifier, logger)

	runner := service.NewSyncRunner(cfg.Scheduler, cfg.Detection, scheduler, executor, recordProvider, logger)
	runner.Start(ctx)
	defer runner.Stop()

	// HTTP edge.
	if cfg.Service.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	metrics := transport.NewMetrics()
	handler := transport.NewHandler(
		cfg.Service.IntegrationID,
		coordinator, reports, scheduler, executor, conflicts,
		reportStore, discrepancyStore, clock, metrics, logger,
	)
	handler.Register(router)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("HTTP server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// Graceful shutdown: stop taking requests, then let the in-flight job
	// finish through runner.Stop (deferred).
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", zap.Error(err))
	}
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	zapCfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	return zapCfg.Build()
}
