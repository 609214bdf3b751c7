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

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"tradeledger/configs"
	"tradeledger/internal/adapter/bybit"
	"tradeledger/internal/adapter/redislock"
	"tradeledger/internal/adapter/telegram"
	"tradeledger/internal/database"
	httpdelivery "tradeledger/internal/delivery/http"
	"tradeledger/internal/delivery/ops"
	"tradeledger/internal/domain"
	"tradeledger/internal/infra"
	"tradeledger/internal/logger"
	"tradeledger/internal/repository"
	"tradeledger/internal/service"
	"tradeledger/internal/usecase"
	"tradeledger/internal/utils"
)

func main() {
	cfg, err := configs.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(logger.Config{Level: cfg.Log.Level, OutputFile: cfg.Log.File}); err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	log := logger.WithComponent("main")

	if err := utils.SetLocation(cfg.Import.MetricsTimezone); err != nil {
		log.WithError(err).Warnf("Unknown METRICS_TIMEZONE %q, using UTC", cfg.Import.MetricsTimezone)
	}

	if cfg.Server.JWTSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}

	ctx := context.Background()

	// Initialize database
	db, err := infra.NewDatabase(ctx, cfg.Database)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	if cfg.Database.RunMigrations {
		if err := database.RunMigrations(ctx, db); err != nil {
			log.WithError(err).Fatal("Failed to run migrations")
		}
	}

	// Initialize repositories
	txManager := repository.NewTxManager(db)
	positionRepo := repository.NewPositionRepository(db)
	metricsRepo := repository.NewMetricsRepository(db)
	settingsRepo := repository.NewSystemSettingsRepository(db)

	// Initialize adapters
	exchange := bybit.NewClient(bybit.Config{
		BaseURL:    cfg.Exchange.BaseURL,
		APIKey:     cfg.Exchange.APIKey,
		APISecret:  cfg.Exchange.APISecret,
		RecvWindow: cfg.Exchange.RecvWindow,
		Category:   cfg.Exchange.Category,
		Timeout:    cfg.Exchange.Timeout.Duration,
	})
	if cfg.Exchange.APIKey == "" || cfg.Exchange.APISecret == "" {
		log.Warn("⚠️ Bybit API credentials not set, closes and imports will be rejected")
	}

	notifier := telegram.NewNotificationService(cfg.Telegram.BotToken, cfg.Telegram.ChatID)

	var importLock domain.LockManager
	if cfg.Redis.URL != "" {
		rdb, err := redislock.Connect(ctx, cfg.Redis.URL)
		if err != nil {
			log.WithError(err).Fatal("Failed to connect to Redis")
		}
		defer rdb.Close()
		importLock = redislock.NewLockManager(rdb)
		log.Info("✓ Redis import lock enabled")
	}

	// Initialize services and use cases
	metrics := service.NewMetricsAggregator(metricsRepo)
	closer := usecase.NewPositionCloser(txManager, positionRepo, exchange, metrics, notifier)
	importer := usecase.NewHistoryImporter(txManager, positionRepo, settingsRepo, exchange, metrics, notifier, importLock)

	// Scheduled import
	scheduler := infra.NewScheduler(importer, cfg.Import.Cron, cfg.Import.Days)
	if err := scheduler.Start(); err != nil {
		log.WithError(err).Fatal("Failed to start scheduler")
	}
	defer scheduler.Stop()

	// Public API
	e := echo.New()
	e.HideBanner = true
	httpdelivery.SetupRoutes(e, &httpdelivery.RouterConfig{
		JWTSecret:       cfg.Server.JWTSecret,
		DB:              db,
		PositionHandler: httpdelivery.NewPositionHandler(closer),
		HistoryHandler:  httpdelivery.NewHistoryHandler(importer),
		MetricsHandler:  httpdelivery.NewMetricsHandler(metrics),
	})

	apiAddr := fmt.Sprintf(":%s", cfg.Server.Port)
	log.WithFields(logrus.Fields{
		"addr":     apiAddr,
		"env":      cfg.Server.Env,
		"timezone": utils.GetLocation().String(),
	}).Info("🚀 tradeledger API starting")

	go func() {
		if err := e.Start(apiAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Failed to start API server")
		}
	}()

	// Internal ops listener
	var opsSrv *http.Server
	if cfg.Server.OpsPort != "" && cfg.Server.OpsPort != "0" {
		opsRouter := ops.NewRouter(ops.RouterConfig{
			DB:         db,
			Importer:   importer,
			ImportDays: cfg.Import.Days,
			Positions:  positionRepo,
			Settings:   settingsRepo,
		})
		opsSrv = &http.Server{
			Addr:         fmt.Sprintf(":%s", cfg.Server.OpsPort),
			Handler:      opsRouter,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		log.WithField("addr", opsSrv.Addr).Info("🔧 ops server starting")

		go func() {
			if err := opsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.WithError(err).Fatal("Failed to start ops server")
			}
		}()
	}

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("API server forced to shutdown")
	}
	if opsSrv != nil {
		if err := opsSrv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("Ops server forced to shutdown")
		}
	}

	log.Info("✓ Server exited gracefully")
}
