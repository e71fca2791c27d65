package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"coursepay/internal/bootstrap"
	"coursepay/internal/config"
	cronpkg "coursepay/internal/cron"
	"coursepay/internal/middleware"
	"coursepay/internal/notify"
	"coursepay/internal/payment"
	"coursepay/internal/pkg/telegram"
	"coursepay/internal/repository"
	"coursepay/internal/router"
)

func main() {
	// --- Logger ---
	logger, err := newLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if hasArg("--bootstrap-db") {
		if err := runDBBootstrap(logger); err != nil {
			logger.Fatal("Database bootstrap failed", zap.Error(err))
		}
		logger.Info("Database bootstrap completed")
		return
	}

	// --- Config ---
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	// --- Payment processor (fails closed on incomplete mappings) ---
	proc, err := payment.NewProcessor(cfg.Processor)
	if err != nil {
		logger.Fatal("Invalid payment processor configuration", zap.Error(err))
	}

	// --- Database ---
	db, err := config.NewDatabase(&cfg.Database, cfg.IsDevelopment(), logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := bootstrap.Migrate(db); err != nil {
		logger.Fatal("Failed to bootstrap database schema", zap.Error(err))
	}

	// --- Operator alerts ---
	var sender notify.Sender
	if cfg.Telegram.Token != "" {
		sender = telegram.NewBotAPI(cfg.Telegram.Token)
	}
	reporter := notify.NewChannelReporter(sender, cfg.Telegram.ReportChat, logger)
	if !reporter.Enabled() {
		logger.Info("Telegram reporting disabled")
	}

	// --- Callback replay cache (Redis with in-memory fallback) ---
	replay, replayErr := middleware.NewReplayCache(
		cfg.Redis.Addr,
		cfg.Redis.Pass,
		cfg.Redis.DB,
		cfg.Callback.ReplayTTL,
	)
	if replayErr != nil {
		logger.Warn("Redis unavailable for callback replay cache, using in-memory fallback", zap.Error(replayErr))
	}
	limiter := middleware.NewRateLimiter(cfg.Callback.Rate, cfg.Callback.Burst)

	// --- Echo ---
	e := echo.New()
	e.HideBanner = true

	// --- Routes ---
	router.Setup(e, db, proc, reporter, replay, limiter, logger, router.Options{
		BaseURL:        cfg.Server.BaseURL,
		AdminAPIKey:    cfg.Admin.APIKey,
		CallbackCIDRs:  cfg.Callback.AllowedCIDRs,
		TrustedProxies: cfg.Server.TrustedProxies,
		ItemHook:       repository.NewEnrollmentRepository(db).GrantHook(),
	})

	// --- Cron Scheduler ---
	scheduler := cronpkg.New(
		repository.NewOrderRepository(db),
		repository.NewCallbackLogRepository(db),
		reporter,
		cfg.CheckoutTTL(),
		logger,
	).WithJob("0 */5 * * * *", "rate limiter cleanup", limiter.Cleanup)
	if err := scheduler.Start(); err != nil {
		logger.Fatal("Failed to start cron scheduler", zap.Error(err))
	}

	// --- Start Server ---
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	go func() {
		logger.Info("Starting coursepay server", zap.String("addr", addr))
		if err := e.Start(addr); err != nil {
			logger.Info("Server stopped", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")

	// Stop cron
	ctx := scheduler.Stop()
	<-ctx.Done()

	// Stop HTTP server
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	// Flush pending alerts
	reporter.Wait()

	logger.Info("Server exited")
}

func newLogger() (*zap.Logger, error) {
	if os.Getenv("APP_ENV") == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func hasArg(name string) bool {
	for _, arg := range os.Args[1:] {
		if arg == name {
			return true
		}
	}
	return false
}

func runDBBootstrap(logger *zap.Logger) error {
	dbCfg, err := config.LoadDatabaseOnly()
	if err != nil {
		return err
	}
	db, err := config.NewDatabase(dbCfg, false, logger)
	if err != nil {
		return err
	}
	if err := bootstrap.Migrate(db); err != nil {
		return err
	}
	logger.Info("Schema migration completed")
	return nil
}
