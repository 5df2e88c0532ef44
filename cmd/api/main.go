package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/installment-service/internal/config"
	"github.com/Dan9191/installment-service/internal/handler"
	"github.com/Dan9191/installment-service/internal/middleware"
	"github.com/Dan9191/installment-service/internal/reminder"
	"github.com/Dan9191/installment-service/internal/repository"
	"github.com/Dan9191/installment-service/internal/service"
	"github.com/Dan9191/installment-service/internal/utils/email"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	logLevel, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize storage
	var store service.Store
	switch cfg.StoreDriver {
	case "postgres":
		db, err := sql.Open("postgres", cfg.DBConn)
		if err != nil {
			logger.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			logger.Fatalf("Failed to ping database: %v", err)
		}
		repo := repository.NewRepository(db)
		if err := repo.Migrate(ctx); err != nil {
			logger.Fatalf("Failed to migrate database: %v", err)
		}
		store = repo
	default:
		logger.Warn("Using in-memory store; data is lost on restart")
		store = repository.NewMemoryRepository()
	}

	// Initialize layers
	svc := service.NewService(store, logger, cfg)
	h := handler.NewHandler(svc, logger)
	r := handler.NewRouter(h, middleware.AuthMiddleware(cfg))

	// Reminder sweep
	if cfg.ReminderSweepEnabled {
		sweeper := reminder.NewSweeper(svc, email.NewSender(cfg, logger), logger, cfg)
		c := cron.New(cron.WithLocation(cfg.Location))
		if _, err := sweeper.Schedule(ctx, c, cfg.ReminderSweepSchedule); err != nil {
			logger.Fatalf("Invalid reminder sweep schedule %q: %v", cfg.ReminderSweepSchedule, err)
		}
		c.Start()
		logger.Infof("Reminder sweep scheduled: %s", cfg.ReminderSweepSchedule)
		defer func() {
			<-c.Stop().Done()
			logger.Info("Reminder sweep stopped")
		}()
	}

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("Server shutdown failed: %v", err)
		}
	}()

	logger.Infof("Starting server on %s", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("Server failed: %v", err)
	}
	logger.Info("Server stopped")
}
