// Package main provides the webhook server entry point for the nutrition bot.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/nutrition-bot/internal/app"
	"github.com/nutrition-bot/internal/config"
	"github.com/nutrition-bot/internal/logging"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	logger := logging.GetGlobalLogger()
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
		"bots":   cfg.Bots.IDs(),
	}).Info("Structured logging initialized")

	if len(cfg.Bots.Bots) == 0 {
		logger.Warn("No bots configured - set BOTS and BOT_<ID>_TOKEN")
	}

	application, err := app.New(context.Background(), cfg)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize application")
	}

	// Start server in a goroutine
	go func() {
		if err := application.Server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Server started successfully")

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := application.Server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}
	application.Close(ctx)

	logger.Info("Server exited")
}
