package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"agriprice/internal"
	"agriprice/internal/admin"
	"agriprice/internal/api"
	"agriprice/internal/config"
	"agriprice/internal/container"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	appConfig, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger := internal.NewLogger(appConfig.LogLevel)
	gin.SetMode(appConfig.Server.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appContainer, err := container.New(appConfig, logger)
	if err != nil {
		log.Fatalf("Failed to create application container: %v", err)
	}
	if err := appContainer.Init(ctx); err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}

	// Models train in the background; the API reports NOT_TRAINED until ready.
	if err := appContainer.Training.Start(ctx); err != nil {
		log.Fatalf("Failed to start training: %v", err)
	}

	adminDeps := admin.Dependencies{
		Trainer: appContainer.Training,
		Catalog: appContainer.Engine,
		Source:  appContainer.Source,
		Metrics: appContainer.Metrics,
		Logger:  logger,
	}
	if appContainer.Scheduler != nil {
		if err := appContainer.Scheduler.Start(ctx); err != nil {
			log.Fatalf("Failed to start retrain scheduler: %v", err)
		}
		adminDeps.Schedule = appContainer.Scheduler
	}

	apiServer := api.NewServer(api.Dependencies{
		Catalog:   appContainer.Engine,
		Predictor: appContainer.Prediction,
		Insights:  appContainer.Insights,
		Metrics:   appContainer.Metrics,
		Logger:    logger,
	}, api.Options{AllowedOrigins: appConfig.Server.AllowedOrigins}).HTTPServer(":" + appConfig.Server.Port)
	adminServer := admin.NewApp(ctx, adminDeps).HTTPServer(":" + appConfig.Server.AdminPort)

	errCh := make(chan error, 2)
	for _, srv := range []*http.Server{apiServer, adminServer} {
		go func(srv *http.Server) {
			logger.Info("Listening on %s", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}(srv)
	}

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errCh:
		logger.Error("Server failed: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	for _, srv := range []*http.Server{apiServer, adminServer} {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Shutdown of %s incomplete: %v", srv.Addr, err)
		}
	}
	if err := appContainer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Container shutdown: %v", err)
	}
	logger.Info("Server stopped")
}
