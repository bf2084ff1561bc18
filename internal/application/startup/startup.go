// Package startup prepares the application server
package startup

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cursedboard/cursedboard-go/internal/application/container"
	"github.com/cursedboard/cursedboard-go/internal/infrastructure/observability/logging"
	"github.com/cursedboard/cursedboard-go/internal/infrastructure/scheduling"
	"github.com/cursedboard/cursedboard-go/internal/presentation/http/server"
	"github.com/cursedboard/cursedboard-go/pkg/config"
)

// Initialize performs the complete startup sequence
func Initialize() error {
	setupLogging()

	start := time.Now().UTC()

	ctx, cancelBackgroundTasks := context.WithCancel(context.Background())
	defer cancelBackgroundTasks()

	log.Println("\033[31m" + `

   ▄████████▄ ██ ██ ██▀████▄ ▄████▄ ██▀████▄
   ██ ▀▀ ▀▀██ ██ ██ ██  ▀▀██ ██▄▄▄▄ ██  ▀▀██
   ██ ▄▄ ▄▄██ ██ ██ ██   ▄██ ▀▀▀▀██ ██   ▄██
   ▀████████▀ █████ ██▀███▀  ▀████▀ ████▀▀
        they are already here
` + "\033[0m")

	// Step 1: Initialize the channeled logger
	log.Println("Initializing...")
	loggerConfig := logging.DefaultLoggerConfig()
	loggerConfig.OutputToFile = config.LogToFile
	loggerConfig.LogDirectory = config.LogDirectory
	loggerConfig.JSONFormat = config.LogJSONFormat
	loggerConfig.DefaultLevel = logging.ParseLevel(config.LogLevel)

	logger, err := logging.NewChanneledLogger(loggerConfig)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Close()

	// Step 2: Create dependency injection container
	logger.Startup().Info("Initializing dependency injection container...")
	appContainer, err := container.NewContainer(logger)
	if err != nil {
		return fmt.Errorf("container initialization failed: %w", err)
	}
	logger.Startup().Info("Container initialization complete",
		"timezone", appContainer.Location.String())

	// Step 3: Start the scheduler
	logger.Startup().Info("Starting scheduler...")
	scheduler := scheduling.NewWorker(
		appContainer.Engine,
		scheduling.NewConfigFromEnv(),
		appContainer.Location,
		logger,
	)
	scheduler.Start(ctx)

	// Step 4: Start HTTP server
	logger.Startup().Info("Starting HTTP server...")
	httpServer := server.New(config.Port, appContainer)

	gracefulShutdown := make(chan os.Signal, 1)
	signal.Notify(gracefulShutdown, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.System().Info("Starting HTTP server", "address", ":"+config.Port)
		if err := httpServer.Start(); err != nil {
			logger.System().Error("HTTP server failed", "error", err.Error())
		}
	}()

	logger.Startup().Info("Application startup complete",
		"totalDuration", time.Since(start),
		"port", config.Port)

	// Wait for shutdown signal
	<-gracefulShutdown
	logger.Shutdown().Info("Shutdown signal received, starting graceful shutdown...")

	shutdownStart := time.Now()

	// Cancel background tasks and wait for sweeps to drain
	cancelBackgroundTasks()
	scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Shutdown().Info("Stopping HTTP server...")
	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Shutdown().Error("Error during server shutdown", "error", err.Error())
	} else {
		logger.Shutdown().Info("HTTP server stopped successfully")
	}

	// Drop stale presence records so reconnecting visitors start clean
	logger.Shutdown().Info("Clearing presence records...")
	if err := appContainer.Presence.ClearAll(shutdownCtx); err != nil {
		logger.Shutdown().Error("Error clearing presence", "error", err.Error())
	}

	logger.Shutdown().Info("Closing store...")
	if err := appContainer.Close(); err != nil {
		logger.Shutdown().Error("Error closing store", "error", err.Error())
	} else {
		logger.Shutdown().Info("Store closed successfully")
	}

	elapsed := time.Since(start)
	logger.Shutdown().Info("Application shutdown complete",
		"totalUptime", elapsed,
		"shutdownDuration", time.Since(shutdownStart))

	return nil
}

// setupLogging configures application logging
func setupLogging() {
	if os.Getenv("GIN_MODE") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}
