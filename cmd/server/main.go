/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the loan servicing server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags and optional YAML config
  2. Initialize the zap logger
  3. Initialize the SQLite store
  4. Wire the service and API handler
  5. Start the server with graceful shutdown

COMMAND-LINE FLAGS:
  -config    Path to a YAML config file (optional)
  -port      HTTP server port (overrides config)
  -db        SQLite database path (overrides config)
             Use ":memory:" for an in-memory database
  -log-level Log level override (debug, info, warn, error)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close the database connection
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/loans.db"

  # Run with config file
  ./server -config=./config.yml

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Config file format
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/lendward/loan-engine/api"
	"github.com/lendward/loan-engine/config"
	"github.com/lendward/loan-engine/loan"
	"github.com/lendward/loan-engine/store/sqlite"
)

// initializeLogger creates a zap logger based on configuration and CLI override.
func initializeLogger(cfg config.LoggingConfig, levelOverride string) (*zap.Logger, error) {
	level := cfg.Level
	if levelOverride != "" {
		level = levelOverride
	}

	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "", "info":
		zapLevel = zapcore.InfoLevel
	case "warn", "warning":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		return nil, fmt.Errorf("invalid log level: %s", level)
	}

	var zapCfg zap.Config
	switch cfg.Format {
	case "console":
		zapCfg = zap.NewDevelopmentConfig()
	case "", "json":
		zapCfg = zap.NewProductionConfig()
	default:
		return nil, fmt.Errorf("invalid log format: %s", cfg.Format)
	}
	zapCfg.Level = zap.NewAtomicLevelAt(zapLevel)

	return zapCfg.Build()
}

func main() {
	// Flags
	configPath := flag.String("config", "", "path to YAML config file")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	logLevel := flag.String("log-level", "", "log level override")
	flag.Parse()

	cfg, err := config.LoadConfiguration(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}

	logger, err := initializeLogger(cfg.Logging, *logLevel)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Initialize store
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer store.Close()

	// Wire service and router
	service := loan.NewService(store, logger)
	handler := api.NewHandler(service, logger)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server starting",
			zap.Int("port", cfg.Server.Port),
			zap.String("db", cfg.Database.Path),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
