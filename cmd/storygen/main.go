package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/CTAG07/storychain/pkg/corpus"
	"github.com/CTAG07/storychain/pkg/markov"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

const configPath = "./config.json"

func main() {
	baseLogger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	actionChan := make(chan string, 1)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done() // Wait for a signal
		baseLogger.Info("OS signal received, initiating shutdown.")
		actionChan <- actionShutdown
	}()

	exitCode := 0
	for {
		action, err := run(ctx, actionChan)
		if err != nil {
			baseLogger.Error("An error occurred during run, shutting down.", "error", err)
			exitCode = 1
			break
		}

		if action == actionRestart {
			baseLogger.Info("--- Server Restarting ---")
			continue
		}
		break
	}

	baseLogger.Info("storygen has shut down.")
	stop()
	os.Exit(exitCode)
}

// run performs one cycle of the program. In batch mode it generates every
// configured story and returns; in serve mode it hosts the API until a
// shutdown or restart action arrives.
func run(ctx context.Context, actionChan chan string) (string, error) {
	cm, err := NewConfigManager(configPath)
	if err != nil {
		return "", fmt.Errorf("failed to load configuration: %w", err)
	}
	config := cm.Get()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(config.Server.LogLevel)}))
	cm.SetLogger(logger)
	logger.Info("Starting cycle...", "mode", config.Server.Mode)

	if err = os.MkdirAll(config.Server.DataDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := initDB(config.Server.MarkovDatabasePath)
	if err != nil {
		return "", fmt.Errorf("failed to initialize database: %w", err)
	}
	defer func() {
		logger.Info("Closing database connection.")
		if err := db.Close(); err != nil {
			logger.Error("Failed to close database", "error", err)
		}
	}()
	// SQLite allows a single writer; parallel batch workers queue on the pool instead.
	db.SetMaxOpenConns(1)

	if err = markov.SetupSchema(db); err != nil {
		return "", fmt.Errorf("failed to setup markov schema: %w", err)
	}

	catalog := corpus.DefaultCatalog()

	if config.Server.Mode == modeBatch {
		return actionShutdown, runBatch(ctx, config, catalog, db, logger)
	}

	server, err := NewServer(cm, logger, db, catalog, actionChan)
	if err != nil {
		return "", fmt.Errorf("failed to create server object: %w", err)
	}
	defer server.Close()

	apiHttpServer := &http.Server{Addr: config.Server.ApiAddr, Handler: server.apiMux}

	go func() {
		logger.Info("Starting api server", "address", apiHttpServer.Addr)
		if err := apiHttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Api server failed", "error", err)
		}
	}()

	action := <-actionChan // Block here until API or OS signal sends an action.

	logger.Info("Stopping server for " + action + "...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err = apiHttpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Api server shutdown failed", "error", err)
	}
	logger.Info("HTTP server stopped.")

	return action, nil
}

// runBatch generates the configured stories to stdout.
func runBatch(ctx context.Context, config Config, catalog *corpus.Catalog, db *sql.DB, logger *slog.Logger) error {
	store, err := markov.NewStore(db)
	if err != nil {
		return fmt.Errorf("error creating chain store: %w", err)
	}
	defer store.Close()
	store.SetLogger(logger)

	batch := NewBatch(config, catalog, store, corpus.NewConsoleSource(os.Stdin, os.Stdout), logger)
	failed, err := batch.Run(ctx, os.Stdout)
	if errors.Is(err, context.Canceled) {
		logger.Info("Batch interrupted")
		return nil
	}
	if err != nil {
		return err
	}
	if failed > 0 {
		logger.Warn("Batch finished with failures", "failed", failed)
	}
	return nil
}
