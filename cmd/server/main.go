package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shepherdvovkes/reyestr/internal/auth"
	"github.com/shepherdvovkes/reyestr/internal/cache"
	"github.com/shepherdvovkes/reyestr/internal/config"
	"github.com/shepherdvovkes/reyestr/internal/database"
	"github.com/shepherdvovkes/reyestr/internal/dispatch/router"
	"github.com/shepherdvovkes/reyestr/internal/dispatch/service"
)

// Exit codes: 1 configuration error, 2 store unreachable, 3 cache required
// but unreachable, 4 listener failed.
const (
	exitConfig = 1
	exitStore  = 2
	exitCache  = 3
	exitServe  = 4
)

func main() {
	os.Exit(run())
}

func run() int {
	// Load configuration from environment variables
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		return exitConfig
	}

	slog.Info("configuration loaded successfully",
		"db_host", cfg.Database.Host,
		"db_port", cfg.Database.Port,
		"db_name", cfg.Database.Name,
		"api_port", cfg.Server.Port,
		"auth_enabled", cfg.Auth.Enabled,
		"cache_enabled", cfg.Cache.Enabled,
	)

	// Initialize database connection
	db, err := database.New(&cfg.Database)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		return exitStore
	}
	defer func() {
		if err := database.Close(db); err != nil {
			slog.Error("failed to close database", "error", err)
		}
	}()

	if err := database.HealthCheck(db); err != nil {
		slog.Error("database health check failed", "error", err)
		return exitStore
	}

	if err := database.Migrate(db); err != nil {
		slog.Error("schema migration failed", "error", err)
		return exitStore
	}

	// Initialize Redis cache. Optional unless CACHE_REQUIRED is set.
	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	c, err := cache.New(rootCtx, &cfg.Cache)
	if err != nil {
		slog.Error("cache unavailable", "error", err)
		return exitCache
	}
	defer func() {
		if err := c.Close(); err != nil {
			slog.Error("failed to close cache", "error", err)
		}
	}()

	// Wire services and background sweeps
	taskService := service.NewTaskService(db, c)
	clientService := service.NewClientService(db, c)
	documentService := service.NewDocumentService(db, c)

	sweeper := service.NewSweeper(db, clientService, taskService, cfg.Tasks)
	sweeper.Start(rootCtx)

	// Set up HTTP routes behind the credential gate
	gate := auth.NewMiddleware(cfg.Auth.Enabled, cfg.Auth.AdminAPIKey, clientService)
	handler := router.New(taskService, clientService, documentService, cfg.Tasks).Handler(gate, cfg.Server.RequestTimeout)

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.RequestTimeout,
		WriteTimeout:      cfg.Server.RequestTimeout + 10*time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	// Channel to listen for interrupt signals
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Start server in a goroutine
	serverErr := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Wait for a shutdown signal or a listener failure
	if err := waitForExit(serverErr, quit); err != nil {
		slog.Error("server failed", "error", err)
		return exitServe
	}
	slog.Info("shutting down server...")

	// Graceful shutdown with a drain window
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	} else {
		slog.Info("server gracefully stopped")
	}

	// Stop the sweep loops
	rootCancel()
	sweeper.Wait()

	slog.Info("server stopped")
	return 0
}

// waitForExit blocks until the listener fails or a shutdown signal arrives.
// Returns the listener error, or nil when a signal asked for a clean stop.
func waitForExit(serverErr <-chan error, quit <-chan os.Signal) error {
	select {
	case err := <-serverErr:
		return err
	case <-quit:
		return nil
	}
}
