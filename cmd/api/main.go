package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/user/autolist-service/internal/app"
	"github.com/user/autolist-service/internal/delivery/http/handler"
	"github.com/user/autolist-service/internal/delivery/http/router"
	"github.com/user/autolist-service/pkg/config"
	"github.com/user/autolist-service/pkg/logger"
)

func main() {
	// --- Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Could not load config", "error", err)
		os.Exit(1)
	}

	// --- Logger ---
	logLevel := logger.ParseLevel(cfg.LogLevel)
	logCloser, err := logger.Init(os.Stdout, logLevel, cfg.LogFile)
	if err != nil {
		slog.Error("Could not initialize logger", "error", err)
		os.Exit(1)
	}
	defer logCloser.Close()
	slog.Info("Logger initialized", "level", logLevel.String())

	// --- Dependencies ---
	ctx := context.Background()
	deps, err := app.New(ctx, cfg, slog.Default())
	if err != nil {
		slog.Error("Failed to initialize dependencies", "error", err)
		os.Exit(1)
	}
	defer deps.Close()

	// --- HTTP Server ---
	apiHandler := handler.NewHandler(deps.Collector, deps.Products, deps.Runs, deps.Checks)
	httpRouter := router.New(apiHandler, cfg.CORSAllowedOrigins)

	server := &http.Server{
		Addr:        ":" + cfg.ServerPort,
		Handler:     httpRouter,
		ReadTimeout: 5 * time.Second,
		// Collection requests block until the run finishes.
		WriteTimeout: cfg.RunTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("Starting server", "port", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Could not listen on port", "port", cfg.ServerPort, "error", err)
			os.Exit(1)
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.RunTimeout+10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	slog.Info("Server exiting")
}
