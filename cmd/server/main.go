// Package main is the entry point for the Gatehouse auth API. It loads
// configuration, connects to MariaDB and Redis, runs migrations, seeds
// the bootstrap admin, and starts the HTTP server.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pmarinho/gatehouse/internal/app"
	"github.com/pmarinho/gatehouse/internal/config"
	"github.com/pmarinho/gatehouse/internal/database"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	setupLogging(cfg)

	slog.Info("starting Gatehouse",
		slog.String("env", cfg.Env),
		slog.Int("port", cfg.Port),
	)

	db, err := database.NewMariaDB(cfg.Database)
	if err != nil {
		slog.Error("failed to connect to MariaDB", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("connected to MariaDB")

	if err := database.RunMigrations(db, "db/migrations"); err != nil {
		slog.Error("failed to run migrations", slog.Any("error", err))
		os.Exit(1)
	}

	rdb, err := database.NewRedis(cfg.Redis)
	if err != nil {
		slog.Error("failed to connect to Redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer rdb.Close()
	slog.Info("connected to Redis")

	application := app.New(cfg, db, rdb)
	application.RegisterRoutes()

	// Seed the first admin account on a fresh deployment.
	bootstrapCtx, cancelBootstrap := context.WithTimeout(context.Background(), 10*time.Second)
	err = application.Auth.EnsureBootstrapAdmin(bootstrapCtx,
		cfg.Bootstrap.AdminEmail,
		cfg.Bootstrap.AdminPassword,
		cfg.Bootstrap.AdminName,
	)
	cancelBootstrap()
	if err != nil {
		slog.Error("failed to bootstrap admin", slog.Any("error", err))
		os.Exit(1)
	}

	// Graceful shutdown: drain in-flight requests on SIGINT/SIGTERM.
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		slog.Info("shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := application.Echo.Shutdown(ctx); err != nil {
			slog.Error("server forced shutdown", slog.Any("error", err))
		}
	}()

	if err := application.Start(); err != nil {
		// Echo returns http.ErrServerClosed on graceful shutdown.
		slog.Info("server stopped", slog.Any("reason", err))
	}
}

// setupLogging configures the global slog logger. Development uses text
// output for readability; production uses JSON for log aggregation.
func setupLogging(cfg *config.Config) {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.IsDevelopment() {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}

	slog.SetDefault(slog.New(handler))
}
