// Package app is the application bootstrap and dependency injection
// root. It creates and holds the shared infrastructure (DB pool, Redis
// client, Echo instance, metrics registry) and wires the auth API
// together.
package app

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/pmarinho/gatehouse/internal/apperror"
	"github.com/pmarinho/gatehouse/internal/authapi"
	"github.com/pmarinho/gatehouse/internal/config"
	"github.com/pmarinho/gatehouse/internal/metrics"
	"github.com/pmarinho/gatehouse/internal/middleware"
)

// App holds all shared dependencies and the Echo HTTP server instance.
// Created once at startup in main.go.
type App struct {
	// Config holds the loaded application configuration.
	Config *config.Config

	// DB is the MariaDB connection pool behind the user store.
	DB *sql.DB

	// Redis is the Redis client holding revocable session records and
	// backing rate limiting.
	Redis *redis.Client

	// Echo is the HTTP server instance.
	Echo *echo.Echo

	// Auth is the auth service, exposed so main can run the bootstrap
	// admin step after routes are wired.
	Auth authapi.Service

	// Metrics is the shared metric set.
	Metrics *metrics.Set

	registry *prometheus.Registry
}

// New creates an App with the given dependencies and configures the Echo
// server with global middleware and error handling.
func New(cfg *config.Config, db *sql.DB, rdb *redis.Client) *App {
	e := echo.New()

	// No Echo banner or startup line; we log our own.
	e.HideBanner = true
	e.HidePort = true

	// Trusted reverse proxy ranges so c.RealIP() returns the client IP
	// instead of the proxy's. Rate limiting keys on it.
	middleware.TrustedProxies(e, []string{
		"127.0.0.0/8",
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"fd00::/8",
	})

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	app := &App{
		Config:   cfg,
		DB:       db,
		Redis:    rdb,
		Echo:     e,
		Metrics:  metrics.New(registry),
		registry: registry,
	}

	app.setupMiddleware()
	e.HTTPErrorHandler = app.errorHandler

	return app
}

// setupMiddleware registers global middleware in execution order.
// Recovery is outermost so it catches panics from everything else.
func (a *App) setupMiddleware() {
	a.Echo.Use(middleware.Recovery())
	a.Echo.Use(middleware.RequestLogger())

	// Credentialed CORS for the dashboard frontend.
	a.Echo.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:   []string{a.Config.FrontendOrigin},
		AllowCredentials: true,
	}))

	// The edge gate fronts page navigation when this binary also serves
	// (or proxies for) the dashboard shell. API paths are unclassified
	// and pass through untouched.
	a.Echo.Use(middleware.EdgeGate(middleware.GateConfig{
		PublicPaths:       []string{"/", "/login", "/signup", "/forgot-password"},
		ProtectedPrefixes: []string{"/dashboard", "/home", "/admin"},
		Metrics:           a.Metrics,
	}))
}

// Start runs the HTTP server until Shutdown is called.
func (a *App) Start() error {
	return a.Echo.Start(fmt.Sprintf(":%d", a.Config.Port))
}

// errorHandler maps domain errors (AppError) and Echo's built-in errors
// to JSON responses. The API is JSON-only, so there is no error page or
// redirect branch here.
func (a *App) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	// SafeCode/SafeMessage cover both AppError and anything unexpected;
	// only Echo's own errors need special casing below.
	code := apperror.SafeCode(err)
	message := apperror.SafeMessage(err)

	var appErr *apperror.AppError
	var echoErr *echo.HTTPError
	switch {
	case errors.As(err, &appErr):
		if appErr.Internal != nil {
			slog.Error("internal error",
				slog.String("type", appErr.Type),
				slog.String("message", appErr.Message),
				slog.Any("internal", appErr.Internal),
				slog.String("path", c.Request().URL.Path),
			)
		}
	case errors.As(err, &echoErr):
		code = echoErr.Code
		if msg, ok := echoErr.Message.(string); ok {
			message = msg
		} else {
			message = http.StatusText(code)
		}
	default:
		slog.Error("unhandled error",
			slog.Any("error", err),
			slog.String("path", c.Request().URL.Path),
		)
	}

	if writeErr := c.JSON(code, map[string]string{
		"error":   http.StatusText(code),
		"message": message,
	}); writeErr != nil {
		slog.Error("writing error response", slog.Any("error", writeErr))
	}
}
