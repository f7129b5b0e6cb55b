package app

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pmarinho/gatehouse/internal/authapi"
)

// RegisterRoutes wires the auth API and the operational endpoints. This
// is the single place where routes are aggregated.
func (a *App) RegisterRoutes() {
	e := a.Echo

	// Health check for container orchestration. Verifies both backing
	// stores, since the API is useless without either.
	e.GET("/healthz", func(c echo.Context) error {
		ctx := c.Request().Context()
		if err := a.DB.PingContext(ctx); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "degraded", "database": err.Error(),
			})
		}
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "degraded", "redis": err.Error(),
			})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	// Prometheus scrape endpoint backed by our private registry.
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(
		a.registry, promhttp.HandlerOpts{},
	)))

	// Auth API.
	repo := authapi.NewUserRepository(a.DB)
	a.Auth = authapi.NewService(repo, a.Redis, authapi.Options{
		Secret:      a.Config.Auth.SecretKey,
		TokenTTL:    a.Config.Auth.TokenTTL,
		RememberTTL: a.Config.Auth.RememberTTL,
		Metrics:     a.Metrics,
	})
	authapi.RegisterRoutes(e, authapi.NewHandler(a.Auth), a.Auth)
}
