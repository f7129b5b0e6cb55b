package authapi

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/pmarinho/gatehouse/internal/middleware"
)

// RegisterRoutes sets up the auth API routes on the given Echo instance.
//
// Login is rate-limited per IP to slow brute-force and credential
// stuffing; the other routes authenticate themselves via RequireToken.
func RegisterRoutes(e *echo.Echo, h *Handler, service Service) {
	e.POST("/auth/login", h.Login, middleware.RateLimit(10, time.Minute))

	authed := e.Group("", RequireToken(service))
	authed.POST("/auth/logout", h.Logout)
	authed.GET("/auth/me", h.Me)
	authed.GET("/users/:id", h.GetUser)

	admin := authed.Group("/admin", RequireAdmin())
	admin.GET("/users/:id", h.GetUserDetail)
}
