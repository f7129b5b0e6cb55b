package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// CORSConfig holds configuration for the CORS middleware.
type CORSConfig struct {
	// AllowedOrigins lists the origins permitted to make cross-origin
	// requests, normally just the dashboard frontend.
	AllowedOrigins []string

	// AllowCredentials indicates whether the browser may include the
	// access-token cookie in cross-origin requests. Required when the
	// frontend is served from a different origin than this API.
	AllowCredentials bool
}

// CORS returns middleware that handles Cross-Origin Resource Sharing
// headers for the auth API when the dashboard frontend runs on a
// different origin.
func CORS(cfg CORSConfig) echo.MiddlewareFunc {
	allowAll := false
	originSet := make(map[string]bool)
	for _, o := range cfg.AllowedOrigins {
		if o == "*" {
			allowAll = true
		}
		originSet[o] = true
	}

	// Wildcard origin combined with credentials would let any site make
	// authenticated requests. Refuse to send credentials in that case.
	if allowAll && cfg.AllowCredentials {
		slog.Warn("CORS misconfiguration: wildcard origin with credentials; credentials disabled")
		cfg.AllowCredentials = false
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			res := c.Response()
			origin := req.Header.Get("Origin")

			// No Origin header means a same-origin request.
			if origin == "" {
				return next(c)
			}

			if !allowAll && !originSet[origin] {
				// Unlisted origin: proceed without CORS headers and let
				// the browser block the response.
				return next(c)
			}

			res.Header().Set("Access-Control-Allow-Origin", origin)
			res.Header().Set("Vary", "Origin")

			if cfg.AllowCredentials {
				res.Header().Set("Access-Control-Allow-Credentials", "true")
			}

			if req.Method == http.MethodOptions {
				res.Header().Set("Access-Control-Allow-Methods",
					strings.Join([]string{
						http.MethodGet,
						http.MethodPost,
						http.MethodPut,
						http.MethodPatch,
						http.MethodDelete,
						http.MethodOptions,
					}, ", "))

				res.Header().Set("Access-Control-Allow-Headers",
					strings.Join([]string{
						"Content-Type",
						"Authorization",
						"X-Requested-With",
					}, ", "))

				// Cache preflight responses for an hour.
				res.Header().Set("Access-Control-Max-Age", "3600")

				return c.NoContent(http.StatusNoContent)
			}

			return next(c)
		}
	}
}
