package middleware

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/pmarinho/gatehouse/internal/metrics"
)

// GateConfig declares the path classes the edge gate operates on. The
// lists are fixed per application, not derived dynamically.
type GateConfig struct {
	// CookieName is the access-token cookie (default: "access_token").
	CookieName string

	// LoginPath is the public sign-in page (default: "/login").
	LoginPath string

	// LandingPath is where token holders land (default: "/dashboard").
	LandingPath string

	// PublicPaths are exact-match paths that never require a token.
	PublicPaths []string

	// ProtectedPrefixes are path prefixes that require a token cookie.
	ProtectedPrefixes []string

	// Metrics records redirect counts. Optional.
	Metrics *metrics.Set
}

// normalize applies defaults for unset fields.
func (cfg GateConfig) normalize() GateConfig {
	if cfg.CookieName == "" {
		cfg.CookieName = "access_token"
	}
	if cfg.LoginPath == "" {
		cfg.LoginPath = "/login"
	}
	if cfg.LandingPath == "" {
		cfg.LandingPath = "/dashboard"
	}
	return cfg
}

// EdgeGate returns middleware that performs the request-time redirect
// check in front of page routes, based solely on the presence of the
// access-token cookie:
//
//   - login page or root with a token present: redirect to the landing
//     page, so a token-holding client never sees the sign-in form;
//   - public or unclassified paths: pass through unchanged;
//   - protected path with no token: redirect to the login page with the
//     original path carried in a "redirect" query parameter.
//
// Cookie presence proves nothing about validity or role. Those checks
// happen after the client hydrates; this gate only exists so obviously
// unauthenticated navigation never renders a protected page shell.
func EdgeGate(cfg GateConfig) echo.MiddlewareFunc {
	cfg = cfg.normalize()

	public := make(map[string]bool, len(cfg.PublicPaths))
	for _, p := range cfg.PublicPaths {
		public[p] = true
	}

	isProtected := func(path string) bool {
		for _, prefix := range cfg.ProtectedPrefixes {
			if strings.HasPrefix(path, prefix) {
				return true
			}
		}
		return false
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Request().URL.Path
			token := gateCookie(c, cfg.CookieName)

			if (path == cfg.LoginPath || path == "/") && token != "" {
				if cfg.Metrics != nil {
					cfg.Metrics.EdgeRedirects.WithLabelValues("login_with_token").Inc()
				}
				return c.Redirect(http.StatusTemporaryRedirect, cfg.LandingPath)
			}

			if public[path] || !isProtected(path) {
				return next(c)
			}

			if token == "" {
				if cfg.Metrics != nil {
					cfg.Metrics.EdgeRedirects.WithLabelValues("missing_token").Inc()
				}
				target := url.URL{
					Path:     cfg.LoginPath,
					RawQuery: url.Values{"redirect": {path}}.Encode(),
				}
				return c.Redirect(http.StatusTemporaryRedirect, target.String())
			}

			return next(c)
		}
	}
}

// gateCookie reads a cookie value, treating absent and empty alike.
func gateCookie(c echo.Context, name string) string {
	cookie, err := c.Cookie(name)
	if err != nil || cookie.Value == "" {
		return ""
	}
	return cookie.Value
}
