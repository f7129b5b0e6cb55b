package authapi

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/pmarinho/gatehouse/internal/apperror"
	"github.com/pmarinho/gatehouse/internal/session"
)

// Context keys for the authenticated caller. Downstream handlers read
// them through the exported getters.
const (
	contextKeyClaims = "auth_claims"
	contextKeyUserID = "auth_user_id"
)

// RequireToken returns middleware that validates the bearer token and
// injects its claims into the request context. The API is JSON-only, so
// a missing or invalid token is always a 401, never a redirect.
func RequireToken(service Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := bearerToken(c)
			if token == "" {
				return apperror.NewUnauthorized("missing bearer token")
			}

			claims, err := service.ValidateToken(c.Request().Context(), token)
			if err != nil {
				return err
			}

			c.Set(contextKeyClaims, claims)
			c.Set(contextKeyUserID, claims.Subject)

			return next(c)
		}
	}
}

// RequireAdmin returns middleware that restricts a route to the
// privileged role. Must run after RequireToken.
func RequireAdmin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims := GetClaims(c)
			if claims == nil || claims.Role != session.RoleAdmin {
				return apperror.NewForbidden("admin access required")
			}
			return next(c)
		}
	}
}

// GetClaims retrieves the validated token claims from the Echo context.
// Returns nil if RequireToken was not applied.
func GetClaims(c echo.Context) *Claims {
	claims, ok := c.Get(contextKeyClaims).(*Claims)
	if !ok {
		return nil
	}
	return claims
}

// GetUserID retrieves the authenticated user's id from the Echo context.
// Returns empty string if the request is not authenticated.
func GetUserID(c echo.Context) string {
	id, ok := c.Get(contextKeyUserID).(string)
	if !ok {
		return ""
	}
	return id
}

// bearerToken extracts the token from the Authorization header.
func bearerToken(c echo.Context) string {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
