package authapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/pmarinho/gatehouse/internal/apperror"
	"github.com/pmarinho/gatehouse/internal/session"
)

// Handler handles the HTTP surface of the auth API. Handlers are thin:
// they bind the request, call the service, and shape the JSON response.
type Handler struct {
	service Service
}

// NewHandler creates an auth handler with the given service.
func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// Login processes POST /auth/login.
func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}
	if req.Email == "" || req.Password == "" {
		return apperror.NewBadRequest("email and password are required")
	}

	token, user, err := h.service.Login(c.Request().Context(), LoginInput{
		Email:    req.Email,
		Password: req.Password,
		Remember: req.Remember,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, LoginResponse{
		AccessToken: token,
		User:        user.Profile(),
	})
}

// Logout processes POST /auth/logout. The token being revoked is the one
// that authenticated the request.
func (h *Handler) Logout(c echo.Context) error {
	if err := h.service.RevokeToken(c.Request().Context(), bearerToken(c)); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// GetUser processes GET /users/:id. Callers may read their own profile;
// reading anyone else's requires the privileged role.
func (h *Handler) GetUser(c echo.Context) error {
	id := c.Param("id")
	claims := GetClaims(c)
	if claims == nil {
		return apperror.NewUnauthorized("missing bearer token")
	}
	if claims.Subject != id && claims.Role != session.RoleAdmin {
		return apperror.NewForbidden("cannot read another user's profile")
	}

	user, err := h.service.GetUser(c.Request().Context(), id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, user.Profile())
}

// Me processes GET /auth/me, a convenience alias for the caller's own
// profile.
func (h *Handler) Me(c echo.Context) error {
	id := GetUserID(c)
	if id == "" {
		return apperror.NewUnauthorized("missing bearer token")
	}

	user, err := h.service.GetUser(c.Request().Context(), id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, user.Profile())
}

// GetUserDetail processes GET /admin/users/:id. Unlike GetUser it returns
// the full account record, including server-side timestamps. The route is
// admin-only, enforced by RequireAdmin.
func (h *Handler) GetUserDetail(c echo.Context) error {
	user, err := h.service.GetUser(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, user)
}
