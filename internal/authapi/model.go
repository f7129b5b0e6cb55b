// Package authapi is the reference authentication API the client core
// talks to. It issues JWT access tokens backed by revocable Redis
// session records, and serves the user profiles the session hydrator
// fetches.
package authapi

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pmarinho/gatehouse/internal/session"
)

// User is the server-side user record. The JSON shape matches what the
// client core caches, plus server-only columns that never leave the API.
type User struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Email        string            `json:"email"`
	PasswordHash string            `json:"-"` // Never expose.
	Role         session.Role      `json:"role"`
	State        session.UserState `json:"state"`
	CreatedAt    time.Time         `json:"created_at"`
	LastLoginAt  *time.Time        `json:"last_login_at,omitempty"`
}

// Profile strips User down to the fields the client is allowed to see.
func (u *User) Profile() *session.User {
	return &session.User{
		ID:    u.ID,
		Name:  u.Name,
		Email: u.Email,
		Role:  u.Role,
		State: u.State,
	}
}

// --- Request DTOs ---

// LoginRequest is the body of POST /auth/login. Remember selects the
// long-lived token for "keep me signed in".
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Remember bool   `json:"remember"`
}

// LoginResponse is what a successful login returns. The shape mirrors
// what the client's REST backend decodes.
type LoginResponse struct {
	AccessToken string        `json:"access_token"`
	User        *session.User `json:"user"`
}

// --- Service DTOs ---

// LoginInput is the validated input for authenticating a user.
type LoginInput struct {
	Email    string
	Password string
	Remember bool
}

// Claims is the JWT payload Gatehouse issues. The subject claim carries
// the user id the client's hydrator decodes.
type Claims struct {
	Email string       `json:"email"`
	Role  session.Role `json:"role"`
	jwt.RegisteredClaims
}

// Record is the revocable session stored in Redis under the token's JTI.
// A token whose record is gone is rejected even if its signature and
// expiry still check out.
type Record struct {
	UserID    string       `json:"user_id"`
	Email     string       `json:"email"`
	Role      session.Role `json:"role"`
	CreatedAt time.Time    `json:"created_at"`
}
