package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/pmarinho/gatehouse/internal/apperror"
)

// MockBackend is an in-memory Backend for local development and tests.
// Any non-empty credential pair signs in; the user is derived from the
// email. Tokens are JWT-shaped (unsigned) so the store's subject-decode
// path works against it exactly as against the real API.
type MockBackend struct {
	// Role is assigned to every signed-in user (default RoleUser).
	Role Role
}

// Login accepts any non-empty credentials and fabricates a deterministic
// user and token for them.
func (m *MockBackend) Login(ctx context.Context, email, password string, remember bool) (LoginResult, error) {
	if email == "" || password == "" {
		return LoginResult{}, apperror.NewInvalidCredentials()
	}

	u := m.buildUser(email)
	return LoginResult{
		AccessToken: mockToken(u.ID),
		User:        u,
	}, nil
}

// FetchUser rebuilds the user from the subject carried by the token. The
// id must match, as it would against the real API.
func (m *MockBackend) FetchUser(ctx context.Context, token, id string) (*User, error) {
	sub, err := SubjectFromToken(token)
	if err != nil || sub != id {
		return nil, apperror.NewUnauthorized("unknown token")
	}

	// The mock id encodes the normalized email; reverse it well enough
	// for display purposes.
	email := strings.TrimPrefix(id, "mock-")
	return m.buildUser(strings.ReplaceAll(email, "--at--", "@")), nil
}

// buildUser derives a stable user from an email address.
func (m *MockBackend) buildUser(email string) *User {
	normalized := strings.ToLower(strings.TrimSpace(email))
	role := m.Role
	if role == "" {
		role = RoleUser
	}

	name := normalized
	if at := strings.IndexByte(normalized, '@'); at > 0 {
		name = normalized[:at]
	}

	return &User{
		ID:    "mock-" + strings.ReplaceAll(normalized, "@", "--at--"),
		Name:  name,
		Email: normalized,
		Role:  role,
		State: StateConfirmed,
	}
}

// mockToken builds an unsigned JWT-shaped token whose payload carries the
// subject, enough for the client's non-verifying decode.
func mockToken(sub string) string {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))
	payload, _ := json.Marshal(map[string]string{"sub": sub})
	return header + "." + base64.RawURLEncoding.EncodeToString(payload) + "."
}
