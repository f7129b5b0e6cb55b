// Package session is the client core of Gatehouse: the authoritative
// in-memory session state, the hydration algorithm that reconciles it
// from persisted storage at startup, and the tier-aware persistence of
// the access token and cached user record. The route guard and page code
// read session state exclusively from here.
package session

import "encoding/json"

// Role is the coarse authorization level carried by a user profile. The
// route guard is parameterized over these two values; anything finer is
// an application concern.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// UserState is the account confirmation status.
type UserState string

const (
	StateConfirmed           UserState = "CONFIRMED"
	StatePendingConfirmation UserState = "PENDING_CONFIRMATION"
)

// User is the profile the session carries. The session core treats it as
// presentation data: route access is decided by token possession and
// Role, never by any other field.
type User struct {
	ID    string    `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
	Role  Role      `json:"role"`
	State UserState `json:"state,omitempty"`
}

// Session is a snapshot of the auth state. Authenticated derives from
// token possession, so Authenticated with a nil User is a valid state:
// it means a token exists but the profile fetch did not produce one.
type Session struct {
	User          *User
	Authenticated bool
}

// Navigator abstracts browser-style navigation so the store and guard
// stay UI-framework-agnostic and tests can observe redirects.
type Navigator interface {
	// Assign navigates to path, pushing a history entry.
	Assign(path string)

	// Replace navigates to path without a history entry.
	Replace(path string)
}

// encodeUser serializes a user for the cache tier.
func encodeUser(u *User) (string, error) {
	data, err := json.Marshal(u)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// decodeUser parses a cached user record. Callers treat an error as a
// corrupt cache entry to repair, never as a failure to surface.
func decodeUser(raw string) (*User, error) {
	var u User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return nil, err
	}
	return &u, nil
}
