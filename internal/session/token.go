package session

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
)

var errNoSubject = errors.New("token carries no subject")

// tokenClaims is the slice of the bearer token payload the client reads.
// Backends differ on the claim name, so all three spellings are tried.
type tokenClaims struct {
	Sub    string `json:"sub"`
	UserID string `json:"user_id"`
	ID     string `json:"id"`
}

// SubjectFromToken extracts the subject identifier from the payload
// segment of a JWT-shaped bearer token WITHOUT verifying the signature.
// The result is only ever used to decide which profile to fetch; the
// server re-authenticates the token on that fetch. Never use this as an
// authorization input.
func SubjectFromToken(token string) (string, error) {
	parts := strings.Split(token, ".")
	if len(parts) < 2 || parts[1] == "" {
		return "", errNoSubject
	}

	payload, err := decodeBase64URL(parts[1])
	if err != nil {
		return "", err
	}

	var claims tokenClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return "", err
	}

	switch {
	case claims.Sub != "":
		return claims.Sub, nil
	case claims.UserID != "":
		return claims.UserID, nil
	case claims.ID != "":
		return claims.ID, nil
	}
	return "", errNoSubject
}

// decodeBase64URL decodes a base64url segment with or without padding.
func decodeBase64URL(s string) ([]byte, error) {
	if data, err := base64.RawURLEncoding.DecodeString(s); err == nil {
		return data, nil
	}
	return base64.URLEncoding.DecodeString(s)
}
