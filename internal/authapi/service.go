package authapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/pmarinho/gatehouse/internal/apperror"
	"github.com/pmarinho/gatehouse/internal/metrics"
	"github.com/pmarinho/gatehouse/internal/session"
)

// sessionKeyPrefix is the Redis key prefix for revocable session records.
const sessionKeyPrefix = "session:"

// Service defines the business logic contract for authentication.
// Handlers call these methods, they never touch the repository directly.
type Service interface {
	Login(ctx context.Context, input LoginInput) (token string, user *User, err error)
	ValidateToken(ctx context.Context, token string) (*Claims, error)
	RevokeToken(ctx context.Context, token string) error
	GetUser(ctx context.Context, id string) (*User, error)
	EnsureBootstrapAdmin(ctx context.Context, email, password, name string) error
}

// Options configures the auth service.
type Options struct {
	// Secret signs and verifies access tokens (HS256).
	Secret string

	// TokenTTL bounds a normal session; RememberTTL a "keep me signed
	// in" session.
	TokenTTL    time.Duration
	RememberTTL time.Duration

	// Metrics is optional.
	Metrics *metrics.Set
}

// service implements Service with bcrypt hashing, HS256 tokens, and
// Redis-backed revocation.
type service struct {
	repo  UserRepository
	redis *redis.Client
	opts  Options
}

// NewService creates an auth service with the given dependencies.
func NewService(repo UserRepository, rdb *redis.Client, opts Options) Service {
	return &service{repo: repo, redis: rdb, opts: opts}
}

// Login authenticates a user by email and password. On success it issues
// a signed access token and stores a matching revocation record in Redis
// with the same lifetime.
func (s *service) Login(ctx context.Context, input LoginInput) (string, *User, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))

	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		// Don't reveal whether the email exists.
		if apperror.IsNotFound(err) {
			s.countLogin("invalid_credentials")
			return "", nil, apperror.NewInvalidCredentials()
		}
		s.countLogin("error")
		return "", nil, apperror.NewInternal(fmt.Errorf("finding user: %w", err))
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)) != nil {
		s.countLogin("invalid_credentials")
		return "", nil, apperror.NewInvalidCredentials()
	}

	ttl := s.opts.TokenTTL
	if input.Remember {
		ttl = s.opts.RememberTTL
	}

	token, err := s.issueToken(ctx, user, ttl)
	if err != nil {
		s.countLogin("error")
		return "", nil, apperror.NewInternal(fmt.Errorf("issuing token: %w", err))
	}

	// Non-critical bookkeeping.
	if err := s.repo.UpdateLastLogin(ctx, user.ID); err != nil {
		slog.Warn("failed to update last login",
			slog.String("user_id", user.ID),
			slog.Any("error", err),
		)
	}

	slog.Info("user logged in",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email),
		slog.Bool("remember", input.Remember),
	)

	s.countLogin("success")
	return token, user, nil
}

// ValidateToken verifies a token's signature and expiry, then checks its
// revocation record still exists. A revoked token fails even when the
// JWT itself is still valid.
func (s *service) ValidateToken(ctx context.Context, token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, s.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return nil, apperror.NewUnauthorized("token expired or invalid")
	}

	n, err := s.redis.Exists(ctx, sessionKeyPrefix+claims.ID).Result()
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("checking session record: %w", err))
	}
	if n == 0 {
		return nil, apperror.NewUnauthorized("session revoked")
	}

	return claims, nil
}

// RevokeToken deletes the token's session record, ending the session for
// every holder of the token. Expired or malformed tokens revoke to a
// no-op rather than an error so logout is always safe to call.
func (s *service) RevokeToken(ctx context.Context, token string) error {
	claims := &Claims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if _, err := parser.ParseWithClaims(token, claims, s.keyFunc); err != nil || claims.ID == "" {
		return nil
	}

	if err := s.redis.Del(ctx, sessionKeyPrefix+claims.ID).Err(); err != nil {
		return apperror.NewInternal(fmt.Errorf("deleting session record: %w", err))
	}

	if s.opts.Metrics != nil {
		s.opts.Metrics.SessionsRevoked.Inc()
	}
	slog.Info("session revoked", slog.String("jti", claims.ID))
	return nil
}

// GetUser loads a user by id.
func (s *service) GetUser(ctx context.Context, id string) (*User, error) {
	return s.repo.FindByID(ctx, id)
}

// EnsureBootstrapAdmin creates the initial admin account from the
// environment if no account with that email exists yet. A blank email or
// password disables bootstrapping.
func (s *service) EnsureBootstrapAdmin(ctx context.Context, email, password, name string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil
	}

	exists, err := s.repo.EmailExists(ctx, email)
	if err != nil {
		return fmt.Errorf("checking bootstrap admin: %w", err)
	}
	if exists {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing bootstrap password: %w", err)
	}

	if name == "" {
		name = "Administrator"
	}
	user := &User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		PasswordHash: string(hash),
		Role:         session.RoleAdmin,
		State:        session.StateConfirmed,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return fmt.Errorf("creating bootstrap admin: %w", err)
	}

	slog.Info("bootstrap admin created",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email),
	)
	return nil
}

// issueToken signs a new access token and writes its revocation record.
func (s *service) issueToken(ctx context.Context, user *User, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		Email: user.Email,
		Role:  user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.opts.Secret))
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}

	record, err := json.Marshal(Record{
		UserID:    user.ID,
		Email:     user.Email,
		Role:      user.Role,
		CreatedAt: now,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling session record: %w", err)
	}

	if err := s.redis.Set(ctx, sessionKeyPrefix+claims.ID, record, ttl).Err(); err != nil {
		return "", fmt.Errorf("storing session record: %w", err)
	}

	return token, nil
}

// keyFunc hands the shared secret to the JWT parser.
func (s *service) keyFunc(_ *jwt.Token) (any, error) {
	return []byte(s.opts.Secret), nil
}

// countLogin records a login attempt outcome when metrics are wired.
func (s *service) countLogin(outcome string) {
	if s.opts.Metrics != nil {
		s.opts.Metrics.LoginAttempts.WithLabelValues(outcome).Inc()
	}
}
