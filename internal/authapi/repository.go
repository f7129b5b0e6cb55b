package authapi

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pmarinho/gatehouse/internal/apperror"
)

// UserRepository defines the data access contract for user records.
// All SQL lives in the concrete implementation.
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	FindByID(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	UpdateLastLogin(ctx context.Context, id string) error
}

// userRepository implements UserRepository with hand-written MariaDB
// queries.
type userRepository struct {
	db *sql.DB
}

// NewUserRepository creates a user repository backed by the given pool.
func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{db: db}
}

const userColumns = `id, email, name, password_hash, role, state, created_at, last_login_at`

// Create inserts a new user row.
func (r *userRepository) Create(ctx context.Context, user *User) error {
	query := `INSERT INTO users (id, email, name, password_hash, role, state, created_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		user.ID,
		user.Email,
		user.Name,
		user.PasswordHash,
		user.Role,
		user.State,
		user.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting user: %w", err)
	}

	return nil
}

// FindByID retrieves a user by UUID. Returns apperror.NotFound if no
// user exists with this id.
func (r *userRepository) FindByID(ctx context.Context, id string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

// FindByEmail retrieves a user by email address. Returns
// apperror.NotFound if no user exists with this email.
func (r *userRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = ?`
	return r.scanOne(r.db.QueryRowContext(ctx, query, email))
}

// EmailExists reports whether a user with the given email exists. Used
// before hashing a bootstrap password.
func (r *userRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE email = ?)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, email).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking email existence: %w", err)
	}

	return exists, nil
}

// UpdateLastLogin stamps last_login_at for the given user.
func (r *userRepository) UpdateLastLogin(ctx context.Context, id string) error {
	query := `UPDATE users SET last_login_at = NOW() WHERE id = ?`

	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("updating last login: %w", err)
	}

	return nil
}

// scanOne reads a single user row.
func (r *userRepository) scanOne(row *sql.Row) (*User, error) {
	user := &User{}
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.PasswordHash,
		&user.Role,
		&user.State,
		&user.CreatedAt,
		&user.LastLoginAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("scanning user row: %w", err)
	}

	return user, nil
}
