package authapi

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pmarinho/gatehouse/internal/apperror"
)

// MemoryRepository is an in-memory UserRepository for development and
// tests. Safe for concurrent use.
type MemoryRepository struct {
	mu    sync.RWMutex
	byID  map[string]*User
	byEml map[string]string
}

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:  make(map[string]*User),
		byEml: make(map[string]string),
	}
}

func (r *MemoryRepository) Create(ctx context.Context, user *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *user
	r.byID[cp.ID] = &cp
	r.byEml[strings.ToLower(cp.Email)] = cp.ID
	return nil
}

func (r *MemoryRepository) FindByID(ctx context.Context, id string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.byID[id]
	if !ok {
		return nil, apperror.NewNotFound("user not found")
	}
	cp := *user
	return &cp, nil
}

func (r *MemoryRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEml[strings.ToLower(email)]
	if !ok {
		return nil, apperror.NewNotFound("user not found")
	}
	cp := *r.byID[id]
	return &cp, nil
}

func (r *MemoryRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.byEml[strings.ToLower(email)]
	return ok, nil
}

func (r *MemoryRepository) UpdateLastLogin(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.byID[id]
	if !ok {
		return apperror.NewNotFound("user not found")
	}
	now := time.Now().UTC()
	user.LastLoginAt = &now
	return nil
}
