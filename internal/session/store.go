package session

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/pmarinho/gatehouse/internal/apperror"
	"github.com/pmarinho/gatehouse/internal/httpapi"
	"github.com/pmarinho/gatehouse/internal/metrics"
)

// Navigation targets owned by the store. The guard has its own, richer
// routing table; the store only ever moves between the sign-in page and
// the authenticated landing page.
const (
	loginPath   = "/login"
	landingPath = "/dashboard"
)

// Store is the single source of truth for auth state. All dependencies
// are constructor-injected and all mutation goes through its methods, so
// every transition is observable by subscribers and testable in
// isolation. Safe for concurrent use.
type Store struct {
	mu            sync.Mutex
	user          *User
	authenticated bool
	hydrated      bool

	backend Backend
	ring    *Keyring
	nav     Navigator
	subs    []func(Session)
	metrics *metrics.Set
}

// StoreOption customizes a Store.
type StoreOption func(*Store)

// WithMetrics records forced-logout counts into the given set.
func WithMetrics(m *metrics.Set) StoreOption {
	return func(s *Store) { s.metrics = m }
}

// New creates an empty, not-yet-hydrated store.
func New(backend Backend, ring *Keyring, nav Navigator, opts ...StoreOption) *Store {
	s := &Store{
		backend: backend,
		ring:    ring,
		nav:     nav,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe registers fn to be called with a snapshot after every state
// change. Subscribers are invoked synchronously and must not call back
// into the store.
func (s *Store) Subscribe(fn func(Session)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, fn)
}

// State returns the current snapshot.
func (s *Store) State() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Session{User: s.user, Authenticated: s.authenticated}
}

// Hydrated reports whether hydration has completed at least once. This
// is the single signal the route guard blocks on: until it flips, the
// guard renders a placeholder and performs no navigation.
func (s *Store) Hydrated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hydrated
}

// Login authenticates with the backend, persists the token and profile
// to the tier selected by remember, and navigates to the authenticated
// landing page. Errors are normalized for the login form: 400/401/403
// mean bad credentials, 404 means the auth service is unreachable,
// anything else propagates unchanged. No retries.
func (s *Store) Login(ctx context.Context, email, password string, remember bool) error {
	result, err := s.backend.Login(ctx, email, password, remember)
	if err != nil {
		return normalizeLoginError(err)
	}

	user := result.User
	if user == nil {
		// No inline profile: derive the subject from the token payload
		// (non-verifying, only decides which profile to fetch) and load
		// it. A failure here leaves the profile empty, not the login
		// failed: the token is the credential, the profile is cosmetic.
		if sub, err := SubjectFromToken(result.AccessToken); err == nil {
			user, err = s.backend.FetchUser(ctx, result.AccessToken, sub)
			if err != nil {
				slog.Debug("profile fetch after login failed",
					slog.String("subject", sub),
					slog.Any("error", err),
				)
				user = nil
			}
		}
	}

	s.mu.Lock()
	s.ring.SetToken(result.AccessToken, remember)
	s.ring.SetUser(user, remember)
	s.user = user
	s.authenticated = true
	subs := s.snapshotSubs()
	snap := Session{User: s.user, Authenticated: true}
	s.mu.Unlock()

	notify(subs, snap)
	s.nav.Assign(landingPath)
	return nil
}

// Logout clears both persistence tiers, resets the state, and navigates
// to the sign-in page. Calling it while already logged out is a no-op
// apart from the navigation.
func (s *Store) Logout() {
	s.clearSession()
	s.nav.Assign(loginPath)
}

// HandleUnauthorized is the 401 entry point the network client gets as
// its constructor dependency. Unlike Logout it navigates only when there
// was a session to tear down, so a burst of concurrent 401s produces a
// single redirect.
func (s *Store) HandleUnauthorized() {
	s.mu.Lock()
	_, hadToken := s.ring.Token()
	if !s.authenticated && !hadToken {
		s.mu.Unlock()
		return
	}

	// Check and teardown happen under one lock acquisition, so of a
	// burst of concurrent 401s exactly one caller performs the logout.
	s.ring.Clear()
	s.user = nil
	s.authenticated = false
	subs := s.snapshotSubs()
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.ForcedLogouts.Inc()
	}
	notify(subs, Session{})
	s.nav.Assign(loginPath)
}

// Hydrate reconciles persisted state into the store. It always
// terminates in a definite state and never surfaces storage problems;
// repeated calls are idempotent and the second call serves from the
// cache written by the first.
//
// The algorithm:
//  1. no token in either tier: purge any stray cached user, settle
//     logged-out;
//  2. token plus a parseable cached user: adopt it (fast path, no
//     network);
//  3. token plus a corrupt cache: delete the cache from both tiers and
//     fall through;
//  4. token only: derive the subject from the token and fetch the
//     profile. On success, re-cache it in the tier that held a record
//     before. On failure the session is still authenticated, with no
//     profile: token possession decides route access, the profile is
//     presentation data.
func (s *Store) Hydrate(ctx context.Context) {
	s.mu.Lock()

	token, ok := s.ring.Token()
	if !ok {
		s.ring.ClearUser()
		s.settleLocked(nil, false)
		return
	}

	// CachedUser already repairs corrupt entries by deleting them.
	if user, ok := s.ring.CachedUser(); ok {
		s.settleLocked(user, true)
		return
	}
	s.mu.Unlock()

	// Network derivation happens outside the lock.
	var user *User
	if sub, err := SubjectFromToken(token); err == nil {
		fetched, err := s.backend.FetchUser(ctx, token, sub)
		if err != nil {
			slog.Debug("hydration profile fetch failed",
				slog.String("subject", sub),
				slog.Any("error", err),
			)
		} else {
			user = fetched
		}
	}

	s.mu.Lock()
	if user != nil {
		s.ring.RefreshUser(user)
	}
	s.settleLocked(user, true)
}

// settleLocked records the hydration outcome and notifies subscribers.
// Must be called with the mutex held; it releases it.
func (s *Store) settleLocked(user *User, authenticated bool) {
	s.user = user
	s.authenticated = authenticated
	s.hydrated = true
	subs := s.snapshotSubs()
	snap := Session{User: user, Authenticated: authenticated}
	s.mu.Unlock()

	notify(subs, snap)
}

// clearSession wipes persisted and in-memory state and notifies.
func (s *Store) clearSession() {
	s.mu.Lock()
	s.ring.Clear()
	s.user = nil
	s.authenticated = false
	subs := s.snapshotSubs()
	s.mu.Unlock()

	notify(subs, Session{})
}

// snapshotSubs copies the subscriber list. Must be called with the mutex
// held.
func (s *Store) snapshotSubs() []func(Session) {
	subs := make([]func(Session), len(s.subs))
	copy(subs, s.subs)
	return subs
}

// notify invokes subscribers outside the lock.
func notify(subs []func(Session), snap Session) {
	for _, fn := range subs {
		fn(snap)
	}
}

// normalizeLoginError maps transport failures from the login endpoint to
// the messages the login form shows. AppErrors from non-HTTP backends
// pass through; anything unrecognized propagates unchanged.
func normalizeLoginError(err error) error {
	var apiErr *httpapi.Error
	if !errors.As(err, &apiErr) {
		return err
	}

	switch apiErr.Status {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		return apperror.NewInvalidCredentials()
	case http.StatusNotFound:
		return apperror.NewUnavailable("Authentication service is currently unavailable.")
	}
	return err
}
