package session

import (
	"log/slog"
	"sync"

	"github.com/pmarinho/gatehouse/internal/keyring"
)

// Storage key names, shared with the edge gate's cookie check.
const (
	tokenKey = "access_token"
	userKey  = "user"
)

// Keyring owns the two persistence tiers the session writes into: the
// durable tier survives restarts (cookie/localStorage analog), the
// scoped tier does not (sessionStorage analog). All tier-choice and
// stale-copy rules live here so the store never touches raw keys.
//
// Keyring carries the mutex for both tiers: Token doubles as the API
// client's token source, so it is read from request goroutines while
// the store mutates the tiers on login and logout.
type Keyring struct {
	mu      sync.Mutex
	durable keyring.Store
	scoped  keyring.Store
}

// NewKeyring bundles the two tiers.
func NewKeyring(durable, scoped keyring.Store) *Keyring {
	return &Keyring{durable: durable, scoped: scoped}
}

// Token returns the persisted access token, preferring the durable tier.
func (k *Keyring) Token() (string, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if tok, ok := k.durable.Get(tokenKey); ok && tok != "" {
		return tok, true
	}
	if tok, ok := k.scoped.Get(tokenKey); ok && tok != "" {
		return tok, true
	}
	return "", false
}

// SetToken persists the token to the tier selected by remember and
// removes any copy from the other tier, so exactly one tier holds it.
func (k *Keyring) SetToken(token string, remember bool) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if remember {
		k.durable.Set(tokenKey, token)
		k.scoped.Delete(tokenKey)
	} else {
		k.scoped.Set(tokenKey, token)
		k.durable.Delete(tokenKey)
	}
}

// ClearToken removes the token from both tiers.
func (k *Keyring) ClearToken() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.clearTokenLocked()
}

// CachedUser returns the cached user record from either tier, durable
// first. A record that fails to parse is deleted from both tiers and
// reported as absent: corrupt cache entries are repaired, not surfaced.
func (k *Keyring) CachedUser() (*User, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()

	raw, ok := k.durable.Get(userKey)
	if !ok {
		raw, ok = k.scoped.Get(userKey)
	}
	if !ok {
		return nil, false
	}

	u, err := decodeUser(raw)
	if err != nil {
		slog.Debug("purging corrupt cached user record", slog.Any("error", err))
		k.clearUserLocked()
		return nil, false
	}
	return u, true
}

// SetUser caches the user record in the tier selected by remember,
// clearing the other tier. A nil user clears both.
func (k *Keyring) SetUser(u *User, remember bool) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if u == nil {
		k.clearUserLocked()
		return
	}

	raw, err := encodeUser(u)
	if err != nil {
		// A User always marshals; treat failure as a cleared cache.
		slog.Error("encoding user for cache", slog.Any("error", err))
		k.clearUserLocked()
		return
	}

	if remember {
		k.durable.Set(userKey, raw)
		k.scoped.Delete(userKey)
	} else {
		k.scoped.Set(userKey, raw)
		k.durable.Delete(userKey)
	}
}

// RefreshUser re-caches a freshly fetched user into whichever tier held a
// record before, preferring durable when neither did. Used by the
// hydration fallback, where the remember choice is no longer known.
func (k *Keyring) RefreshUser(u *User) {
	k.mu.Lock()
	defer k.mu.Unlock()

	raw, err := encodeUser(u)
	if err != nil {
		slog.Error("encoding user for cache", slog.Any("error", err))
		return
	}

	if _, hadDurable := k.durable.Get(userKey); hadDurable {
		k.durable.Set(userKey, raw)
		return
	}
	if _, hadScoped := k.scoped.Get(userKey); hadScoped {
		k.scoped.Set(userKey, raw)
		return
	}

	// No prior record: infer the tier from where the token lives.
	if _, ok := k.durable.Get(tokenKey); ok {
		k.durable.Set(userKey, raw)
	} else {
		k.scoped.Set(userKey, raw)
	}
}

// ClearUser removes the cached user from both tiers.
func (k *Keyring) ClearUser() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.clearUserLocked()
}

// Clear wipes everything the session persisted.
func (k *Keyring) Clear() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.clearTokenLocked()
	k.clearUserLocked()
}

func (k *Keyring) clearTokenLocked() {
	k.durable.Delete(tokenKey)
	k.scoped.Delete(tokenKey)
}

func (k *Keyring) clearUserLocked() {
	k.durable.Delete(userKey)
	k.scoped.Delete(userKey)
}
