package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/pmarinho/gatehouse/internal/apperror"
	"github.com/pmarinho/gatehouse/internal/httpapi"
	"github.com/pmarinho/gatehouse/internal/keyring"
)

type fakeNavigator struct {
	mu       sync.Mutex
	assigned []string
	replaced []string
}

func (n *fakeNavigator) Assign(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.assigned = append(n.assigned, path)
}

func (n *fakeNavigator) Replace(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.replaced = append(n.replaced, path)
}

func (n *fakeNavigator) assigns() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.assigned))
	copy(out, n.assigned)
	return out
}

type fakeBackend struct {
	loginFn    func(ctx context.Context, email, password string, remember bool) (LoginResult, error)
	fetchFn    func(ctx context.Context, token, id string) (*User, error)
	fetchCalls atomic.Int64
}

func (b *fakeBackend) Login(ctx context.Context, email, password string, remember bool) (LoginResult, error) {
	if b.loginFn == nil {
		return LoginResult{}, errors.New("login not stubbed")
	}
	return b.loginFn(ctx, email, password, remember)
}

func (b *fakeBackend) FetchUser(ctx context.Context, token, id string) (*User, error) {
	b.fetchCalls.Add(1)
	if b.fetchFn == nil {
		return nil, errors.New("fetch not stubbed")
	}
	return b.fetchFn(ctx, token, id)
}

func newTestStore(backend Backend) (*Store, *Keyring, *fakeNavigator) {
	ring := NewKeyring(keyring.NewMemory(), keyring.NewMemory())
	nav := &fakeNavigator{}
	return New(backend, ring, nav), ring, nav
}

func assertSession(t *testing.T, s *Store, wantAuth bool, wantUserID string) {
	t.Helper()
	got := s.State()
	if got.Authenticated != wantAuth {
		t.Errorf("authenticated = %v, want %v", got.Authenticated, wantAuth)
	}
	switch {
	case wantUserID == "" && got.User != nil:
		t.Errorf("user = %+v, want nil", got.User)
	case wantUserID != "" && got.User == nil:
		t.Errorf("user = nil, want id %q", wantUserID)
	case wantUserID != "" && got.User.ID != wantUserID:
		t.Errorf("user id = %q, want %q", got.User.ID, wantUserID)
	}
}

func TestStore_HydrateIsIdempotent(t *testing.T) {
	alice := &User{ID: "u-1", Name: "Alice", Role: RoleUser}
	backend := &fakeBackend{
		fetchFn: func(ctx context.Context, token, id string) (*User, error) {
			return alice, nil
		},
	}
	store, ring, _ := newTestStore(backend)
	ring.SetToken(mockToken("u-1"), true)

	store.Hydrate(context.Background())
	if !store.Hydrated() {
		t.Fatal("store should report hydrated after the first pass")
	}
	assertSession(t, store, true, "u-1")

	// The second pass must serve from the cache written by the first.
	store.Hydrate(context.Background())
	assertSession(t, store, true, "u-1")

	if calls := backend.fetchCalls.Load(); calls != 1 {
		t.Errorf("profile fetched %d times, want 1", calls)
	}
}

func TestStore_HydrateWithoutTokenPurgesStaleUser(t *testing.T) {
	store, ring, nav := newTestStore(&fakeBackend{})
	ring.SetUser(&User{ID: "stale"}, true)

	store.Hydrate(context.Background())

	assertSession(t, store, false, "")
	if _, ok := ring.CachedUser(); ok {
		t.Error("stale user record should be purged when no token exists")
	}
	if len(nav.assigns()) != 0 {
		t.Errorf("hydration must never navigate, got %v", nav.assigns())
	}
}

func TestStore_HydrateUsesCachedUserWithoutNetwork(t *testing.T) {
	backend := &fakeBackend{}
	store, ring, _ := newTestStore(backend)
	ring.SetToken(mockToken("u-7"), false)
	ring.SetUser(&User{ID: "u-7", Role: RoleAdmin}, false)

	store.Hydrate(context.Background())

	assertSession(t, store, true, "u-7")
	if calls := backend.fetchCalls.Load(); calls != 0 {
		t.Errorf("cache hit should not touch the network, got %d fetches", calls)
	}
}

func TestStore_HydrateFetchFailureKeepsTokenAuthority(t *testing.T) {
	backend := &fakeBackend{
		fetchFn: func(ctx context.Context, token, id string) (*User, error) {
			return nil, errors.New("backend down")
		},
	}
	store, ring, _ := newTestStore(backend)
	ring.SetToken(mockToken("u-1"), true)

	store.Hydrate(context.Background())

	// Token possession decides authentication; the missing profile
	// only degrades presentation.
	assertSession(t, store, true, "")
	if !store.Hydrated() {
		t.Error("hydration must settle even when the fetch fails")
	}
}

func TestStore_HydrateOpaqueTokenSkipsFetch(t *testing.T) {
	backend := &fakeBackend{}
	store, ring, _ := newTestStore(backend)
	ring.SetToken("opaque-session-token", true)

	store.Hydrate(context.Background())

	assertSession(t, store, true, "")
	if calls := backend.fetchCalls.Load(); calls != 0 {
		t.Errorf("no subject means no fetch, got %d", calls)
	}
}

func TestStore_HydrateRepairsCorruptCache(t *testing.T) {
	alice := &User{ID: "u-1", Role: RoleUser}
	backend := &fakeBackend{
		fetchFn: func(ctx context.Context, token, id string) (*User, error) {
			return alice, nil
		},
	}
	ring := NewKeyring(keyring.NewMemory(), keyring.NewMemory())
	store := New(backend, ring, &fakeNavigator{})
	ring.SetToken(mockToken("u-1"), true)
	ring.durable.Set(userKey, "{corrupt")

	store.Hydrate(context.Background())

	assertSession(t, store, true, "u-1")
	if u, ok := ring.CachedUser(); !ok || u.ID != "u-1" {
		t.Errorf("repaired cache = %+v (%v), want u-1", u, ok)
	}
}

func TestStore_LoginPersistsToSelectedTier(t *testing.T) {
	for _, remember := range []bool{true, false} {
		backend := &MockBackend{}
		ring := NewKeyring(keyring.NewMemory(), keyring.NewMemory())
		nav := &fakeNavigator{}
		store := New(backend, ring, nav)

		err := store.Login(context.Background(), "alice@example.com", "pw", remember)
		if err != nil {
			t.Fatalf("remember=%v: unexpected error: %v", remember, err)
		}

		wantTier, otherTier := ring.scoped, ring.durable
		if remember {
			wantTier, otherTier = ring.durable, ring.scoped
		}
		for _, key := range []string{tokenKey, userKey} {
			if _, ok := wantTier.Get(key); !ok {
				t.Errorf("remember=%v: %q missing from selected tier", remember, key)
			}
			if _, ok := otherTier.Get(key); ok {
				t.Errorf("remember=%v: %q leaked into the other tier", remember, key)
			}
		}

		if got := nav.assigns(); len(got) != 1 || got[0] != landingPath {
			t.Errorf("remember=%v: navigation = %v, want [%s]", remember, got, landingPath)
		}
	}
}

func TestStore_LoginFetchesProfileWhenNotInline(t *testing.T) {
	token := mockToken("u-9")
	backend := &fakeBackend{
		loginFn: func(ctx context.Context, email, password string, remember bool) (LoginResult, error) {
			return LoginResult{AccessToken: token}, nil
		},
		fetchFn: func(ctx context.Context, gotToken, id string) (*User, error) {
			if gotToken != token {
				t.Errorf("fetch used token %q, want the freshly issued one", gotToken)
			}
			if id != "u-9" {
				t.Errorf("fetch id = %q, want %q", id, "u-9")
			}
			return &User{ID: id, Role: RoleUser}, nil
		},
	}
	store, _, _ := newTestStore(backend)

	if err := store.Login(context.Background(), "a@b.c", "pw", true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertSession(t, store, true, "u-9")
}

func TestStore_LoginErrorNormalization(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		wantType string
	}{
		{"400 bad request", &httpapi.Error{Status: 400}, "invalid_credentials"},
		{"401 unauthorized", &httpapi.Error{Status: 401}, "invalid_credentials"},
		{"403 forbidden", &httpapi.Error{Status: 403}, "invalid_credentials"},
		{"404 missing endpoint", &httpapi.Error{Status: 404}, "unavailable"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			backend := &fakeBackend{
				loginFn: func(ctx context.Context, email, password string, remember bool) (LoginResult, error) {
					return LoginResult{}, tc.err
				},
			}
			store, ring, nav := newTestStore(backend)

			err := store.Login(context.Background(), "a@b.c", "pw", false)

			var appErr *apperror.AppError
			if !errors.As(err, &appErr) || appErr.Type != tc.wantType {
				t.Fatalf("error = %v, want AppError type %q", err, tc.wantType)
			}
			if _, ok := ring.Token(); ok {
				t.Error("failed login must not persist a token")
			}
			if len(nav.assigns()) != 0 {
				t.Error("failed login must not navigate")
			}
		})
	}
}

func TestStore_LoginServerErrorPropagates(t *testing.T) {
	serverErr := &httpapi.Error{Status: 500, Message: "Internal error. Please try again shortly."}
	backend := &fakeBackend{
		loginFn: func(ctx context.Context, email, password string, remember bool) (LoginResult, error) {
			return LoginResult{}, serverErr
		},
	}
	store, _, _ := newTestStore(backend)

	err := store.Login(context.Background(), "a@b.c", "pw", false)

	var apiErr *httpapi.Error
	if !errors.As(err, &apiErr) || apiErr.Status != 500 {
		t.Fatalf("error = %v, want the original 500 to pass through", err)
	}
}

func TestStore_LogoutClearsBothTiers(t *testing.T) {
	store, ring, nav := newTestStore(&MockBackend{})
	if err := store.Login(context.Background(), "a@b.c", "pw", true); err != nil {
		t.Fatalf("login: %v", err)
	}

	store.Logout()

	assertSession(t, store, false, "")
	if _, ok := ring.Token(); ok {
		t.Error("token should be gone from both tiers")
	}
	if _, ok := ring.CachedUser(); ok {
		t.Error("cached user should be gone from both tiers")
	}
	got := nav.assigns()
	if len(got) == 0 || got[len(got)-1] != loginPath {
		t.Errorf("navigation = %v, want final %s", got, loginPath)
	}

	// Logging out again is harmless.
	store.Logout()
	assertSession(t, store, false, "")
}

func TestStore_ForcedLogoutNavigatesOnceUnderConcurrent401s(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"token expired"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	ring := NewKeyring(keyring.NewMemory(), keyring.NewMemory())
	ring.SetToken("expired-token", true)
	nav := &fakeNavigator{}
	store := New(&fakeBackend{}, ring, nav)
	store.Hydrate(context.Background())

	api := httpapi.New(srv.URL, ring.Token,
		httpapi.WithUnauthorizedHandler(store.HandleUnauthorized),
	)

	const workers = 16
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = api.Do(context.Background(), "/things", httpapi.Options{})
		}()
	}
	wg.Wait()

	assertSession(t, store, false, "")
	var logins int
	for _, path := range nav.assigns() {
		if path == loginPath {
			logins++
		}
	}
	if logins != 1 {
		t.Errorf("navigated to %s %d times, want exactly 1 (all assigns: %v)",
			loginPath, logins, nav.assigns())
	}
}

func TestConnect_ClosesTheLoop(t *testing.T) {
	var authorized atomic.Bool
	authorized.Store(true)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"` + mockToken("u-1") + `",` +
			`"user":{"id":"u-1","name":"Alice","email":"a@b.c","role":"USER"}}`))
	})
	mux.HandleFunc("GET /things", func(w http.ResponseWriter, r *http.Request) {
		if !authorized.Load() {
			http.Error(w, `{"message":"revoked"}`, http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`[]`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ring := NewKeyring(keyring.NewMemory(), keyring.NewMemory())
	nav := &fakeNavigator{}
	store, api := Connect(srv.URL, ring, nav)

	if err := store.Login(context.Background(), "a@b.c", "pw", true); err != nil {
		t.Fatalf("login: %v", err)
	}
	assertSession(t, store, true, "u-1")

	// An authenticated page call succeeds with the persisted token.
	if _, err := api.Do(context.Background(), "/things", httpapi.Options{}); err != nil {
		t.Fatalf("authenticated call: %v", err)
	}

	// The server revokes the session; the next call forces a logout.
	authorized.Store(false)
	if _, err := api.Do(context.Background(), "/things", httpapi.Options{}); err == nil {
		t.Fatal("expected an error from the revoked call")
	}

	assertSession(t, store, false, "")
	if _, ok := ring.Token(); ok {
		t.Error("forced logout should clear the persisted token")
	}
	got := nav.assigns()
	if len(got) != 2 || got[0] != landingPath || got[1] != loginPath {
		t.Errorf("navigation = %v, want [%s %s]", got, landingPath, loginPath)
	}
}

func TestRESTBackend_LoginForwardsRemember(t *testing.T) {
	for _, remember := range []bool{true, false} {
		t.Run(fmt.Sprintf("remember=%v", remember), func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
				var body struct {
					Email    string `json:"email"`
					Password string `json:"password"`
					Remember bool   `json:"remember"`
				}
				if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
					t.Errorf("decoding login body: %v", err)
				}
				if body.Email != "a@b.c" || body.Password != "pw" {
					t.Errorf("credentials = %q/%q, want a@b.c/pw", body.Email, body.Password)
				}
				// The server picks the token lifetime from this flag, so
				// the client has to send the user's actual choice.
				if body.Remember != remember {
					t.Errorf("remember = %v, want %v", body.Remember, remember)
				}
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"access_token":"` + mockToken("u-1") + `"}`))
			})
			srv := httptest.NewServer(mux)
			defer srv.Close()

			backend := NewRESTBackend(httpapi.New(srv.URL, func() (string, bool) { return "", false }))
			if _, err := backend.Login(context.Background(), "a@b.c", "pw", remember); err != nil {
				t.Fatalf("login: %v", err)
			}
		})
	}
}

func TestStore_HandleUnauthorizedWithoutSessionIsSilent(t *testing.T) {
	store, _, nav := newTestStore(&fakeBackend{})
	store.Hydrate(context.Background())

	store.HandleUnauthorized()
	store.HandleUnauthorized()

	if len(nav.assigns()) != 0 {
		t.Errorf("navigation = %v, want none", nav.assigns())
	}
}

func TestStore_SubscribersSeeEveryTransition(t *testing.T) {
	store, _, _ := newTestStore(&MockBackend{Role: RoleAdmin})

	var snaps []Session
	store.Subscribe(func(s Session) { snaps = append(snaps, s) })

	store.Hydrate(context.Background())
	if err := store.Login(context.Background(), "root@example.com", "pw", true); err != nil {
		t.Fatalf("login: %v", err)
	}
	store.Logout()

	if len(snaps) != 3 {
		t.Fatalf("got %d notifications, want 3", len(snaps))
	}
	if snaps[0].Authenticated {
		t.Error("hydration of an empty keyring should notify logged-out")
	}
	if !snaps[1].Authenticated || snaps[1].User == nil || snaps[1].User.Role != RoleAdmin {
		t.Errorf("login notification = %+v, want authenticated admin", snaps[1])
	}
	if snaps[2].Authenticated {
		t.Error("logout notification should be logged-out")
	}
}
