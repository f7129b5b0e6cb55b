package session

import (
	"context"
	"net/http"

	"github.com/pmarinho/gatehouse/internal/httpapi"
)

// LoginResult is what a backend returns on successful authentication.
// User may be nil: some backends only hand back the token and the store
// derives the profile from it.
type LoginResult struct {
	AccessToken string `json:"access_token"`
	User        *User  `json:"user,omitempty"`
}

// Backend is the authentication collaborator behind the session store.
// Implementations are swapped at composition time: the REST backend for
// the real auth API, the mock backend for local development and tests.
type Backend interface {
	// Login exchanges credentials for an access token. The call carries
	// no ambient bearer: it authenticates itself. Remember is forwarded
	// so the server issues a matching token lifetime.
	Login(ctx context.Context, email, password string, remember bool) (LoginResult, error)

	// FetchUser loads the profile for id using the given token as the
	// credential. Used by login (when no inline user came back) and by
	// the hydration fallback, where the ambient token must not be
	// trusted over the one under reconciliation.
	FetchUser(ctx context.Context, token, id string) (*User, error)
}

// Connect builds the production composition: a store whose REST backend
// shares one API client, with the client's unauthorized handler pointing
// back at the store's forced logout. The returned client is the one page
// code should use for its own calls, so any 401 anywhere closes the loop.
func Connect(baseURL string, ring *Keyring, nav Navigator, opts ...StoreOption) (*Store, *httpapi.Client) {
	store := New(nil, ring, nav, opts...)
	api := httpapi.New(baseURL, ring.Token,
		httpapi.WithUnauthorizedHandler(store.HandleUnauthorized),
	)
	store.backend = NewRESTBackend(api)
	return store, api
}

// restBackend implements Backend against the Gatehouse auth API.
type restBackend struct {
	api *httpapi.Client
}

// NewRESTBackend creates the production backend on top of the shared API
// client.
func NewRESTBackend(api *httpapi.Client) Backend {
	return &restBackend{api: api}
}

// loginRequest is the body of POST /auth/login. Remember tells the
// server to issue the long-lived token, matching the tier the keyring
// will persist it into.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Remember bool   `json:"remember"`
}

// Login calls POST /auth/login with skip-auth: a stale ambient bearer on
// the login request would be at best redundant and at worst misleading.
func (b *restBackend) Login(ctx context.Context, email, password string, remember bool) (LoginResult, error) {
	return httpapi.Fetch[LoginResult](ctx, b.api, "/auth/login", httpapi.Options{
		Method:   http.MethodPost,
		Body:     loginRequest{Email: email, Password: password, Remember: remember},
		SkipAuth: true,
	})
}

// FetchUser calls GET /users/{id} with the candidate token attached
// manually. SkipAuth keeps the 401 callback out of the loop: a failure
// here is handled by the hydration algorithm, not by a forced logout.
func (b *restBackend) FetchUser(ctx context.Context, token, id string) (*User, error) {
	header := make(http.Header)
	header.Set("Authorization", "Bearer "+token)

	u, err := httpapi.Fetch[User](ctx, b.api, "/users/"+id, httpapi.Options{
		Header:   header,
		SkipAuth: true,
	})
	if err != nil {
		return nil, err
	}
	return &u, nil
}
