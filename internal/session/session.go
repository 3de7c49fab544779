// Package session manages the active credential and identity for a
// qkdctl process.
//
// A Session owns the API client and injects the bearer token into every
// outbound request. The credential is re-read from the session on each
// call, so an Invalidate is observed by all in-flight callers from the
// next request onward.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/QKD-VITAP/qkdctl/internal/auth"
	"github.com/QKD-VITAP/qkdctl/internal/client"
)

// State describes the session's credential lifecycle position.
type State string

// Session states.
const (
	StateUnauthenticated State = "unauthenticated"
	StateAuthenticating  State = "authenticating"
	StateAuthenticated   State = "authenticated"
)

// AuthError reports a failed credential exchange. The prior credential
// is always left in place when one is returned.
type AuthError struct {
	Cause error
}

func (e *AuthError) Error() string {
	if e.Cause == nil {
		return "credential exchange failed"
	}

	return "credential exchange failed: " + e.Cause.Error()
}

func (e *AuthError) Unwrap() error { return e.Cause }

// Store persists a bearer token between runs.
type Store interface {
	Load() (auth.TokenSource, string)
	Store(token string) error
	Delete() error
}

// keyringStore backs Store with the auth package's keyring and file
// fallback chain.
type keyringStore struct{}

func (keyringStore) Load() (auth.TokenSource, string) { return auth.LoadToken() }
func (keyringStore) Store(token string) error         { return auth.StoreToken(token) }
func (keyringStore) Delete() error                    { return auth.DeleteToken() }

// Session holds the active credential and the API client bound to it.
type Session struct {
	mu       sync.RWMutex
	store    Store
	client   *client.Client
	state    State
	token    string
	source   auth.TokenSource
	identity *client.User
}

// Option configures a Session.
type Option func(*Session)

// WithStore replaces the persistent token store (used in tests).
func WithStore(store Store) Option {
	return func(sess *Session) { sess.store = store }
}

// WithHTTPClient replaces the API client's HTTP transport (used in tests).
func WithHTTPClient(hc *http.Client) Option {
	return func(sess *Session) {
		sess.client = client.New(sess.client.BaseURL(),
			client.WithAuthorizer(sess), client.WithHTTPClient(hc))
	}
}

// New creates a session for the given API base URL. The session starts
// unauthenticated; call LoadPersisted or Exchange to activate a
// credential.
func New(baseURL string, opts ...Option) *Session {
	sess := &Session{
		store: keyringStore{},
		state: StateUnauthenticated,
	}
	sess.client = client.New(baseURL, client.WithAuthorizer(sess))

	for _, opt := range opts {
		opt(sess)
	}

	return sess
}

// Client returns the API client bound to this session.
func (sess *Session) Client() *client.Client {
	return sess.client
}

// LoadPersisted activates a previously stored credential, if any.
// Absence or storage failure is silent; the session simply stays
// unauthenticated. Reports whether a credential was activated.
func (sess *Session) LoadPersisted() bool {
	source, token := sess.store.Load()
	if token == "" {
		return false
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	sess.token = token
	sess.source = source
	sess.state = StateAuthenticated

	return true
}

// Exchange trades an identity assertion for a bearer token. On success
// the token is activated and persisted and the resolved identity is
// returned. On failure the prior credential, persisted and active,
// is left untouched.
func (sess *Session) Exchange(ctx context.Context, assertion string) (*client.User, error) {
	if assertion == "" {
		return nil, fmt.Errorf("empty identity assertion")
	}

	sess.mu.Lock()
	prior := sess.state
	sess.state = StateAuthenticating
	sess.mu.Unlock()

	resp, err := sess.client.ExchangeGoogle(ctx, assertion)
	if err != nil {
		sess.mu.Lock()
		sess.state = prior
		sess.mu.Unlock()

		return nil, &AuthError{Cause: err}
	}

	if resp.AccessToken == "" {
		sess.mu.Lock()
		sess.state = prior
		sess.mu.Unlock()

		return nil, &AuthError{Cause: errors.New("server issued an empty token")}
	}

	sess.mu.Lock()
	sess.token = resp.AccessToken
	sess.source = auth.SourceKeyring
	sess.identity = &resp.User
	sess.state = StateAuthenticated
	sess.mu.Unlock()

	if err := sess.store.Store(resp.AccessToken); err != nil {
		// The session stays usable for this run; only persistence
		// across runs is lost.
		return &resp.User, fmt.Errorf("token active but not persisted: %w", err)
	}

	return &resp.User, nil
}

// Attach sets the Authorization header iff a credential is active.
// The token is read under lock on every call so invalidation takes
// effect for the very next request.
func (sess *Session) Attach(req *http.Request) {
	sess.mu.RLock()
	token := sess.token
	sess.mu.RUnlock()

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// Invalidate clears the active and persisted credential. Invalidating
// an unauthenticated session is a no-op.
func (sess *Session) Invalidate() {
	sess.mu.Lock()
	hadToken := sess.token != ""
	sess.token = ""
	sess.source = auth.SourceNone
	sess.identity = nil
	sess.state = StateUnauthenticated
	sess.mu.Unlock()

	if hadToken {
		// A miss here means both backends were already clean.
		_ = sess.store.Delete()
	}
}

// Verify asks the server whether the active credential is still
// accepted. A rejection invalidates the session and reports false.
// A transport failure reports false with the error and leaves the
// credential untouched.
func (sess *Session) Verify(ctx context.Context) (bool, error) {
	if sess.Token() == "" {
		return false, nil
	}

	resp, err := sess.client.Verify(ctx)
	if err != nil {
		if errors.Is(err, client.ErrUnauthorized) {
			sess.Invalidate()
			return false, nil
		}

		return false, err
	}

	if !resp.Valid {
		sess.Invalidate()
		return false, nil
	}

	return true, nil
}

// Logout discards the session on the server, then invalidates the
// local credential. The local invalidation happens even when the
// server call fails.
func (sess *Session) Logout(ctx context.Context) error {
	err := sess.client.Logout(ctx)
	sess.Invalidate()

	if err != nil && !errors.Is(err, client.ErrUnauthorized) {
		return fmt.Errorf("server logout failed: %w", err)
	}

	return nil
}

// Token returns the active bearer token, or "" when unauthenticated.
func (sess *Session) Token() string {
	sess.mu.RLock()
	defer sess.mu.RUnlock()

	return sess.token
}

// State returns the current session state.
func (sess *Session) State() State {
	sess.mu.RLock()
	defer sess.mu.RUnlock()

	return sess.state
}

// Source reports where the active credential came from.
func (sess *Session) Source() auth.TokenSource {
	sess.mu.RLock()
	defer sess.mu.RUnlock()

	return sess.source
}

// Identity returns the identity resolved during Exchange, or nil when
// the credential was loaded from storage and never verified.
func (sess *Session) Identity() *client.User {
	sess.mu.RLock()
	defer sess.mu.RUnlock()

	return sess.identity
}
