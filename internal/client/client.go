// Package client provides the API client for the QKD simulation platform.
//
// The client handles request construction and decoding for:
//   - Exchanging identity assertions for bearer tokens
//   - Verifying and inspecting the current session
//   - Submitting BB84 simulations and polling their status
//   - Reading simulation history and aggregate metrics
//
// Authorization is delegated to an injected attach hook so the current
// credential is re-read on every outbound call.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/QKD-VITAP/qkdctl/internal/buildinfo"
)

const (
	// DefaultBaseURL is the default API endpoint.
	DefaultBaseURL = "http://localhost:8000"
	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 60 * time.Second
)

// ErrUnauthorized is returned when the server rejects the credential.
var ErrUnauthorized = errors.New("unauthorized")

// Authorizer injects the current credential into an outbound request.
// A nil header injection (no active credential) is a valid outcome.
type Authorizer interface {
	Attach(req *http.Request)
}

// Client is the simulation platform API client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	authorizer Authorizer
}

// Option configures a Client.
type Option func(*Client)

// WithAuthorizer sets the credential injection hook.
func WithAuthorizer(a Authorizer) Option {
	return func(c *Client) { c.authorizer = a }
}

// WithHTTPClient replaces the underlying HTTP client (used in tests).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a new API client. The transport is instrumented with
// OpenTelemetry; spans are no-ops unless telemetry is enabled.
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout:   DefaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// User represents the authenticated account.
type User struct {
	ID        string     `json:"id"`
	GoogleID  string     `json:"google_id,omitempty"`
	Email     string     `json:"email"`
	Name      string     `json:"name"`
	Picture   string     `json:"picture,omitempty"`
	IsActive  bool       `json:"is_active"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	LastLogin *time.Time `json:"last_login,omitempty"`
}

// AuthResponse is the credential-exchange response payload.
type AuthResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	User        User   `json:"user"`
}

// VerifyResponse reports whether the current credential is still valid.
type VerifyResponse struct {
	Valid  bool   `json:"valid"`
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

type exchangeRequest struct {
	Credential string `json:"credential"`
}

// ExchangeGoogle sends a Google ID token assertion and returns the
// issued bearer token and resolved identity.
func (c *Client) ExchangeGoogle(ctx context.Context, assertion string) (*AuthResponse, error) {
	var resp AuthResponse
	if err := c.doJSON(ctx, http.MethodPost, "/auth/google", exchangeRequest{Credential: assertion}, &resp); err != nil {
		return nil, err
	}

	return &resp, nil
}

// Verify asks the server to confirm the current credential.
func (c *Client) Verify(ctx context.Context) (*VerifyResponse, error) {
	var resp VerifyResponse
	if err := c.doJSON(ctx, http.MethodGet, "/auth/verify", nil, &resp); err != nil {
		return nil, err
	}

	return &resp, nil
}

// Whoami returns the identity bound to the current credential.
func (c *Client) Whoami(ctx context.Context) (*User, error) {
	var user User
	if err := c.doJSON(ctx, http.MethodGet, "/auth/me", nil, &user); err != nil {
		return nil, err
	}

	return &user, nil
}

// Logout tells the server to discard the current session.
func (c *Client) Logout(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodPost, "/auth/logout", struct{}{}, nil)
}

// doJSON issues one request with an optional JSON body and decodes a
// JSON response into out (when out is non-nil).
func (c *Client) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader = http.NoBody

	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}

		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	c.setRequestHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%s %s: %w", method, path, ErrUnauthorized)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return unexpectedStatus(method+" "+path, resp.StatusCode, resp.Body)
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	return nil
}

func (c *Client) setRequestHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "qkdctl/"+buildinfo.Version)
	req.Header.Set("X-Request-ID", uuid.NewString())

	// Re-read the credential on every call so a mid-session
	// invalidation is observed immediately.
	if c.authorizer != nil {
		c.authorizer.Attach(req)
	}
}

// apiError is the platform's error body shape.
type apiError struct {
	Detail string `json:"detail"`
}

// unexpectedStatus creates a formatted error from an unexpected HTTP
// status code, surfacing the server's detail message when present.
func unexpectedStatus(operation string, statusCode int, body io.Reader) error {
	respBody, readErr := io.ReadAll(body)
	if readErr != nil {
		return fmt.Errorf("%s failed with status %d (failed to read body: %v)", operation, statusCode, readErr)
	}

	var apiErr apiError
	if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Detail != "" {
		return fmt.Errorf("%s failed with status %d: %s", operation, statusCode, apiErr.Detail)
	}

	return fmt.Errorf("%s failed with status %d: %s", operation, statusCode, string(respBody))
}
