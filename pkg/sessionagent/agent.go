// Package sessionagent is the mobile client's session keeper. It stores the
// access/refresh pair in a local keystore, attaches the bearer token to every
// outbound request, and transparently refreshes and replays a request exactly
// once when the access token has expired.
package sessionagent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrSessionExpired is returned when a refresh attempt failed; the stored
// tokens have been cleared and the application should show the login flow.
var ErrSessionExpired = errors.New("session expired")

// Agent performs authenticated requests against the API on behalf of the
// mobile application.
type Agent struct {
	baseURL string
	client  *http.Client
	store   Store

	// refreshGroup collapses concurrent refresh attempts into one call so
	// parallel requests hitting 401 cannot rotate each other's tokens away.
	refreshGroup singleflight.Group

	onSessionExpired func()
}

// Option configures an Agent.
type Option func(*Agent)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(a *Agent) { a.client = c }
}

// WithSessionExpiredFunc registers the callback invoked after a failed
// refresh has cleared the stored tokens.
func WithSessionExpiredFunc(fn func()) Option {
	return func(a *Agent) { a.onSessionExpired = fn }
}

// New creates an Agent talking to the API at baseURL, persisting tokens in
// store.
func New(baseURL string, store Store, opts ...Option) *Agent {
	a := &Agent{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
		store:   store,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Session is the server's answer to a successful login.
type Session struct {
	AccessToken  string  `json:"accessToken"`
	RefreshToken string  `json:"refreshToken"`
	IsActivated  bool    `json:"isActivated"`
	Tenant       Profile `json:"tenant"`
}

// Profile is the tenant identity attached to a login response.
type Profile struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// Login authenticates with phone and passcode (or temp code during
// onboarding) and persists the issued token pair.
func (a *Agent) Login(ctx context.Context, phone, passcode string) (Session, error) {
	return a.openSession(ctx, "/api/v1/auth/login", map[string]string{
		"phoneNumber": phone,
		"passcode":    passcode,
	})
}

// BiometricLogin authenticates without a passcode. The caller must have
// passed the device's local biometric check before invoking this.
func (a *Agent) BiometricLogin(ctx context.Context, phone string) (Session, error) {
	return a.openSession(ctx, "/api/v1/auth/biometric-login", map[string]string{
		"phoneNumber": phone,
	})
}

func (a *Agent) openSession(ctx context.Context, path string, body map[string]string) (Session, error) {
	resp, err := a.send(ctx, http.MethodPost, path, body, "")
	if err != nil {
		return Session{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Session{}, fmt.Errorf("login failed: status %d", resp.StatusCode)
	}
	var sess Session
	if err := json.NewDecoder(resp.Body).Decode(&sess); err != nil {
		return Session{}, err
	}
	if err := a.store.Save(sess.AccessToken, sess.RefreshToken); err != nil {
		return Session{}, err
	}
	return sess, nil
}

// EnableBiometric opts the tenant into biometric login server-side and
// mirrors the flag locally for UI purposes. Server state stays authoritative.
func (a *Agent) EnableBiometric(ctx context.Context) error {
	resp, err := a.Do(ctx, http.MethodPost, "/api/v1/auth/enable-biometric", map[string]string{})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("enable biometric failed: status %d", resp.StatusCode)
	}
	return a.store.SetBiometricEnabled(true)
}

// ChangePasscode sets a new permanent passcode; during onboarding this is the
// step that activates the account.
func (a *Agent) ChangePasscode(ctx context.Context, current, next string) error {
	resp, err := a.Do(ctx, http.MethodPost, "/api/v1/auth/change-passcode", map[string]string{
		"currentPasscode": current,
		"newPasscode":     next,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("change passcode failed: status %d", resp.StatusCode)
	}
	return nil
}

// Logout clears the stored token pair.
func (a *Agent) Logout() error {
	return a.store.Clear()
}

// Do performs an authenticated JSON request. On a 401 it refreshes the token
// pair once (a single refresh shared across concurrent callers) and replays
// the request once; callers never observe the intermediate 401.
func (a *Agent) Do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	return a.do(ctx, method, path, body, false)
}

// do threads the retry state explicitly: a request that has already been
// replayed is never replayed again, whatever the response.
func (a *Agent) do(ctx context.Context, method, path string, body any, retried bool) (*http.Response, error) {
	access, _, err := a.store.Tokens()
	if err != nil {
		return nil, err
	}
	resp, err := a.send(ctx, method, path, body, access)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized || retried {
		return resp, nil
	}
	resp.Body.Close()

	if err := a.refresh(ctx); err != nil {
		_ = a.store.Clear()
		if a.onSessionExpired != nil {
			a.onSessionExpired()
		}
		return nil, ErrSessionExpired
	}
	return a.do(ctx, method, path, body, true)
}

// refresh exchanges the stored refresh token for a new pair. Concurrent
// callers share one in-flight exchange.
func (a *Agent) refresh(ctx context.Context) error {
	_, err, _ := a.refreshGroup.Do("refresh", func() (any, error) {
		_, refresh, err := a.store.Tokens()
		if err != nil {
			return nil, err
		}
		if refresh == "" {
			return nil, errors.New("no refresh token")
		}

		resp, err := a.send(ctx, http.MethodPost, "/api/v1/auth/refresh", map[string]string{
			"refreshToken": refresh,
		}, "")
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("refresh failed: status %d", resp.StatusCode)
		}

		var pair struct {
			AccessToken  string `json:"accessToken"`
			RefreshToken string `json:"refreshToken"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&pair); err != nil {
			return nil, err
		}
		return nil, a.store.Save(pair.AccessToken, pair.RefreshToken)
	})
	return err
}

func (a *Agent) send(ctx context.Context, method, path string, body any, bearer string) (*http.Response, error) {
	var payload *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		payload = bytes.NewReader(data)
	} else {
		payload = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, payload)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	return a.client.Do(req)
}
