package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/nhle/mailsync/internal/credential"
)

// tokenScopes are the delegated permissions the mail client needs:
// mailbox read/write, send, offline refresh, and the user profile.
const tokenScopes = "https://graph.microsoft.com/Mail.ReadWrite " +
	"https://graph.microsoft.com/Mail.Send " +
	"https://graph.microsoft.com/User.Read " +
	"offline_access"

// refreshMargin is how long before expiry a cached access token is
// still considered valid.
const refreshMargin = 60 * time.Second

// tokenExchangeTimeout bounds a single refresh-token exchange.
const tokenExchangeTimeout = 10 * time.Second

// TokenManager owns the access-token lifecycle: it exchanges the
// persisted refresh token for access tokens, caches them until expiry,
// and persists rotated refresh tokens back to the credential store.
// Refresh is serialized: concurrent callers observing an expired token
// share the result of a single exchange.
type TokenManager struct {
	creds      credential.Store
	httpClient *http.Client

	// tokenURL is the full token endpoint. Overridable in tests.
	tokenURL string

	mu          sync.Mutex
	accessToken string
	expiresAt   time.Time
	now         func() time.Time
}

// ResolveTenantID picks the directory tenant for the token endpoint: an
// explicit override wins, otherwise the value in the credential store.
func ResolveTenantID(creds credential.Store, override string) (string, error) {
	if override != "" {
		return override, nil
	}
	tenant, err := creds.Get(credential.KeyTenantID)
	if err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			return "", &AuthError{Message: "no tenant id configured"}
		}
		return "", fmt.Errorf("reading tenant id: %w", err)
	}
	if tenant == "" {
		return "", &AuthError{Message: "no tenant id configured"}
	}
	return tenant, nil
}

// NewTokenManager creates a token manager reading credentials from creds.
// tenantID selects the directory tenant for the token endpoint.
func NewTokenManager(creds credential.Store, tenantID string) *TokenManager {
	return &TokenManager{
		creds: creds,
		httpClient: &http.Client{
			Timeout: tokenExchangeTimeout,
		},
		tokenURL: fmt.Sprintf(
			"https://login.microsoftonline.com/%s/oauth2/v2.0/token",
			tenantID,
		),
		now: time.Now,
	}
}

// GetValidToken returns a usable access token, refreshing it first if the
// cached one is absent or expires within the safety margin.
func (m *TokenManager) GetValidToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.accessToken != "" && m.now().Before(m.expiresAt.Add(-refreshMargin)) {
		return m.accessToken, nil
	}

	if err := m.refreshLocked(ctx); err != nil {
		return "", err
	}

	return m.accessToken, nil
}

// Invalidate discards the cached access token so the next caller
// performs a fresh exchange. Used after the provider rejects a token
// with 401.
func (m *TokenManager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.accessToken = ""
	m.expiresAt = time.Time{}
}

// tokenResponse is the provider token endpoint response body.
type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	ExpiresIn        int    `json:"expires_in"`
	RefreshToken     string `json:"refresh_token"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// refreshLocked performs a refresh-token exchange. The caller holds m.mu.
func (m *TokenManager) refreshLocked(ctx context.Context) error {
	clientID, err := m.creds.Get(credential.KeyClientID)
	if err != nil {
		return fmt.Errorf("reading client id: %w", err)
	}
	refreshToken, err := m.creds.Get(credential.KeyRefreshToken)
	if err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			return &AuthError{Message: "no refresh token stored"}
		}
		return fmt.Errorf("reading refresh token: %w", err)
	}

	form := url.Values{}
	form.Set("client_id", clientID)
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("scope", tokenScopes)
	// A missing secret means a public client; a failed read does not.
	secret, err := m.creds.Get(credential.KeyClientSecret)
	if err != nil && !errors.Is(err, credential.ErrNotFound) {
		return fmt.Errorf("reading client secret: %w", err)
	}
	if secret != "" {
		form.Set("client_secret", secret)
	}

	ctx, cancel := context.WithTimeout(ctx, tokenExchangeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, m.tokenURL,
		strings.NewReader(form.Encode()),
	)
	if err != nil {
		return fmt.Errorf("creating token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("exchanging refresh token: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading token response: %w", err)
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return fmt.Errorf("parsing token response (%d): %w", resp.StatusCode, err)
	}

	if tok.Error == "invalid_grant" {
		// The refresh token has been revoked or expired. Clear
		// everything so a cold start does not retry a dead token.
		m.accessToken = ""
		m.expiresAt = time.Time{}
		_ = m.creds.Delete(credential.KeyRefreshToken)
		return &AuthError{
			Message: "refresh token rejected: " + tok.ErrorDescription,
		}
	}
	if resp.StatusCode != http.StatusOK || tok.AccessToken == "" {
		return fmt.Errorf(
			"token endpoint returned %d: %s %s",
			resp.StatusCode, tok.Error, tok.ErrorDescription,
		)
	}

	m.accessToken = tok.AccessToken
	m.expiresAt = m.now().Add(time.Duration(tok.ExpiresIn) * time.Second)

	// Persist a rotated refresh token so the next cold start uses it.
	if tok.RefreshToken != "" && tok.RefreshToken != refreshToken {
		if err := m.creds.Set(credential.KeyRefreshToken, tok.RefreshToken); err != nil {
			return fmt.Errorf("persisting rotated refresh token: %w", err)
		}
	}

	return nil
}
