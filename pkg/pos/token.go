package pos

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/posbridge/pkg/config"
	"github.com/ajitpratap0/posbridge/pkg/errors"
	jsonpkg "github.com/ajitpratap0/posbridge/pkg/json"
	"github.com/ajitpratap0/posbridge/pkg/logger"
	"github.com/ajitpratap0/posbridge/pkg/metrics"
)

// Token is a session token for the POS data API. The auth response may
// redirect callers to a different regional server; BaseURL carries the
// resolved endpoint for all subsequent data calls in this invocation.
type Token struct {
	AccessToken string
	ExpiresAt   time.Time
	BaseURL     string
}

// authResponse is the wire shape of the POS auth endpoint response
type authResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	ServerURL   string `json:"server_url"`
}

// TokenManager owns authentication state for one invocation. It acquires
// bearer tokens from the POS auth endpoint and refreshes them transparently
// when expired or invalidated. Nothing is cached across invocations.
type TokenManager struct {
	cfg    config.APIConfig
	client *http.Client
	logger *zap.Logger

	mu    sync.Mutex
	token *Token
}

// NewTokenManager creates an invocation-scoped token manager
func NewTokenManager(cfg config.APIConfig, client *http.Client) *TokenManager {
	return &TokenManager{
		cfg:    cfg,
		client: client,
		logger: logger.Get().With(zap.String("component", "token_manager")),
	}
}

// Authenticate acquires a fresh token from the auth endpoint. Invalid
// credentials or an unreachable endpoint fail the whole invocation.
func (tm *TokenManager) Authenticate(ctx context.Context) (*Token, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return tm.authenticateLocked(ctx)
}

// EnsureValid returns a valid token, re-authenticating transparently when
// the current one is within the configured skew of expiry or was invalidated
// by a 401.
func (tm *TokenManager) EnsureValid(ctx context.Context) (*Token, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if tm.token != nil && time.Now().Before(tm.token.ExpiresAt.Add(-tm.cfg.TokenSkew)) {
		return tm.token, nil
	}
	return tm.authenticateLocked(ctx)
}

// Invalidate discards the current token. The next EnsureValid call will
// re-authenticate and re-resolve the API base URL.
func (tm *TokenManager) Invalidate() {
	tm.mu.Lock()
	tm.token = nil
	tm.mu.Unlock()
}

// Current returns the current token without refreshing, or nil
func (tm *TokenManager) Current() *Token {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return tm.token
}

// BaseURL returns the resolved data API base URL, falling back to the
// configured one before the first authentication.
func (tm *TokenManager) BaseURL() string {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if tm.token != nil && tm.token.BaseURL != "" {
		return tm.token.BaseURL
	}
	return tm.cfg.BaseURL
}

func (tm *TokenManager) authenticateLocked(ctx context.Context) (*Token, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", tm.cfg.ClientID)
	form.Set("client_secret", tm.cfg.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tm.cfg.AuthURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeAuth, "failed to create auth request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := tm.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeAuth, "auth endpoint unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, errors.Newf(errors.ErrorTypeAuth, "authentication failed: %d %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var ar authResponse
	if err := jsonpkg.NewDecoder(resp.Body).Decode(&ar); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeAuth, "failed to decode auth response")
	}
	if ar.AccessToken == "" {
		return nil, errors.New(errors.ErrorTypeAuth, "auth response contains no access token")
	}

	baseURL := strings.TrimSuffix(ar.ServerURL, "/")
	if baseURL == "" {
		baseURL = strings.TrimSuffix(tm.cfg.BaseURL, "/")
	}

	tm.token = &Token{
		AccessToken: ar.AccessToken,
		ExpiresAt:   time.Now().Add(time.Duration(ar.ExpiresIn) * time.Second),
		BaseURL:     baseURL,
	}

	metrics.TokenRefreshes.Inc()
	tm.logger.Debug("authenticated against POS API",
		zap.Time("expires_at", tm.token.ExpiresAt),
		zap.String("base_url", baseURL))

	return tm.token, nil
}
