// Package pos implements the surface toward the source POS API: an
// authenticated HTTP client, the token manager owning session state, and the
// paginated entity extractor. Everything here is invocation-scoped; no state
// survives past a single connector invocation.
package pos

import (
	"context"
	stderrors "errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/ajitpratap0/posbridge/pkg/config"
	"github.com/ajitpratap0/posbridge/pkg/errors"
	jsonpkg "github.com/ajitpratap0/posbridge/pkg/json"
	"github.com/ajitpratap0/posbridge/pkg/logger"
)

// Client performs authenticated calls against the POS data API. The resolved
// base URL always comes from the token manager, so a re-authentication that
// redirects to another regional server propagates to every later call.
type Client struct {
	httpClient *http.Client
	tokens     *TokenManager
	limiter    *RateLimiter
	logger     *zap.Logger
}

// NewClient builds a client from connector configuration. The same
// underlying http.Client serves both auth and data calls.
func NewClient(cfg *config.Config) *Client {
	httpClient := &http.Client{
		Timeout: cfg.Timeouts.Request,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout: cfg.Timeouts.Connection,
			}).DialContext,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     cfg.Timeouts.Idle,
		},
	}

	return &Client{
		httpClient: httpClient,
		tokens:     NewTokenManager(cfg.API, httpClient),
		limiter:    NewRateLimiter(cfg.Reliability.RateLimitPerSec),
		logger:     logger.Get().With(zap.String("component", "pos_client")),
	}
}

// Tokens exposes the token manager, mainly for the test operation
func (c *Client) Tokens() *TokenManager {
	return c.tokens
}

// getJSON performs an authenticated GET against the data API and decodes the
// response body into out. A 401 triggers exactly one transparent
// re-authentication and retry of the same request; other failure statuses
// map onto the error taxonomy so the retry policy can classify them.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, errors.ErrorTypeTimeout, "rate limit wait cancelled")
	}

	if _, err := c.tokens.EnsureValid(ctx); err != nil {
		return err
	}

	err := c.doGet(ctx, path, query, out)
	if !errors.IsType(err, errors.ErrorTypeAuth) {
		return err
	}

	// Token rejected mid-extraction: re-authenticate once and retry the
	// same request. The new token may carry a different base URL.
	c.logger.Debug("token rejected, re-authenticating", zap.String("path", path))
	c.tokens.Invalidate()
	if _, err := c.tokens.EnsureValid(ctx); err != nil {
		return err
	}
	return c.doGet(ctx, path, query, out)
}

func (c *Client) doGet(ctx context.Context, path string, query url.Values, out interface{}) error {
	token := c.tokens.Current()
	fullURL := c.tokens.BaseURL() + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to create API request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "posbridge/"+Version)
	if token != nil {
		req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return errors.Wrap(err, errors.ErrorTypeTimeout, "API request timed out")
		}
		return errors.Wrap(err, errors.ErrorTypeConnection, "API request failed")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized:
		return errors.New(errors.ErrorTypeAuth, "API rejected token").WithDetail("path", path)
	case resp.StatusCode == http.StatusTooManyRequests:
		return errors.New(errors.ErrorTypeRateLimit, "API rate limit exceeded").WithDetail("path", path)
	case resp.StatusCode >= 500:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return errors.Newf(errors.ErrorTypeConnection, "API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return errors.Newf(errors.ErrorTypeData, "API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := jsonpkg.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to decode API response")
	}
	return nil
}

func isTimeout(err error) bool {
	var netErr net.Error
	return stderrors.As(err, &netErr) && netErr.Timeout()
}

// Version is the connector version reported in the User-Agent and the CLI
const Version = "0.1.0"
