// Package transport executes REST and GraphQL requests against the single
// allow-listed GitHub API host. It hides token acquisition, timeouts,
// bounded retries with deterministic backoff, and error classification from
// the tool handlers that call it.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/ghgate/ghgate/internal/config"
	"github.com/ghgate/ghgate/internal/safe"
	"github.com/ghgate/ghgate/internal/telemetry"
)

// DefaultBaseURL is the only host the transport will ever contact. This is a
// hard-coded allowlist of one, not a configurable list.
const DefaultBaseURL = "https://api.github.com"

const apiVersion = "2022-11-28"

// TokenSource supplies a currently-valid installation token.
type TokenSource interface {
	GetToken(ctx context.Context) (string, error)
}

// REST is the request surface tool handlers depend on.
type REST interface {
	RequestJSON(ctx context.Context, method, path string, body any, query url.Values) (any, error)
}

// GraphQL is the query surface for ProjectV2 operations.
type GraphQL interface {
	ExecuteGraphQL(ctx context.Context, query string, variables map[string]any) (map[string]any, error)
}

// Client implements REST and GraphQL over one HTTP client with independent
// connect and read timeouts. Redirects are never followed.
type Client struct {
	tokens     TokenSource
	limits     config.RequestLimits
	httpClient *http.Client
	baseURL    string
}

// Option adjusts a Client at construction.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. The caller keeps the
// responsibility for timeouts the default client would have carried.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// New builds a client for the canonical API host. Any other base URL is a
// configuration error.
func New(tokens TokenSource, limits config.RequestLimits, baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if baseURL != DefaultBaseURL {
		return nil, safe.Config("base URL %q is not the canonical API host %s", baseURL, DefaultBaseURL)
	}
	c := newClient(tokens, limits, baseURL)
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// newClient skips the host check. Package tests use it to point at a local
// server.
func newClient(tokens TokenSource, limits config.RequestLimits, baseURL string) *Client {
	return &Client{
		tokens:  tokens,
		limits:  limits,
		baseURL: baseURL,
		httpClient: &http.Client{
			Transport: &http.Transport{
				DialContext:           (&net.Dialer{Timeout: limits.ConnectTimeout}).DialContext,
				TLSHandshakeTimeout:   limits.ConnectTimeout,
				ResponseHeaderTimeout: limits.ReadTimeout,
			},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// RequestJSON performs one logical request: up to MaxAttempts tries under a
// single total-timeout budget, retrying only 429, 5xx, and transport
// failures. The decoded JSON value (object or list) is returned on success.
func (c *Client) RequestJSON(ctx context.Context, method, path string, body any, query url.Values) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, c.limits.TotalTimeout)
	defer cancel()

	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, safe.Internal("marshal request body failed")
		}
		payload = b
	}

	var lastErr error
	for attempt := 1; attempt <= c.limits.MaxAttempts; attempt++ {
		out, retryable, cause, err := c.attempt(ctx, method, path, payload, query)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
		if attempt == c.limits.MaxAttempts {
			break
		}
		telemetry.IncRetry(cause)
		if !sleepBackoff(ctx, attempt, c.limits.MaxBackoff) {
			return nil, safe.Network("request canceled while waiting to retry")
		}
	}
	return nil, lastErr
}

// attempt issues one HTTP round trip and classifies the outcome. The
// retryable flag and cause drive the outer loop; err is already safe.
func (c *Client) attempt(ctx context.Context, method, path string, payload []byte, query url.Values) (out any, retryable bool, cause string, err error) {
	token, err := c.tokens.GetToken(ctx)
	if err != nil {
		return nil, false, "", err
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return nil, false, "", safe.Internal("build request failed")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, "network", safe.Network("request to %s failed: transport or timeout error", path)
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, c.limits.MaxBodyBytes)

	switch {
	case resp.StatusCode < 400:
		var decoded any
		if err := json.NewDecoder(limited).Decode(&decoded); err != nil {
			return nil, false, "", safe.Upstream(fmt.Sprintf("%s %s returned HTTP %d with a non-JSON body", method, path, resp.StatusCode), "")
		}
		return decoded, false, "", nil

	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, false, "", safe.Forbidden("github denied the request (HTTP %d): installation revoked, uninstalled, or missing permission", resp.StatusCode)

	case resp.StatusCode == http.StatusNotFound:
		return nil, false, "", safe.NotFound("%s %s returned HTTP 404", method, path)

	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, true, "429", safe.Upstream(fmt.Sprintf("%s %s returned HTTP 429", method, path), readHint(limited))

	case resp.StatusCode >= 500:
		return nil, true, "5xx", safe.Upstream(fmt.Sprintf("%s %s returned HTTP %d", method, path, resp.StatusCode), readHint(limited))

	default:
		return nil, false, "", safe.Upstream(fmt.Sprintf("%s %s returned HTTP %d", method, path, resp.StatusCode), readHint(limited))
	}
}

// readHint extracts the one-line `message` field a GitHub error body
// declares. The raw body is never surfaced.
func readHint(r io.Reader) string {
	raw, err := io.ReadAll(r)
	if err != nil {
		return ""
	}
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	return safe.TrimHint(body.Message)
}

// backoffDelay is deterministic: 500ms doubling per attempt capped at max,
// plus a small monotonic term so successive waits never repeat exactly. The
// shift is clamped because MaxAttempts has no upper bound and 500ms<<35
// overflows to a negative duration.
func backoffDelay(attempt int, max time.Duration) time.Duration {
	d := max
	if shift := attempt - 1; shift < 30 {
		d = 500 * time.Millisecond << shift
		if d > max {
			d = max
		}
	}
	return d + time.Duration(attempt)*25*time.Millisecond
}

func sleepBackoff(ctx context.Context, attempt int, max time.Duration) bool {
	t := time.NewTimer(backoffDelay(attempt, max))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
