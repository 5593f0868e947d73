// Package auth exchanges a signed GitHub App assertion for a short-lived
// installation access token and caches it for the process lifetime.
package auth

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/ghgate/ghgate/internal/config"
	"github.com/ghgate/ghgate/internal/safe"
	"github.com/ghgate/ghgate/internal/telemetry"
)

const (
	// expiryMargin is how much remaining lifetime a cached token must have
	// to be served without a refresh.
	expiryMargin = 30 * time.Second

	// assertionTTL is the lifetime of the signed App assertion.
	assertionTTL = 10 * time.Minute

	tokenHost = "https://api.github.com"
)

// Provider produces a currently-valid installation token. The mutex
// serializes all callers during a refresh so a burst of concurrent requests
// triggers exactly one exchange; callers that find a still-valid cached token
// return without any I/O.
type Provider struct {
	appID          int64
	installationID int64
	privateKey     *rsa.PrivateKey
	httpClient     *http.Client
	baseURL        string

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// Option adjusts a Provider at construction.
type Option func(*Provider)

// WithHTTPClient replaces the HTTP client used for the token exchange.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// NewProvider parses the App's private key and returns a provider with an
// empty cache. The key material stays inside the provider and is never
// serialized or logged.
func NewProvider(identity config.AppIdentity, opts ...Option) (*Provider, error) {
	block, _ := pem.Decode(identity.PrivateKeyPEM)
	if block == nil {
		return nil, safe.Config("no PEM block found in private key")
	}
	key, err := parseRSAPrivateKey(block.Bytes)
	if err != nil {
		return nil, safe.Config("parse private key: %v", err)
	}

	p := &Provider{
		appID:          identity.AppID,
		installationID: identity.InstallationID,
		privateKey:     key,
		httpClient:     &http.Client{Timeout: 30 * time.Second},
		baseURL:        tokenHost,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func parseRSAPrivateKey(der []byte) (*rsa.PrivateKey, error) {
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	pkcs8Key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, err
	}
	rsaKey, ok := pkcs8Key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is not RSA")
	}
	return rsaKey, nil
}

// signAssertion builds the App-level JWT: RS256, issuer = app id, issued now,
// expiring after assertionTTL.
func (p *Provider) signAssertion() (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    strconv.FormatInt(p.appID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(assertionTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(p.privateKey)
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// GetToken returns the cached token when it has more than expiryMargin left,
// otherwise performs one exchange and replaces the cache entry.
func (p *Provider) GetToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token != "" && time.Until(p.expiresAt) > expiryMargin {
		return p.token, nil
	}

	assertion, err := p.signAssertion()
	if err != nil {
		return "", safe.Internal("sign app assertion failed")
	}

	url := fmt.Sprintf("%s/app/installations/%d/access_tokens", p.baseURL, p.installationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return "", safe.Internal("build token request failed")
	}
	req.Header.Set("Authorization", "Bearer "+assertion)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", safe.Network("token exchange failed: transport error")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", safe.Forbidden("github rejected the app assertion (HTTP %d): installation revoked, uninstalled, or key mismatch", resp.StatusCode)
	case resp.StatusCode >= 300:
		return "", safe.Upstream(fmt.Sprintf("token exchange returned HTTP %d", resp.StatusCode), "")
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", safe.Upstream("token exchange response is not valid JSON", "")
	}
	if tok.Token == "" || tok.ExpiresAt.IsZero() {
		return "", safe.Upstream("token exchange response missing token or expires_at", "")
	}

	telemetry.IncTokenRefresh()
	p.token = tok.Token
	p.expiresAt = tok.ExpiresAt
	return p.token, nil
}
