package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ghgate/ghgate/internal/config"
	"github.com/ghgate/ghgate/internal/safe"
)

type staticTokens struct{}

func (staticTokens) GetToken(ctx context.Context) (string, error) {
	return "ghs_test_token", nil
}

func testLimits() config.RequestLimits {
	return config.RequestLimits{
		ConnectTimeout: time.Second,
		ReadTimeout:    time.Second,
		TotalTimeout:   5 * time.Second,
		MaxAttempts:    3,
		MaxBackoff:     10 * time.Millisecond,
		MaxBodyBytes:   1 << 20,
	}
}

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	limits := testLimits()
	// Backoff between retries stays tiny so tests run fast.
	return newClient(staticTokens{}, limits, srv.URL)
}

func TestNewRejectsNonCanonicalHost(t *testing.T) {
	_, err := New(staticTokens{}, testLimits(), "https://evil.example.com")
	if err == nil {
		t.Fatal("expected config error for non-canonical host")
	}
	if se := safe.From(err); se.Code != safe.CodeConfig {
		t.Fatalf("expected config code, got %s", se.Code)
	}
}

func TestNewAcceptsCanonicalHost(t *testing.T) {
	if _, err := New(staticTokens{}, testLimits(), DefaultBaseURL); err != nil {
		t.Fatalf("canonical host rejected: %v", err)
	}
	if _, err := New(staticTokens{}, testLimits(), ""); err != nil {
		t.Fatalf("empty base URL should default to canonical: %v", err)
	}
}

func TestRequestJSONRetriesServerErrorOnce(t *testing.T) {
	var hits int64
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt64(&hits, 1) == 1 {
			http.Error(w, `{"message":"try later"}`, http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"full_name":"acme/widgets"}`))
	})

	out, err := c.RequestJSON(context.Background(), http.MethodGet, "/repos/acme/widgets", nil, nil)
	if err != nil {
		t.Fatalf("RequestJSON: %v", err)
	}
	if atomic.LoadInt64(&hits) != 2 {
		t.Fatalf("expected exactly one retry, hits=%d", hits)
	}
	obj, ok := out.(map[string]any)
	if !ok || obj["full_name"] != "acme/widgets" {
		t.Fatalf("unexpected payload: %#v", out)
	}
}

func TestRequestJSONRetries429(t *testing.T) {
	var hits int64
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt64(&hits, 1) < 3 {
			http.Error(w, `{"message":"rate limited"}`, http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{}`))
	})

	if _, err := c.RequestJSON(context.Background(), http.MethodGet, "/x", nil, nil); err != nil {
		t.Fatalf("RequestJSON: %v", err)
	}
	if atomic.LoadInt64(&hits) != 3 {
		t.Fatalf("expected two retries, hits=%d", hits)
	}
}

func TestRequestJSONExhaustedRetriesIsUpstream(t *testing.T) {
	var hits int64
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		http.Error(w, `{"message":"still down"}`, http.StatusBadGateway)
	})

	_, err := c.RequestJSON(context.Background(), http.MethodGet, "/x", nil, nil)
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if se := safe.From(err); se.Code != safe.CodeUpstream {
		t.Fatalf("expected upstream, got %s", se.Code)
	}
	if atomic.LoadInt64(&hits) != 3 {
		t.Fatalf("expected MaxAttempts hits, got %d", hits)
	}
}

func TestRequestJSONNeverRetriesAuthFailures(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		var hits int64
		c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt64(&hits, 1)
			http.Error(w, `{"message":"denied"}`, status)
		})

		_, err := c.RequestJSON(context.Background(), http.MethodGet, "/x", nil, nil)
		if err == nil {
			t.Fatalf("status %d: expected error", status)
		}
		if se := safe.From(err); se.Code != safe.CodeForbidden {
			t.Fatalf("status %d: expected forbidden, got %s", status, se.Code)
		}
		if atomic.LoadInt64(&hits) != 1 {
			t.Fatalf("status %d: expected zero retries, hits=%d", status, hits)
		}
	}
}

func TestRequestJSONNotFoundNoRetry(t *testing.T) {
	var hits int64
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
	})

	_, err := c.RequestJSON(context.Background(), http.MethodGet, "/missing", nil, nil)
	if se := safe.From(err); se == nil || se.Code != safe.CodeNotFound {
		t.Fatalf("expected not_found, got %v", err)
	}
	if atomic.LoadInt64(&hits) != 1 {
		t.Fatalf("404 must not be retried, hits=%d", hits)
	}
}

func TestRequestJSONHintFromMessageFieldOnly(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Validation Failed","secret_detail":"ghs_leak"}`, http.StatusUnprocessableEntity)
	})

	_, err := c.RequestJSON(context.Background(), http.MethodPost, "/x", map[string]any{"a": 1}, nil)
	se := safe.From(err)
	if se == nil || se.Code != safe.CodeUpstream {
		t.Fatalf("expected upstream, got %v", err)
	}
	if se.Hint != "Validation Failed" {
		t.Fatalf("expected message-field hint, got %q", se.Hint)
	}
	if strings.Contains(se.Error(), "ghs_leak") {
		t.Fatalf("raw body leaked into error: %s", se.Error())
	}
}

func TestRequestJSONDecodeFailureIsUpstreamNoRetry(t *testing.T) {
	var hits int64
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		w.Write([]byte("<html>not json</html>"))
	})

	_, err := c.RequestJSON(context.Background(), http.MethodGet, "/x", nil, nil)
	if se := safe.From(err); se == nil || se.Code != safe.CodeUpstream {
		t.Fatalf("expected upstream for non-JSON 2xx, got %v", err)
	}
	if atomic.LoadInt64(&hits) != 1 {
		t.Fatalf("malformed responses must not be retried, hits=%d", hits)
	}
}

func TestRequestJSONTransportErrorExhaustsToNetwork(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from now on

	c := newClient(staticTokens{}, testLimits(), srv.URL)
	_, err := c.RequestJSON(context.Background(), http.MethodGet, "/x", nil, nil)
	if se := safe.From(err); se == nil || se.Code != safe.CodeNetwork {
		t.Fatalf("expected network after exhausted transport failures, got %v", err)
	}
}

func TestRequestJSONSendsPinnedHeaders(t *testing.T) {
	var gotAuth, gotVersion, gotAccept string
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotVersion = r.Header.Get("X-GitHub-Api-Version")
		gotAccept = r.Header.Get("Accept")
		w.Write([]byte(`{}`))
	})

	if _, err := c.RequestJSON(context.Background(), http.MethodGet, "/x", nil, nil); err != nil {
		t.Fatalf("RequestJSON: %v", err)
	}
	if gotAuth != "Bearer ghs_test_token" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	if gotVersion != apiVersion {
		t.Fatalf("api version header missing, got %q", gotVersion)
	}
	if gotAccept != "application/vnd.github+json" {
		t.Fatalf("accept header missing, got %q", gotAccept)
	}
}

func TestRequestJSONDoesNotFollowRedirects(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "https://elsewhere.example.com/", http.StatusFound)
	})

	// A 302 is a non-retryable upstream error, not a silent hop to another
	// host.
	_, err := c.RequestJSON(context.Background(), http.MethodGet, "/x", nil, nil)
	if se := safe.From(err); se == nil || se.Code != safe.CodeUpstream {
		t.Fatalf("expected upstream for redirect, got %v", err)
	}
}

func TestBackoffDelayMonotonicAndCapped(t *testing.T) {
	max := 8 * time.Second
	var prev time.Duration
	for attempt := 1; attempt <= 10; attempt++ {
		d := backoffDelay(attempt, max)
		if d < prev {
			t.Fatalf("backoff decreased at attempt %d: %v < %v", attempt, d, prev)
		}
		if d > max+time.Duration(attempt)*25*time.Millisecond {
			t.Fatalf("backoff exceeds cap at attempt %d: %v", attempt, d)
		}
		prev = d
	}

	// Deterministic: same inputs, same output.
	if backoffDelay(3, max) != backoffDelay(3, max) {
		t.Fatal("backoff is not deterministic")
	}

	// Attempt counts large enough to overflow the doubling still produce a
	// positive, capped delay.
	for _, attempt := range []int{35, 64, 200} {
		d := backoffDelay(attempt, max)
		if d <= 0 {
			t.Fatalf("attempt %d: non-positive delay %v", attempt, d)
		}
		if d > max+time.Duration(attempt)*25*time.Millisecond {
			t.Fatalf("attempt %d: delay %v exceeds cap", attempt, d)
		}
	}
}
