// Package httpfetch is the shared HTTP transport used by both the CRL
// fetcher and the OCSP client. It centralizes connect/response timeouts,
// retry-with-backoff, and an optional rate limiter so neither caller has
// to re-derive the same *http.Client construction inline for its own
// outbound calls.
package httpfetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	cleanhttp "github.com/hashicorp/go-cleanhttp"
	retryablehttp "github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"

	"github.com/hashicorp/revoke-core/revokeerr"
)

// Config controls one Transport's timeouts, retry policy, and optional
// outbound rate limit.
type Config struct {
	ConnectTimeout  time.Duration
	ResponseTimeout time.Duration
	MaxRetries      int
	UserAgent       string
	// RateLimit, if non-nil, throttles outbound requests (e.g. to avoid
	// flooding a single OCSP responder or CRL distribution host when many
	// concurrent certificate checks land on the same issuer).
	RateLimit *rate.Limiter
}

// Transport is a reusable, retrying HTTP client for CRL and OCSP fetches.
type Transport struct {
	client    *retryablehttp.Client
	userAgent string
	limiter   *rate.Limiter
}

// New builds a Transport from cfg.
func New(cfg Config) *Transport {
	base := cleanhttp.DefaultPooledClient()
	base.Timeout = cfg.ResponseTimeout
	if t, ok := base.Transport.(*http.Transport); ok {
		t.DialContext = (&dialer{connectTimeout: cfg.ConnectTimeout}).DialContext
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient = base
	rc.RetryMax = cfg.MaxRetries
	rc.Logger = nil // components pass their own hclog.Logger for protocol-level logging

	return &Transport{
		client:    rc,
		userAgent: cfg.UserAgent,
		limiter:   cfg.RateLimit,
	}
}

// Get performs an HTTP GET against url, enforcing the configured rate
// limit and timeouts, and returns the response body capped at maxBytes
// (CRLs and OCSP responses are both bounded-size documents; an unbounded
// read from an untrusted responder is itself a resource-exhaustion risk).
func (t *Transport) Get(ctx context.Context, url string, maxBytes int64) ([]byte, error) {
	if err := t.wait(ctx); err != nil {
		return nil, err
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, revokeerr.Transport(err, "building GET request for %s", url)
	}
	req.Header.Set("User-Agent", t.userAgent)
	return t.do(req, url, maxBytes)
}

// Post performs an HTTP POST with the given content type and body.
func (t *Transport) Post(ctx context.Context, url, contentType string, body []byte, maxBytes int64) ([]byte, error) {
	if err := t.wait(ctx); err != nil {
		return nil, err
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, revokeerr.Transport(err, "building POST request for %s", url)
	}
	req.Header.Set("User-Agent", t.userAgent)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Content-Length", fmt.Sprintf("%d", len(body)))
	req.Header.Set("Connection", "close")
	return t.do(req, url, maxBytes)
}

func (t *Transport) wait(ctx context.Context) error {
	if t.limiter == nil {
		return nil
	}
	if err := t.limiter.Wait(ctx); err != nil {
		return revokeerr.Transport(err, "rate limiter")
	}
	return nil
}

func (t *Transport) do(req *retryablehttp.Request, url string, maxBytes int64) ([]byte, error) {
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, revokeerr.Transport(err, "fetching %s", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, revokeerr.NotFound(url)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, revokeerr.Transport(fmt.Errorf("http status %d", resp.StatusCode), "fetching %s", url)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes))
	if err != nil {
		return nil, revokeerr.Transport(err, "reading response body from %s", url)
	}
	return data, nil
}
