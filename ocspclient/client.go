package ocspclient

import (
	"bytes"
	"context"
	"crypto/x509"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/hashicorp/go-hclog"

	"github.com/hashicorp/revoke-core/certadapter"
	"github.com/hashicorp/revoke-core/internal/httpfetch"
	"github.com/hashicorp/revoke-core/metrics"
	"github.com/hashicorp/revoke-core/revokeerr"
)

// maxOCSPResponseBytes bounds an OCSP response read from an untrusted
// responder.
const maxOCSPResponseBytes = 1 << 20

// DefaultClockSkewTolerance is the default freshness tolerance.
const DefaultClockSkewTolerance = 5 * time.Minute

// noNextUpdateCacheTTL bounds how long a response lacking next_update
// stays cached. The same "no bound means unusable for caching purposes"
// reasoning applied to CRLs applies symmetrically here; a short fixed
// TTL avoids caching such a response indefinitely while still getting
// some benefit under request bursts.
const noNextUpdateCacheTTL = time.Minute

// Outcome is the OCSP-only revocation outcome. The decision
// engine (package revoke) wraps this into its broader Outcome sum type.
type Outcome struct {
	Status           Status
	RevocationReason *int
	RevocationTime   time.Time
	Warnings         []string
}

// Client implements the OCSP client's operations: cache consult,
// request, response match/freshness/signature check, cache install.
type Client struct {
	Transport          *httpfetch.Transport
	Verifier           certadapter.Verifier
	Logger             hclog.Logger
	HashAlg            certadapter.HashAlg
	UseNonce           bool
	ClockSkewTolerance time.Duration

	cache *gocache.Cache
	group singleflight.Group
}

// NewClient constructs a Client. verifier may be nil, in which case
// signature checks become warnings rather than hard failures; clockSkew
// <= 0 uses DefaultClockSkewTolerance.
func NewClient(transport *httpfetch.Transport, verifier certadapter.Verifier, hashAlg certadapter.HashAlg, useNonce bool, clockSkew time.Duration, logger hclog.Logger) *Client {
	if clockSkew <= 0 {
		clockSkew = DefaultClockSkewTolerance
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Client{
		Transport:          transport,
		Verifier:           verifier,
		Logger:             logger,
		HashAlg:            hashAlg,
		UseNonce:           useNonce,
		ClockSkewTolerance: clockSkew,
		cache:              gocache.New(5*time.Minute, 10*time.Minute),
	}
}

// Check runs a single OCSP check end to end: build request, consult
// cache, resolve URL, POST, parse, match, check freshness, verify
// signature, install into cache.
func (c *Client) Check(ctx context.Context, subjectCert, issuerCert *x509.Certificate, explicitURL string) (*Outcome, error) {
	certID, err := BuildCertID(subjectCert, issuerCert, c.HashAlg)
	if err != nil {
		return nil, err
	}
	key := certID.cacheKey()

	if v, found := c.cache.Get(key); found {
		metrics.RecordCacheHit("ocsp")
		resp := v.(*Response)
		return outcomeFromResponse(resp, nil), nil
	}
	metrics.RecordCacheMiss("ocsp")

	url := explicitURL
	if url == "" {
		urls := certadapter.OCSPResponderURLs(subjectCert)
		if len(urls) == 0 {
			return &Outcome{Status: StatusUnknown, Warnings: []string{"no OCSP responder URL available"}}, nil
		}
		url = urls[0]
	}

	var nonce []byte
	if c.UseNonce {
		nonce, _, err = GenerateNonce()
		if err != nil {
			return nil, err
		}
	}

	req, err := BuildRequest(certID, nonce)
	if err != nil {
		return nil, err
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		return c.Transport.Post(ctx, url, "application/ocsp-request", req.DER, maxOCSPResponseBytes)
	})
	if err != nil {
		return nil, err
	}
	respDER := v.([]byte)

	resp, err := ParseResponse(respDER, certID)
	if err != nil {
		return nil, err
	}

	var warnings []string

	switch {
	case nonce != nil && resp.Nonce != nil:
		if !bytes.Equal(nonce, resp.Nonce) {
			return nil, revokeerr.Protocol("OCSP response nonce does not match request nonce")
		}
	case nonce != nil || resp.Nonce != nil:
		warnings = append(warnings, "OCSP nonce present on only one side of the exchange")
	}

	now := time.Now()
	if resp.ThisUpdate.After(now.Add(c.ClockSkewTolerance)) {
		return nil, revokeerr.Protocol("OCSP response thisUpdate (%s) is too far in the future", resp.ThisUpdate)
	}
	if resp.NextUpdate != nil && now.After(*resp.NextUpdate) {
		return nil, revokeerr.Protocol("OCSP response is stale: nextUpdate (%s) has passed", *resp.NextUpdate)
	}

	signerKey := issuerCert.PublicKey
	if resp.EmbeddedCertificate != nil {
		signerKey = resp.EmbeddedCertificate.PublicKey
	}
	switch {
	case c.Verifier == nil:
		warnings = append(warnings, "OCSP response signature not verified: no verifier configured")
	default:
		if err := c.Verifier.Verify(resp.SignatureAlgorithm, resp.TBSBytes, resp.Signature, signerKey); err != nil {
			return nil, revokeerr.ProtocolWrap(err, "OCSP response signature verification failed")
		}
	}

	if resp.NextUpdate != nil {
		ttl := resp.NextUpdate.Sub(now)
		if ttl > 0 {
			c.cache.Set(key, resp, ttl)
		}
	} else {
		c.cache.Set(key, resp, noNextUpdateCacheTTL)
	}

	return outcomeFromResponse(resp, warnings), nil
}

func outcomeFromResponse(resp *Response, warnings []string) *Outcome {
	return &Outcome{
		Status:           resp.Status,
		RevocationReason: resp.RevocationReason,
		RevocationTime:   resp.RevocationTime,
		Warnings:         warnings,
	}
}
